package assetcache

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/assetcache/internal/pathutil"
	"github.com/meigma/assetcache/metadata"
)

// defaultExt names files whose type cannot be determined.
const defaultExt = ".bin"

// mimeExt maps the media types renderers commonly reference to extensions.
var mimeExt = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/avif":       ".avif",
	"image/svg+xml":    ".svg",
	"image/tiff":       ".tiff",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"audio/mpeg":       ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/ogg":        ".ogg",
	"audio/aac":        ".aac",
	"font/ttf":         ".ttf",
	"font/otf":         ".otf",
	"font/woff":        ".woff",
	"font/woff2":       ".woff2",
	"application/json": ".json",
	"application/pdf":  ".pdf",
	"text/plain":       ".txt",
}

// cacheKey identifies an asset's bytes in the shared cache.
type cacheKey struct {
	// hash is the lower-cased content hash or the fallback hash.
	hash string
	// name is the shared cache file name, hash plus extension.
	name string
	// digest is set when hash is a SHA-256 digest that can verify content.
	digest digest.Digest
}

func cacheKeyFor(a metadata.Asset) cacheKey {
	var k cacheKey
	if a.HasContentHash() {
		k.hash = strings.ToLower(strings.TrimSpace(a.ContentHash))
		if d := digest.NewDigestFromEncoded(digest.SHA256, k.hash); d.Validate() == nil {
			k.digest = d
		}
	} else {
		k.hash = fallbackHash(a)
	}
	k.name = k.hash + extFor(a)
	return k
}

// fallbackHash derives a stable name for assets without a recorded hash.
// It identifies the object, not its bytes, so it cannot verify content.
func fallbackHash(a metadata.Asset) string {
	seed := fmt.Sprintf("%s:%s:%d:%s", a.ID, a.StoragePath, a.FileSize, a.CreatedAt.UTC().Format(time.RFC3339Nano))
	return digest.SHA256.FromString(seed).Encoded()
}

func extFor(a metadata.Asset) string {
	if ext := pathutil.Ext(a.StoragePath); ext != "" {
		return ext
	}
	mediaType, _, err := mime.ParseMediaType(a.MimeType)
	if err != nil {
		return defaultExt
	}
	if ext, ok := mimeExt[mediaType]; ok {
		return ext
	}
	return defaultExt
}
