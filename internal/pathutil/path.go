// Package pathutil resolves cache roots and the directories derived from them.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// EnvCacheDir overrides the platform cache root when set.
const EnvCacheDir = "ASSETCACHE_DIR"

const (
	appDirName    = "assetcache"
	sharedDirName = "shared"
	jobsDirName   = "jobs"
)

// DefaultRoot returns the cache root for the current platform.
//
// The lookup order is $ASSETCACHE_DIR, the user cache directory
// (XDG_CACHE_HOME, ~/Library/Caches, %LocalAppData%), then the system
// temp directory. The returned path is absolute.
func DefaultRoot() string {
	if dir := strings.TrimSpace(os.Getenv(EnvCacheDir)); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// SharedDir returns the cross-job content-addressed cache under root.
func SharedDir(root string) string {
	return filepath.Join(root, sharedDirName)
}

// JobDir returns the job-local cache directory for jobID under root.
func JobDir(root, jobID string) string {
	return filepath.Join(root, jobsDirName, SanitizeComponent(jobID))
}

// SanitizeComponent maps s to a single safe path component.
// Separators and characters outside [A-Za-z0-9._-] become '_'; empty,
// "." and ".." become "_". When the result differs from s, the first
// eight hex digits of sha256(s) are appended so distinct inputs stay
// distinct.
func SanitizeComponent(s string) string {
	raw := s
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s) + 9)
	if s == "" || s == "." || s == ".." {
		b.WriteByte('_')
	} else {
		for i := 0; i < len(s); i++ {
			ch := s[i]
			switch {
			case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
				b.WriteByte(ch)
			case ch == '.' || ch == '-' || ch == '_':
				b.WriteByte(ch)
			default:
				b.WriteByte('_')
			}
		}
	}
	if b.String() == raw {
		return raw
	}
	b.WriteByte('-')
	b.WriteString(digest.SHA256.FromString(raw).Encoded()[:8])
	return b.String()
}

// EnsureDir creates path and any missing parents. It is a no-op when the
// directory already exists and fails when path exists as a non-directory.
func EnsureDir(path string, perm os.FileMode) error {
	if path == "" {
		return errors.New("pathutil: empty directory path")
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("pathutil: create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("pathutil: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("pathutil: %s is not a directory", path)
	}
	return nil
}

// Ext returns the lower-cased extension of a slash-separated storage path,
// including the leading dot, or "" when there is none.
func Ext(storagePath string) string {
	base := storagePath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	// Dotfiles such as ".env" have no extension.
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	ext := strings.ToLower(base[i:])
	for j := 1; j < len(ext); j++ {
		ch := ext[j]
		if !((ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')) {
			return ""
		}
	}
	return ext
}
