// Package metadata describes the assets a job references and resolves them
// from the metadata store in a single ownership-scoped query.
package metadata

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MinContentHashLen is the shortest hex digest accepted as a content hash.
const MinContentHashLen = 32

// Sentinel errors for metadata operations.
var (
	// ErrMissingAsset is reported when a requested ID is absent from the store.
	ErrMissingAsset = errors.New("metadata: asset not found")

	// ErrJobTooLarge is reported when the requested assets exceed the job budget.
	ErrJobTooLarge = errors.New("metadata: job exceeds size budget")

	// ErrInvalidAsset is reported when a row carries an unusable size or hash.
	ErrInvalidAsset = errors.New("metadata: invalid asset")
)

// Asset is one row of the asset metadata store. It is read-only to the cache.
type Asset struct {
	ID          string
	BucketName  string
	StoragePath string
	FileSize    int64
	MimeType    string
	ContentHash string // optional hex digest
	ImageWidth  *int
	ImageHeight *int
	CreatedAt   time.Time
}

// HasContentHash reports whether the asset records a usable content hash.
func (a Asset) HasContentHash() bool {
	return ValidContentHash(a.ContentHash)
}

// ValidContentHash reports whether h is a hex string of at least
// MinContentHashLen characters.
func ValidContentHash(h string) bool {
	h = strings.TrimSpace(h)
	if len(h) < MinContentHashLen || len(h)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// Store resolves asset IDs to metadata.
type Store interface {
	// BulkFetch returns the assets among ids owned by userID using a single
	// query. IDs that do not exist or belong to another user are omitted
	// from the result rather than reported as errors.
	BulkFetch(ctx context.Context, ids []string, userID string) ([]Asset, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, ids []string, userID string) ([]Asset, error)

// BulkFetch calls f.
func (f StoreFunc) BulkFetch(ctx context.Context, ids []string, userID string) ([]Asset, error) {
	return f(ctx, ids, userID)
}

// Dedupe returns ids with blanks and repeats removed, preserving first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Thresholds for non-fatal validation warnings.
const (
	// LargeAssetBytes flags a single asset as unusually large.
	LargeAssetBytes int64 = 512 << 20
	// budgetShareWarn flags a single asset using more than half the budget.
	budgetShareWarn = 0.5
)

// Validation is the outcome of Validate.
type Validation struct {
	Valid      bool
	Errors     []error
	Warnings   []string
	TotalBytes int64
	Missing    []string
}

// Err joins the validation errors, or returns nil when valid.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return errors.Join(v.Errors...)
}

// Validate checks fetched metadata against the requested IDs and the job
// size budget. It fails when a requested ID is missing, a row has a
// non-positive size or a malformed hash, or the total exceeds
// maxJobSizeBytes (ignored when <= 0). Borderline conditions become warnings.
func Validate(requested []string, assets []Asset, maxJobSizeBytes int64) Validation {
	var v Validation

	byID := make(map[string]Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}
	for _, id := range Dedupe(requested) {
		if _, ok := byID[id]; !ok {
			v.Missing = append(v.Missing, id)
		}
	}
	if len(v.Missing) > 0 {
		v.Errors = append(v.Errors, fmt.Errorf("%w: %s", ErrMissingAsset, strings.Join(v.Missing, ", ")))
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		a := byID[id]
		if a.FileSize <= 0 {
			v.Errors = append(v.Errors, fmt.Errorf("%w: %s has size %d", ErrInvalidAsset, id, a.FileSize))
			continue
		}
		if a.ContentHash != "" && !a.HasContentHash() {
			v.Errors = append(v.Errors, fmt.Errorf("%w: %s has malformed content hash %q", ErrInvalidAsset, id, a.ContentHash))
		}
		v.TotalBytes += a.FileSize

		switch {
		case maxJobSizeBytes > 0 && float64(a.FileSize) > float64(maxJobSizeBytes)*budgetShareWarn:
			v.Warnings = append(v.Warnings, fmt.Sprintf("asset %s (%s) uses more than half of the job budget", id, humanize.IBytes(uint64(a.FileSize))))
		case a.FileSize > LargeAssetBytes:
			v.Warnings = append(v.Warnings, fmt.Sprintf("asset %s is large (%s)", id, humanize.IBytes(uint64(a.FileSize))))
		}
		if a.ContentHash == "" {
			v.Warnings = append(v.Warnings, fmt.Sprintf("asset %s has no content hash; verifying by size only", id))
		}
	}

	if maxJobSizeBytes > 0 && v.TotalBytes > maxJobSizeBytes {
		v.Errors = append(v.Errors, fmt.Errorf("%w: %s requested, %s allowed", ErrJobTooLarge,
			humanize.IBytes(uint64(v.TotalBytes)), humanize.IBytes(uint64(maxJobSizeBytes))))
	}

	v.Valid = len(v.Errors) == 0
	return v
}
