package assetcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meigma/assetcache/link"
)

// Sentinel errors for Prepare failures. Use errors.Is to classify.
var (
	// ErrValidation is returned when requested assets fail validation.
	ErrValidation = errors.New("assetcache: validation failed")

	// ErrPresign is returned when a signed download URL cannot be issued.
	ErrPresign = errors.New("assetcache: presign failed")

	// ErrDownload is returned when an object cannot be downloaded.
	ErrDownload = errors.New("assetcache: download failed")

	// ErrIntegrity is returned when downloaded content does not match the
	// recorded content hash.
	ErrIntegrity = errors.New("assetcache: content hash mismatch")

	// ErrSizeMismatch is returned when downloaded content has the wrong length.
	ErrSizeMismatch = errors.New("assetcache: size mismatch")

	// ErrMaterialize is returned when neither a hard link nor a copy could
	// place a shared cache file in the job directory.
	ErrMaterialize = link.ErrMaterialize

	// ErrIncomplete is returned when assets are missing after all downloads settled.
	ErrIncomplete = errors.New("assetcache: manifest incomplete")
)

// ValidationError lists every reason a set of assets was rejected.
type ValidationError struct {
	Errors   []error
	Warnings []string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(msgs, "; "))
}

// Unwrap exposes ErrValidation and the individual validation errors.
func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrValidation}, e.Errors...)
}

// AssetError reports the failure of a single asset.
type AssetError struct {
	AssetID string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("assetcache: asset %s: %v", e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// IncompleteError lists requested assets that have no cache entry after
// all downloads settled. Errors holds the *AssetError of each asset that
// failed, so errors.Is and errors.As reach the underlying causes.
type IncompleteError struct {
	Missing []string
	Errors  []error
}

func (e *IncompleteError) Error() string {
	msg := fmt.Sprintf("%s: missing %s", ErrIncomplete, strings.Join(e.Missing, ", "))
	if len(e.Errors) == 0 {
		return msg
	}
	causes := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		causes = append(causes, err.Error())
	}
	return msg + ": " + strings.Join(causes, "; ")
}

// Is reports whether target is ErrIncomplete.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncomplete
}

// Unwrap exposes the per-asset failures.
func (e *IncompleteError) Unwrap() []error {
	return e.Errors
}
