// Package storage defines how the cache obtains time-limited download URLs
// for objects in blob storage.
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultSignedURLTTL is the lifetime requested for download URLs.
const DefaultSignedURLTTL = 2 * time.Hour

// ErrObjectNotFound is returned by signers that can tell an object is absent.
var ErrObjectNotFound = errors.New("storage: object not found")

// Signer issues signed download URLs for objects.
type Signer interface {
	// CreateSignedURL returns a URL that permits an HTTP GET of
	// bucket/path until ttl elapses.
	CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)

// CreateSignedURL calls f.
func (f SignerFunc) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return f(ctx, bucket, path, ttl)
}
