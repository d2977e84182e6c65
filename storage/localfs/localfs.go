// Package localfs serves objects from a local directory tree behind
// HMAC-signed, expiring URLs.
//
// It stands in for managed blob storage during development and tests:
// [Store.CreateSignedURL] implements storage.Signer, and [Store.Handler]
// returns the HTTP handler that verifies and serves those URLs.
//
// Objects live at root/<bucket>/<path>. Signed URLs have the form
//
//	<baseURL>/object/<bucket>/<path>?expires=<unix>&sig=<hex hmac-sha256>
package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meigma/assetcache/storage"
)

// Store is a directory-backed object store.
type Store struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

var _ storage.Signer = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithSecret sets the HMAC key. A random key is generated by default.
func WithSecret(secret []byte) Option {
	return func(s *Store) {
		s.secret = append([]byte(nil), secret...)
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store rooted at root. baseURL is the externally reachable
// origin of Handler (for example an httptest.Server URL) and may be set
// later with SetBaseURL.
func New(root, baseURL string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root is empty")
	}
	s := &Store{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("localfs: generate secret: %w", err)
		}
	}
	return s, nil
}

// SetBaseURL sets the origin used in signed URLs.
func (s *Store) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimSuffix(baseURL, "/")
}

// Put writes r to bucket/objectPath, creating parent directories.
func (s *Store) Put(bucket, objectPath string, r io.Reader) error {
	abs, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("localfs: create dir: %w", err)
	}
	f, err := os.Create(abs) //nolint:gosec // path is confined to root by resolve
	if err != nil {
		return fmt.Errorf("localfs: create object: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("localfs: write object: %w", err)
	}
	return f.Close()
}

// CreateSignedURL implements storage.Signer.
func (s *Store) CreateSignedURL(_ context.Context, bucket, objectPath string, ttl time.Duration) (string, error) {
	abs, err := s.resolve(bucket, objectPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, bucket, objectPath)
		}
		return "", fmt.Errorf("localfs: stat object: %w", err)
	}
	if s.baseURL == "" {
		return "", errors.New("localfs: base URL is not set")
	}
	if ttl <= 0 {
		ttl = storage.DefaultSignedURLTTL
	}
	expires := s.now().Add(ttl).Unix()
	key := objectKey(bucket, objectPath)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(key, expires))
	return s.baseURL + "/object/" + escapeKey(key) + "?" + q.Encode(), nil
}

// Handler returns the router that serves signed object URLs.
//
// Requests with a missing, invalid or expired signature get 403 Forbidden,
// which the cache's fetcher treats as a signal to re-sign the URL.
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/object/{bucket}/*", s.handleObject)
	r.Head("/object/{bucket}/*", s.handleObject)
	return r
}

func (s *Store) handleObject(w http.ResponseWriter, r *http.Request) {
	bucket := unescape(chi.URLParam(r, "bucket"))
	objectPath := unescape(chi.URLParam(r, "*"))
	key := objectKey(bucket, objectPath)

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil || !s.verify(key, expires, r.URL.Query().Get("sig")) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	if s.now().Unix() > expires {
		http.Error(w, "signature expired", http.StatusForbidden)
		return
	}

	abs, err := s.resolve(bucket, objectPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := os.Open(abs) //nolint:gosec // path is confined to root by resolve
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "open object", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat object", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, path.Base(objectPath), info.ModTime(), f)
}

func (s *Store) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) verify(key string, expires int64, sig string) bool {
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.sign(key, expires))
	return hmac.Equal(got, want)
}

// resolve maps bucket/objectPath to an absolute path under root.
func (s *Store) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("localfs: invalid bucket %q", bucket)
	}
	clean := path.Clean("/" + objectPath)
	if clean == "/" {
		return "", fmt.Errorf("localfs: invalid object path %q", objectPath)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

func objectKey(bucket, objectPath string) string {
	return bucket + "/" + strings.TrimPrefix(path.Clean("/"+objectPath), "/")
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
