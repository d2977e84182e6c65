// Package testutil provides shared fixtures for cache tests: an in-memory
// metadata store and a signed-URL object server.
package testutil

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/assetcache/metadata"
	"github.com/meigma/assetcache/storage/localfs"
)

// Bucket is the bucket used by fixture assets.
const Bucket = "assets"

// SHA256 returns the hex SHA-256 of data.
func SHA256(data []byte) string {
	return digest.SHA256.FromBytes(data).Encoded()
}

// NewAsset returns PNG metadata for content stored in Bucket at
// uploads/<id>.png with its SHA-256 recorded.
func NewAsset(id string, content []byte) metadata.Asset {
	return metadata.Asset{
		ID:          id,
		BucketName:  Bucket,
		StoragePath: "uploads/" + id + ".png",
		FileSize:    int64(len(content)),
		MimeType:    "image/png",
		ContentHash: SHA256(content),
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// MockStore is a concurrency-safe metadata.Store over a fixed set of assets.
type MockStore struct {
	mu     sync.Mutex
	assets map[string]map[string]metadata.Asset // user -> id -> asset
	calls  [][]string
	err    error
}

var _ metadata.Store = (*MockStore)(nil)

// NewMockStore creates a store holding assets owned by userID.
func NewMockStore(userID string, assets ...metadata.Asset) *MockStore {
	s := &MockStore{assets: make(map[string]map[string]metadata.Asset)}
	for _, a := range assets {
		s.Add(userID, a)
	}
	return s
}

// Add stores a as owned by userID.
func (s *MockStore) Add(userID string, a metadata.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assets[userID] == nil {
		s.assets[userID] = make(map[string]metadata.Asset)
	}
	s.assets[userID][a.ID] = a
}

// SetError makes every BulkFetch fail with err.
func (s *MockStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// BulkFetch implements metadata.Store.
func (s *MockStore) BulkFetch(_ context.Context, ids []string, userID string) ([]metadata.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, slices.Clone(ids))
	if s.err != nil {
		return nil, s.err
	}
	var out []metadata.Asset
	for _, id := range ids {
		if a, ok := s.assets[userID][id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Calls returns the ID lists passed to each BulkFetch call.
func (s *MockStore) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// ObjectServer serves a localfs.Store over an httptest server and lets
// tests inject failures.
type ObjectServer struct {
	*localfs.Store
	Server *httptest.Server

	requests atomic.Int64

	mu       sync.Mutex
	failures []int
	hook     func(r *http.Request)
}

// NewObjectServer starts a server rooted in a temp dir. It is closed when
// the test ends.
func NewObjectServer(t testing.TB, opts ...localfs.Option) *ObjectServer {
	t.Helper()
	store, err := localfs.New(t.TempDir(), "", opts...)
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	s := &ObjectServer{Store: store}
	handler := store.Handler()
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			handler.ServeHTTP(w, r)
			return
		}
		s.requests.Add(1)

		s.mu.Lock()
		hook := s.hook
		code := 0
		if len(s.failures) > 0 {
			code, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if code != 0 {
			http.Error(w, http.StatusText(code), code)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	store.SetBaseURL(s.Server.URL)
	t.Cleanup(s.Server.Close)
	return s
}

// PutObject stores content at bucket/path.
func (s *ObjectServer) PutObject(t testing.TB, bucket, path string, content []byte) {
	t.Helper()
	if err := s.Put(bucket, path, bytes.NewReader(content)); err != nil {
		t.Fatalf("Put(%s/%s) error = %v", bucket, path, err)
	}
}

// PutAsset stores content under a's bucket and storage path.
func (s *ObjectServer) PutAsset(t testing.TB, a metadata.Asset, content []byte) {
	t.Helper()
	s.PutObject(t, a.BucketName, a.StoragePath, content)
}

// FailNext makes the next object requests fail with the given status codes,
// one per request, before normal serving resumes.
func (s *ObjectServer) FailNext(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, codes...)
}

// OnRequest sets a hook called before each object request is served.
func (s *ObjectServer) OnRequest(fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Requests returns the number of object requests received.
func (s *ObjectServer) Requests() int64 {
	return s.requests.Load()
}
