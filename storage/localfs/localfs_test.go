package localfs

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetcache/storage"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *httptest.Server) {
	t.Helper()
	s, err := New(t.TempDir(), "", opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	s.SetBaseURL(srv.URL)
	return s, srv
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestSignedURLRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Put("assets", "user/1/frame 01.png", bytes.NewReader([]byte("pixels"))))

	u, err := s.CreateSignedURL(context.Background(), "assets", "user/1/frame 01.png", time.Minute)
	require.NoError(t, err)

	status, body := get(t, u)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []byte("pixels"), body)
}

func TestTamperedSignatureIsForbidden(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Put("assets", "a.bin", bytes.NewReader([]byte("x"))))
	u, err := s.CreateSignedURL(context.Background(), "assets", "a.bin", time.Minute)
	require.NoError(t, err)

	status, _ := get(t, strings.Replace(u, "sig=", "sig=00", 1))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = get(t, strings.Replace(u, "/a.bin", "/b.bin", 1))
	assert.Equal(t, http.StatusForbidden, status, "signature is bound to the object key")
}

func TestExpiredSignatureIsForbidden(t *testing.T) {
	t.Parallel()

	var now atomic.Int64
	now.Store(1_700_000_000)
	clock := func() time.Time { return time.Unix(now.Load(), 0) }
	s, _ := newTestStore(t, WithClock(clock), WithSecret([]byte("k")))
	require.NoError(t, s.Put("assets", "a.bin", bytes.NewReader([]byte("x"))))

	u, err := s.CreateSignedURL(context.Background(), "assets", "a.bin", time.Minute)
	require.NoError(t, err)

	now.Add(int64((2 * time.Minute).Seconds()))
	status, _ := get(t, u)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCreateSignedURLMissingObject(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.CreateSignedURL(context.Background(), "assets", "nope.bin", time.Minute)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestResolveRejectsEscapes(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir(), "http://example.invalid")
	require.NoError(t, err)

	_, err = s.resolve("..", "x")
	assert.Error(t, err)
	_, err = s.resolve("a/b", "x")
	assert.Error(t, err)

	abs, err := s.resolve("assets", "../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(abs, s.root), "cleaned path stays under root: %s", abs)
}
