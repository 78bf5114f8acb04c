package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mvstudio/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeS3 answers the handful of path-style calls the statement store makes
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
	ctypes   map[string]string
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	f := &fakeS3{buckets: map[string]bool{}, ctypes: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)

		switch {
		case r.Method == http.MethodHead && !f.buckets[r.URL.Path[1:]]:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && strings.Count(r.URL.Path, "/") == 1:
			f.buckets[r.URL.Path[1:]] = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			f.ctypes[r.URL.Path] = r.Header.Get("Content-Type")
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func testConfig(endpoint string) config.StorageConfig {
	return config.StorageConfig{
		Endpoint:     endpoint,
		Bucket:       "statements",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	}
}

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ObjectStorage(ctx, config.StorageConfig{AccessKey: "k", SecretKey: "s"})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewS3ObjectStorage(ctx, config.StorageConfig{Bucket: "b", AccessKey: "k"})
	assert.ErrorContains(t, err, "secret key")

	s, err := NewS3ObjectStorage(ctx, testConfig("localhost:9000"))
	require.NoError(t, err)
	assert.Equal(t, "statements", s.Bucket())
	assert.Equal(t, defaultPresignTTL, s.presignTTL)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL("", false))
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://minio:9000", endpointURL("http://minio:9000", true))
}

func TestS3ObjectStorage_EnsureBucketAndUpload(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeS3(t)

	s, err := NewS3ObjectStorage(ctx, testConfig(srv.URL), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.Upload(ctx, "statements/u1/a.csv", []byte("created_at\n"), "text/csv"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{
		"HEAD /statements",
		"PUT /statements",
		"HEAD /statements",
		"PUT /statements/statements/u1/a.csv",
	}, fake.requests)
	assert.Equal(t, "text/csv", fake.ctypes["/statements/statements/u1/a.csv"])
}

func TestS3ObjectStorage_GenerateDownloadURL(t *testing.T) {
	ctx := context.Background()
	s, err := NewS3ObjectStorage(ctx, testConfig("http://localhost:9000"))
	require.NoError(t, err)

	link, expiresAt, err := s.GenerateDownloadURL(ctx, "statements/u1/a.csv", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/statements/statements/u1/a.csv", u.Path)
	assert.Equal(t, "60", u.Query().Get("X-Amz-Expires"))

	_, _, err = s.GenerateDownloadURL(ctx, "", 0)
	assert.Error(t, err)
}

func TestMemoryObjectStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryObjectStorage()

	_, _, err := m.GenerateDownloadURL(ctx, "missing", 0)
	assert.Error(t, err)
	assert.Error(t, m.Upload(ctx, "", nil, "text/csv"))

	data := []byte("a,b\n")
	require.NoError(t, m.Upload(ctx, "k", data, "text/csv"))
	data[0] = 'x'

	got, contentType, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "a,b\n", string(got))
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, 1, m.Len())

	link, _, err := m.GenerateDownloadURL(ctx, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, "memory://k", link)
}
