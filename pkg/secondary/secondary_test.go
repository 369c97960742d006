package secondary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/config"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemory("simple", true)
	assert.Equal(t, "simple", s.Name())
	assert.True(t, s.AllowBlobFiles())

	_, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, testKey, blob.FromString("payload")))
	v, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(v.Bytes()))
	assert.Equal(t, 1, s.Size())

	require.NoError(t, s.Clear())
	assert.Zero(t, s.Size())
}

func TestBoltStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewBolt(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.AllowBlobFiles())

	_, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, testKey, blob.FromString("on disk")))
	v, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "on disk", string(v.Bytes()))

	require.NoError(t, s.Clear())
	_, ok, err = s.Read(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltLRUTrim(t *testing.T) {
	ctx := context.Background()
	// Room for roughly two 100-byte payloads.
	s, err := NewBolt(t.TempDir(), 200)
	require.NoError(t, err)
	defer s.Close()

	payload := blob.FromBytes(make([]byte, 100))
	keys := []string{"k0", "k1", "k2"}
	for _, k := range keys {
		require.NoError(t, s.Write(ctx, k, payload))
	}

	// Writing k2 pushed the store over budget; k0 was the oldest.
	_, ok, err := s.Read(ctx, "k0")
	require.NoError(t, err)
	assert.False(t, ok, "least recently used entry should be gone")

	// Touching k1 makes k2 the next eviction candidate.
	_, ok, err = s.Read(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Write(ctx, "k3", payload))

	_, ok, err = s.Read(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Read(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = s.Read(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoltSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBolt(dir, 1<<20)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, testKey, blob.FromString("durable")))
	require.NoError(t, s.Close())

	s2, err := NewBolt(dir, 1<<20)
	require.NoError(t, err)
	defer s2.Close()
	v, ok, err := s2.Read(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "durable", string(v.Bytes()))
}

func TestHTTPStorage(t *testing.T) {
	ctx := context.Background()
	store := make(map[string][]byte)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		switch r.Method {
		case http.MethodGet:
			if data, ok := store[key]; ok {
				w.Write(data)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			store[key] = data
		}
	}))
	defer srv.Close()

	s := NewHTTP(srv.URL)
	assert.False(t, s.AllowBlobFiles())

	_, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, testKey, blob.FromString("remote")))
	v, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "remote", string(v.Bytes()))
}

func TestHTTPStorageErrors(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	s := NewHTTP(srv.URL)
	_, _, err := s.Read(ctx, testKey)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTeapot, statusErr.Code)

	// Nothing listening: a request failure, distinct from a bad status.
	dead := NewHTTP("http://localhost:1")
	_, _, err = dead.Read(ctx, testKey)
	var reqErr *HTTPRequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestHTTPStorageMock(t *testing.T) {
	ctx := context.Background()
	s := NewHTTP("http://localhost:1")
	s.Mock("mocked body")

	v, ok, err := s.Read(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mocked body", string(v.Bytes()))
	require.NoError(t, s.Write(ctx, testKey, blob.FromString("ignored")))
}

func TestFactorySelection(t *testing.T) {
	s, err := CreateFromConfig(config.MustNew(nil))
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = CreateFromConfig(config.MustNew(map[string]any{
		config.KeySecondaryCacheFactory: "memory",
	}))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "memory", s.Name())

	s, err = CreateFromConfig(config.MustNew(map[string]any{
		config.KeySecondaryCacheFactory: "bolt",
		config.KeyDiskCacheDirectory:    t.TempDir(),
	}))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "bolt", s.Name())
	s.(*Bolt).Close()

	_, err = CreateFromConfig(config.MustNew(map[string]any{
		config.KeySecondaryCacheFactory: "nonsense",
	}))
	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)

	_, err = CreateFromConfig(config.MustNew(map[string]any{
		config.KeySecondaryCacheFactory: "bolt",
	}))
	assert.ErrorAs(t, err, &cfgErr)
}
