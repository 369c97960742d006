package blob

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencradle/cradle/pkg/id"
)

func TestBlobEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Blob
		equal bool
	}{
		{
			name:  "same content different owners",
			a:     FromBytes([]byte("abc")),
			b:     FromString("abc"),
			equal: true,
		},
		{
			name:  "different content same length",
			a:     FromBytes([]byte("abc")),
			b:     FromBytes([]byte("abd")),
			equal: false,
		},
		{
			name:  "different lengths",
			a:     FromBytes([]byte("abc")),
			b:     FromBytes([]byte("abcd")),
			equal: false,
		},
		{
			name:  "both empty",
			a:     Blob{},
			b:     FromBytes(nil),
			equal: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equals(tt.b))
		})
	}
}

func TestBlobOrdering(t *testing.T) {
	short := FromBytes([]byte("zz"))
	long := FromBytes([]byte("aaa"))
	// length dominates
	assert.True(t, short.LessThan(long))
	assert.False(t, long.LessThan(short))

	a := FromBytes([]byte("abc"))
	b := FromBytes([]byte("abd"))
	assert.True(t, a.LessThan(b))
	assert.False(t, b.LessThan(a))
	assert.False(t, a.LessThan(a))
}

func TestBlobString(t *testing.T) {
	assert.Equal(t, "0-byte blob", Blob{}.String())
	assert.Equal(t, "5-byte blob: hello", FromString("hello").String())
	s := FromBytes([]byte{0x00, 0x01}).String()
	assert.Contains(t, s, "2-byte blob")
	assert.Contains(t, s, "0001")
}

func TestStaticBlob(t *testing.T) {
	region := []byte("static data")
	b := FromStatic(region)
	assert.Equal(t, region, b.Bytes())
	assert.Empty(t, b.MappedFile())
}

func TestBlobUniqueHashProvenance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob_0")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	reader, err := OpenFileReader(path, 0, -1)
	require.NoError(t, err)
	defer reader.Close()

	inline := FromBytes([]byte("data"))
	fileBacked := reader.Blob()

	// Same payload, different provenance: digests must differ.
	assert.NotEqual(t, uniqueHex(inline), uniqueHex(fileBacked))
	assert.Equal(t, uniqueHex(inline), uniqueHex(FromString("data")))
}

func TestFileWriterRoundTrip(t *testing.T) {
	dir, err := NewDirectory(t.TempDir())
	require.NoError(t, err)

	w, err := dir.NewWriter(4)
	require.NoError(t, err)
	copy(w.Bytes(), "abcd")
	require.NoError(t, w.OnWriteCompleted())
	assert.True(t, w.Completed())

	b := w.Blob()
	assert.Equal(t, []byte("abcd"), b.Bytes())
	assert.Equal(t, w.MappedFile(), b.MappedFile())

	r, err := OpenFileReader(w.MappedFile(), 0, -1)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, b.Equals(r.Blob()))
	require.NoError(t, w.Close())
}

func TestDirectoryAllocation(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "blob_7"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "blob_2"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "unrelated"), []byte("x"), 0o644))

	dir, err := NewDirectory(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "blob_8"), dir.AllocateFile())
	assert.Equal(t, filepath.Join(base, "blob_9"), dir.AllocateFile())
}

func TestBlobJSONInline(t *testing.T) {
	orig := FromBytes([]byte{1, 2, 3, 4})
	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"as_file":false`)

	var back Blob
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, orig.Equals(back))
}

func TestBlobJSONFileBacked(t *testing.T) {
	dir, err := NewDirectory(t.TempDir())
	require.NoError(t, err)
	w, err := dir.NewWriter(3)
	require.NoError(t, err)
	copy(w.Bytes(), "xyz")
	require.NoError(t, w.OnWriteCompleted())

	data, err := json.Marshal(w.Blob())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"as_file":true`)

	var back Blob
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []byte("xyz"), back.Bytes())
	assert.Equal(t, w.MappedFile(), back.MappedFile())
}

func uniqueHex(b Blob) string {
	h := id.NewUniqueHasher()
	b.UpdateHash(h)
	return h.Hex()
}
