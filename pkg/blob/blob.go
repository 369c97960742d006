package blob

import (
	"bytes"
	"fmt"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/opencradle/cradle/pkg/id"
)

// Unique-hash provenance tags. Blobs of different provenance must not
// collide even when their payloads match.
const (
	hashTagInline byte = 0x00
	hashTagFile   byte = 0x01
)

// Owner keeps a blob's bytes alive and stable in address for as long as the
// blob is reachable.
type Owner interface {
	// Bytes returns the owned byte region.
	Bytes() []byte

	// MappedFile returns the path of the backing file, or "" when the
	// bytes live in memory.
	MappedFile() string
}

// Blob is an immutable byte sequence with pluggable ownership.
// The zero Blob is empty.
type Blob struct {
	data  []byte
	owner Owner
}

// FromBytes takes ownership of b.
func FromBytes(b []byte) Blob {
	o := &byteVectorOwner{data: b}
	return Blob{data: o.data, owner: o}
}

// FromString takes ownership of a string's bytes.
func FromString(s string) Blob {
	o := &stringOwner{data: s}
	return Blob{data: []byte(o.data), owner: o}
}

// FromStatic wraps a byte region with static storage duration; the blob
// holds no ownership and its destructor is a no-op.
func FromStatic(b []byte) Blob {
	return Blob{data: b, owner: staticRegionOwner{data: b}}
}

// FromOwner builds a blob over a sub-range of an owner's bytes.
func FromOwner(o Owner, data []byte) Blob {
	return Blob{data: data, owner: o}
}

// Bytes returns the blob's contents. Callers must not mutate.
func (b Blob) Bytes() []byte {
	return b.data
}

// Size returns the number of bytes.
func (b Blob) Size() int {
	return len(b.data)
}

// Owner returns the ownership handle, possibly nil for an empty blob.
func (b Blob) Owner() Owner {
	return b.owner
}

// MappedFile returns the backing file path, or "" for in-memory blobs.
func (b Blob) MappedFile() string {
	if b.owner == nil {
		return ""
	}
	return b.owner.MappedFile()
}

// FileOffset returns the offset of the blob's bytes within its backing
// file. Zero for in-memory blobs.
func (b Blob) FileOffset() uint64 {
	if fo, ok := b.owner.(interface{ Offset() uint64 }); ok {
		return fo.Offset()
	}
	return 0
}

// Equals compares by length, then bytewise content. Owner identity does
// not participate.
func (b Blob) Equals(other id.Interface) bool {
	o, ok := other.(Blob)
	if !ok {
		return false
	}
	return len(b.data) == len(o.data) && bytes.Equal(b.data, o.data)
}

// LessThan orders by length first, then lexicographically on equal length.
func (b Blob) LessThan(other id.Interface) bool {
	o := other.(Blob)
	if len(b.data) != len(o.data) {
		return len(b.data) < len(o.data)
	}
	return bytes.Compare(b.data, o.data) < 0
}

func (b Blob) Hash() uint64 {
	return xxhash.Sum64(b.data)
}

// UpdateHash hashes a provenance tag followed by the content (in-memory)
// or the backing file path (file-backed).
func (b Blob) UpdateHash(h *id.UniqueHasher) {
	if path := b.MappedFile(); path != "" {
		h.EncodeTag(hashTagFile)
		h.EncodeBytes([]byte(path))
		return
	}
	h.EncodeTag(hashTagInline)
	h.EncodeBytes(b.data)
}

const stringPreviewLimit = 40

// String renders a summary suitable for logs.
func (b Blob) String() string {
	n := len(b.data)
	if n == 0 {
		return "0-byte blob"
	}
	if n <= stringPreviewLimit && isPrintable(b.data) {
		return fmt.Sprintf("%d-byte blob: %s", n, string(b.data))
	}
	limit := min(n, stringPreviewLimit/2)
	suffix := ""
	if limit < n {
		suffix = "..."
	}
	return fmt.Sprintf("%d-byte blob: %x%s", n, b.data[:limit], suffix)
}

func isPrintable(p []byte) bool {
	for _, c := range p {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			return false
		}
	}
	return true
}
