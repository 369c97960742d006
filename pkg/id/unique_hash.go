package id

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Size is the length in bytes of a unique-hash digest.
const Size = sha256.Size

// HexSize is the length of the lowercase-hex form of a digest.
const HexSize = 2 * Size

// Type tags prefixed to encoded values so that different types with the
// same bitwise representation cannot collide. Aggregates additionally
// encode their size, so that element regrouping cannot collide either.
const (
	TagBool   byte = 'b'
	TagInt    byte = 'i'
	TagFloat  byte = 'f'
	TagString byte = 's'
	TagBlob   byte = 'B'
	TagList   byte = 'l'
	TagMap    byte = 'm'
	TagNil    byte = 'n'
)

// UniqueHasher produces a cryptographic-strength hash that prevents
// collisions between different items written to a content-addressed store.
type UniqueHasher struct {
	impl     hash.Hash
	finished bool
	digest   [Size]byte
}

func NewUniqueHasher() *UniqueHasher {
	return &UniqueHasher{impl: sha256.New()}
}

// EncodeBytes feeds raw bytes into the hash.
func (h *UniqueHasher) EncodeBytes(p []byte) {
	if h.finished {
		panic("UniqueHasher: encode after Digest")
	}
	h.impl.Write(p)
}

// EncodeTag feeds a single type-tag byte into the hash.
func (h *UniqueHasher) EncodeTag(tag byte) {
	h.EncodeBytes([]byte{tag})
}

// EncodeLen feeds an aggregate size into the hash.
func (h *UniqueHasher) EncodeLen(n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.EncodeBytes(buf[:])
}

// Combine feeds another digest into the hash.
func (h *UniqueHasher) Combine(digest []byte) {
	h.EncodeBytes(digest)
}

// Digest finishes the hash and returns the 32-byte result. The hasher
// cannot be written to afterwards.
func (h *UniqueHasher) Digest() [Size]byte {
	if !h.finished {
		h.impl.Sum(h.digest[:0])
		h.finished = true
	}
	return h.digest
}

// Hex returns the lowercase-hex form of the digest (64 characters).
func (h *UniqueHasher) Hex() string {
	d := h.Digest()
	return hex.EncodeToString(d[:])
}

// Primitive encoders. Numeric values are hashed as their little-endian
// bytes; strings as their content. The type tag keeps producers consistent.

func UpdateBool(h *UniqueHasher, v bool) {
	h.EncodeTag(TagBool)
	if v {
		h.EncodeBytes([]byte{1})
	} else {
		h.EncodeBytes([]byte{0})
	}
}

func UpdateInt(h *UniqueHasher, v int64) {
	h.EncodeTag(TagInt)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	h.EncodeBytes(buf[:])
}

func UpdateFloat(h *UniqueHasher, v float64) {
	h.EncodeTag(TagFloat)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	h.EncodeBytes(buf[:])
}

func UpdateString(h *UniqueHasher, v string) {
	h.EncodeTag(TagString)
	h.EncodeBytes([]byte(v))
}
