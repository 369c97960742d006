package id

// Interface is implemented by anything that can serve as a cache key:
// it supports equality, ordering, a fast 64-bit hash for in-memory maps,
// and a cryptographic hash for content-addressed keys.
type Interface interface {
	// Equals compares by value. The other id is always of the same
	// concrete type; callers never mix implementations under one key space.
	Equals(other Interface) bool

	// LessThan imposes a total order among ids of the same concrete type.
	LessThan(other Interface) bool

	// Hash returns a fast, non-cryptographic hash. Collisions are allowed.
	Hash() uint64

	// UpdateHash feeds this id into a cryptographic hasher.
	UpdateHash(h *UniqueHasher)
}

// UniqueString returns the lowercase-hex SHA-256 digest of an id, the key
// format used by secondary storage.
func UniqueString(i Interface) string {
	h := NewUniqueHasher()
	i.UpdateHash(h)
	return h.Hex()
}

// Digest returns the 32-byte SHA-256 digest of an id.
func Digest(i Interface) [Size]byte {
	h := NewUniqueHasher()
	i.UpdateHash(h)
	return h.Digest()
}
