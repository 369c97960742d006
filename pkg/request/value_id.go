package request

import (
	"github.com/opencradle/cradle/pkg/id"
	"github.com/opencradle/cradle/pkg/value"
)

// valueID is the captured identity of a value request: the literal itself.
// Ordering falls back to digest comparison, which gives a stable total
// order across all value kinds.
type valueID struct {
	v any
}

func (vi *valueID) Equals(other id.Interface) bool {
	o, ok := other.(*valueID)
	return ok && value.Equal(vi.v, o.v)
}

func (vi *valueID) LessThan(other id.Interface) bool {
	o := other.(*valueID)
	return value.UniqueString(vi.v) < value.UniqueString(o.v)
}

func (vi *valueID) Hash() uint64 {
	d := value.Digest(vi.v)
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(d[i])
	}
	return h
}

func (vi *valueID) UpdateHash(h *id.UniqueHasher) {
	value.UniqueHash(h, vi.v)
}
