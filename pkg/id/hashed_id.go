package id

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// HashedID is a generic Interface implementation representing an ordered
// sequence of arguments. Supported argument kinds: bool, int64, float64,
// string, and nested Interface values (including captured sub-identities).
//
// Two HashedIDs compare equal iff their argument sequences compare equal
// pairwise; ordering is lexicographic over the sequence.
type HashedID struct {
	args []any
}

// NewHashedID captures the given arguments. Integer arguments of any width
// are normalized to int64; float32 to float64. Unsupported kinds panic:
// the argument set of a request class is fixed at compile time, so this is
// a programming error, not input validation.
func NewHashedID(args ...any) *HashedID {
	norm := make([]any, len(args))
	for i, a := range args {
		norm[i] = normalizeArg(a)
	}
	return &HashedID{args: norm}
}

func normalizeArg(a any) any {
	switch t := a.(type) {
	case bool, int64, float64, string, Interface:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	default:
		panic(fmt.Sprintf("HashedID: unsupported argument type %T", a))
	}
}

// Args returns the captured argument sequence.
func (h *HashedID) Args() []any {
	return h.args
}

func (h *HashedID) Equals(other Interface) bool {
	o, ok := other.(*HashedID)
	if !ok || len(h.args) != len(o.args) {
		return false
	}
	for i := range h.args {
		if !argEqual(h.args[i], o.args[i]) {
			return false
		}
	}
	return true
}

func (h *HashedID) LessThan(other Interface) bool {
	o := other.(*HashedID)
	n := min(len(h.args), len(o.args))
	for i := 0; i < n; i++ {
		if c := argCompare(h.args[i], o.args[i]); c != 0 {
			return c < 0
		}
	}
	return len(h.args) < len(o.args)
}

func (h *HashedID) Hash() uint64 {
	acc := uint64(len(h.args))
	for _, a := range h.args {
		acc = combineHashes(acc, argHash(a))
	}
	return acc
}

func (h *HashedID) UpdateHash(hasher *UniqueHasher) {
	// The arity goes in first: regrouping arguments across nested ids
	// must change the digest.
	hasher.EncodeTag(TagList)
	hasher.EncodeLen(len(h.args))
	for _, a := range h.args {
		switch t := a.(type) {
		case bool:
			UpdateBool(hasher, t)
		case int64:
			UpdateInt(hasher, t)
		case float64:
			UpdateFloat(hasher, t)
		case string:
			UpdateString(hasher, t)
		case Interface:
			t.UpdateHash(hasher)
		}
	}
}

func argEqual(a, b any) bool {
	ai, aok := a.(Interface)
	bi, bok := b.(Interface)
	if aok != bok {
		return false
	}
	if aok {
		return ai.Equals(bi)
	}
	return a == b
}

func argCompare(a, b any) int {
	ra, rb := argRank(a), argRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ta := a.(type) {
	case bool:
		tb := b.(bool)
		switch {
		case ta == tb:
			return 0
		case !ta:
			return -1
		default:
			return 1
		}
	case int64:
		tb := b.(int64)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	case float64:
		tb := b.(float64)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	case string:
		tb := b.(string)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	case Interface:
		tb := b.(Interface)
		if ta.Equals(tb) {
			return 0
		}
		if ta.LessThan(tb) {
			return -1
		}
		return 1
	}
	return 0
}

func argRank(a any) int {
	switch a.(type) {
	case bool:
		return 0
	case int64:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func argHash(a any) uint64 {
	switch t := a.(type) {
	case bool:
		if t {
			return hashBytes([]byte{TagBool, 1})
		}
		return hashBytes([]byte{TagBool, 0})
	case int64:
		var buf [9]byte
		buf[0] = TagInt
		binary.LittleEndian.PutUint64(buf[1:], uint64(t))
		return hashBytes(buf[:])
	case float64:
		var buf [9]byte
		buf[0] = TagFloat
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(t))
		return hashBytes(buf[:])
	case string:
		d := xxhash.New()
		d.Write([]byte{TagString})
		d.WriteString(t)
		return d.Sum64()
	case Interface:
		return t.Hash()
	}
	return 0
}

func hashBytes(p []byte) uint64 {
	return xxhash.Sum64(p)
}

// combineHashes mixes hash values the way boost::hash_combine does.
func combineHashes(seed, h uint64) uint64 {
	return seed ^ (h + 0x9e3779b97f4a7c15 + (seed << 12) + (seed >> 4))
}

// CombineHashes exposes the mixing function for other hash producers.
func CombineHashes(seed, h uint64) uint64 {
	return combineHashes(seed, h)
}
