// Package value defines the dynamic value algebra flowing through request
// resolution: nil, bool, int64, float64, string, blob.Blob, []any and
// map[string]any. It provides content hashing, deep sizing, equality and
// the msgpack wire codec for computed results.
package value

import (
	"fmt"
	"sort"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/id"
)

// Normalize coerces a value produced by user code into the canonical
// algebra. Integers of any width become int64, float32 becomes float64.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, blob.Blob:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case []byte:
		return blob.FromBytes(t), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ne, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// UniqueHash feeds a value into a cryptographic hasher. Aggregates encode
// their size so that regrouped element sequences cannot collide.
func UniqueHash(h *id.UniqueHasher, v any) {
	switch t := v.(type) {
	case nil:
		h.EncodeTag(id.TagNil)
	case bool:
		id.UpdateBool(h, t)
	case int64:
		id.UpdateInt(h, t)
	case float64:
		id.UpdateFloat(h, t)
	case string:
		id.UpdateString(h, t)
	case blob.Blob:
		t.UpdateHash(h)
	case []any:
		h.EncodeTag(id.TagList)
		h.EncodeLen(len(t))
		for _, e := range t {
			UniqueHash(h, e)
		}
	case map[string]any:
		h.EncodeTag(id.TagMap)
		h.EncodeLen(len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			id.UpdateString(h, k)
			UniqueHash(h, t[k])
		}
	default:
		panic(fmt.Sprintf("UniqueHash: unsupported value type %T", v))
	}
}

// Digest returns the SHA-256 digest of a value, the CAS key.
func Digest(v any) [id.Size]byte {
	h := id.NewUniqueHasher()
	UniqueHash(h, v)
	return h.Digest()
}

// UniqueString returns the lowercase-hex digest of a value.
func UniqueString(v any) string {
	h := id.NewUniqueHasher()
	UniqueHash(h, v)
	return h.Hex()
}

const (
	sizeofScalar = 8
	// per-object bookkeeping estimate for strings, slices and maps
	sizeofHeader = 16
)

// DeepSize estimates the number of bytes a value occupies, including
// everything it references. Used for cache eviction accounting.
func DeepSize(v any) uint64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return sizeofScalar
	case string:
		return sizeofHeader + uint64(len(t))
	case blob.Blob:
		return sizeofHeader + uint64(t.Size())
	case []any:
		total := uint64(sizeofHeader)
		for _, e := range t {
			total += DeepSize(e)
		}
		return total
	case map[string]any:
		total := uint64(sizeofHeader)
		for k, e := range t {
			total += sizeofHeader + uint64(len(k)) + DeepSize(e)
		}
		return total
	default:
		panic(fmt.Sprintf("DeepSize: unsupported value type %T", v))
	}
}

// Equal compares two values structurally.
func Equal(a, b any) bool {
	switch ta := a.(type) {
	case nil:
		return b == nil
	case bool, int64, float64, string:
		return a == b
	case blob.Blob:
		tb, ok := b.(blob.Blob)
		return ok && ta.Equals(tb)
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
