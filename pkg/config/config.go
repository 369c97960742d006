package config

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// Error indicates a malformed configuration: a missing mandatory key, a key
// with a value of the wrong type, or an unparseable config file.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "config error: " + e.Msg
}

func errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Recognized configuration keys. The map is open-ended: each layer interprets
// the keys it understands and ignores the rest.
const (
	KeyMemoryCacheUnusedSizeLimit = "memory_cache/unused_size_limit"
	KeySecondaryCacheFactory      = "secondary_cache/factory"
	KeyDiskCacheDirectory         = "disk_cache/directory"
	KeyDiskCacheSizeLimit         = "disk_cache/size_limit"
	KeyBlobCacheDirectory         = "blob_cache/directory"
	KeyHTTPCacheHost              = "http_cache/host"
	KeyHTTPCachePort              = "http_cache/port"
	KeyHTTPConcurrency            = "http_concurrency"
	KeyAsyncConcurrency           = "async_concurrency"
	KeyRPCPortNumber              = "rpclib/port_number"
	KeyRPCContained               = "rpclib/contained"
	KeyTesting                    = "testing"
)

// Defaults applied when a key is absent.
const (
	DefaultUnusedSizeLimit  = uint64(1) << 30 // 1 GiB
	DefaultHTTPConcurrency  = 36
	DefaultAsyncConcurrency = 20
)

// Config is a flat key->value map specifying the configuration for one or
// more service layers. Values are strings, unsigned numbers or booleans.
type Config struct {
	m map[string]any
}

// New creates a Config from a raw key->value map. Number values are
// normalized to uint64; other value types are rejected.
func New(m map[string]any) (Config, error) {
	norm := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := normalize(v)
		if err != nil {
			return Config{}, errorf("key %q: %v", k, err)
		}
		norm[k] = nv
	}
	return Config{m: norm}, nil
}

// MustNew is like New but panics on invalid input. For literals in tests.
func MustNew(m map[string]any) Config {
	cfg, err := New(m)
	if err != nil {
		panic(err)
	}
	return cfg
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case string, bool, uint64:
		return t, nil
	case int:
		if t < 0 {
			return nil, fmt.Errorf("negative number %d", t)
		}
		return uint64(t), nil
	case int64:
		if t < 0 {
			return nil, fmt.Errorf("negative number %d", t)
		}
		return uint64(t), nil
	case uint:
		return uint64(t), nil
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return nil, fmt.Errorf("number %v is not a non-negative integer", t)
		}
		return uint64(t), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Contains reports whether the key is present.
func (c Config) Contains(key string) bool {
	_, ok := c.m[key]
	return ok
}

// Map returns a copy of the underlying map, for passing the configuration
// on to another layer (e.g. across an RPC boundary).
func (c Config) Map() map[string]any {
	out := make(map[string]any, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// With returns a copy of the configuration with one key overridden.
func (c Config) With(key string, value any) Config {
	m := c.Map()
	m[key] = value
	cfg, err := New(m)
	if err != nil {
		// value came from a caller-side literal; surface loudly
		panic(err)
	}
	return cfg
}

func (c Config) OptionalString(key string) (string, bool, error) {
	v, ok := c.m[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, errorf("key %q holds %T, want string", key, v)
	}
	return s, true, nil
}

func (c Config) MandatoryString(key string) (string, error) {
	s, ok, err := c.OptionalString(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errorf("missing mandatory key %q", key)
	}
	return s, nil
}

func (c Config) StringOrDefault(key, def string) (string, error) {
	s, ok, err := c.OptionalString(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return s, nil
}

// OptionalNumber returns a numeric value. A string value is accepted when it
// parses as a human-readable byte size ("512MB", "1GiB").
func (c Config) OptionalNumber(key string) (uint64, bool, error) {
	v, ok := c.m[key]
	if !ok {
		return 0, false, nil
	}
	switch t := v.(type) {
	case uint64:
		return t, true, nil
	case string:
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(t)); err != nil {
			return 0, false, errorf("key %q: cannot parse %q as a size: %v", key, t, err)
		}
		return sz.Bytes(), true, nil
	default:
		return 0, false, errorf("key %q holds %T, want number", key, v)
	}
}

func (c Config) MandatoryNumber(key string) (uint64, error) {
	n, ok, err := c.OptionalNumber(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errorf("missing mandatory key %q", key)
	}
	return n, nil
}

func (c Config) NumberOrDefault(key string, def uint64) (uint64, error) {
	n, ok, err := c.OptionalNumber(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return n, nil
}

func (c Config) OptionalBool(key string) (bool, bool, error) {
	v, ok := c.m[key]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, errorf("key %q holds %T, want bool", key, v)
	}
	return b, true, nil
}

func (c Config) BoolOrDefault(key string, def bool) (bool, error) {
	b, ok, err := c.OptionalBool(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return def, nil
	}
	return b, nil
}

// Testing reports whether the configuration enables deterministic test paths.
func (c Config) Testing() bool {
	b, _ := c.BoolOrDefault(KeyTesting, false)
	return b
}
