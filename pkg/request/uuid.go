package request

import (
	"fmt"
	"strings"
)

// CachingLevel controls how a request's result is cached.
type CachingLevel int

const (
	// LevelNone disables caching for the request.
	LevelNone CachingLevel = iota
	// LevelMemory caches the result in the memory cache only.
	LevelMemory
	// LevelFull caches the result in the memory cache and in secondary
	// storage.
	LevelFull
)

func (l CachingLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMemory:
		return "memory"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("caching_level(%d)", int(l))
	}
}

// levelExts are appended to a uuid base at finalization.
var levelExts = map[CachingLevel]string{
	LevelNone:   "+none",
	LevelMemory: "+mem",
	LevelFull:   "+full",
}

// UuidError indicates an invalid uuid base or a misused uuid.
type UuidError struct {
	Msg string
}

func (e *UuidError) Error() string {
	return "uuid error: " + e.Msg
}

// Version is combined with every uuid base so that uuids differ across
// builds whose request implementations may differ. Settable at link time;
// empty leaves bases unversioned (deterministic test builds).
var Version string

// Uuid identifies a request class and its function binding. The full string
// is the base, an optional build-version suffix, a caching-level extension
// and an optional +flattened extension.
//
// The zero Uuid is "empty": not serializable and not disk-cacheable.
type Uuid struct {
	base      string
	version   string
	level     CachingLevel
	hasLevel  bool
	flattened bool
}

// NewUuid creates a uuid from a base string, which must be non-empty and
// must not contain '+' ('+' prefixes an extension).
func NewUuid(base string) (Uuid, error) {
	return NewVersionedUuid(base, Version)
}

// NewVersionedUuid creates a uuid whose version suffix is chosen by the
// caller, who promises to update it when the request's observable
// behaviour changes.
func NewVersionedUuid(base, version string) (Uuid, error) {
	if base == "" {
		return Uuid{}, &UuidError{Msg: "uuid base is empty"}
	}
	if strings.ContainsRune(base, '+') {
		return Uuid{}, &UuidError{Msg: fmt.Sprintf("invalid character(s) in uuid base %q", base)}
	}
	return Uuid{base: base, version: version}, nil
}

// MustUuid is NewUuid panicking on error. For compile-time constant bases.
func MustUuid(base string) Uuid {
	u, err := NewUuid(base)
	if err != nil {
		panic(err)
	}
	return u
}

// Empty reports whether this is the empty uuid.
func (u Uuid) Empty() bool {
	return u.base == ""
}

// Serializable reports whether a request with this uuid can be serialized.
func (u Uuid) Serializable() bool {
	return !u.Empty()
}

// DiskCacheable reports whether a request with this uuid can be stored in
// secondary storage.
func (u Uuid) DiskCacheable() bool {
	return !u.Empty()
}

// WithLevel returns a copy carrying a caching-level extension.
func (u Uuid) WithLevel(level CachingLevel) Uuid {
	u.level = level
	u.hasLevel = true
	return u
}

// WithFlattened returns a copy carrying the +flattened extension, used
// when a request tree is collapsed for shipment to a peer that only knows
// the flattened form.
func (u Uuid) WithFlattened() Uuid {
	if u.flattened {
		panic("uuid already flattened")
	}
	u.flattened = true
	return u
}

// Base returns the unextended, unversioned base string.
func (u Uuid) Base() string {
	return u.base
}

// Str returns the full uuid string: base, version and extensions.
func (u Uuid) Str() string {
	if u.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString(u.base)
	if u.version != "" {
		b.WriteString("@")
		b.WriteString(u.version)
	}
	if u.hasLevel {
		b.WriteString(levelExts[u.level])
	}
	if u.flattened {
		b.WriteString("+flattened")
	}
	return b.String()
}

// Combined combines the uuids of a main request and a subrequest; nested
// function requests contribute to their parent's effective uuid.
func Combined(main, sub Uuid) Uuid {
	if main.Empty() || sub.Empty() {
		return Uuid{}
	}
	c := main
	c.base = main.base + "/" + sub.base
	return c
}
