package request

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/opencradle/cradle/pkg/log"
)

// UnregisteredUuidError indicates a serialized request referencing a uuid
// absent from the registry.
type UnregisteredUuidError struct {
	Uuid string
}

func (e *UnregisteredUuidError) Error() string {
	return fmt.Sprintf("unregistered uuid %q", e.Uuid)
}

// UuidCollisionError indicates two registrations for one uuid that disagree
// on the (create, save, load) triple.
type UuidCollisionError struct {
	Uuid string
}

func (e *UuidCollisionError) Error() string {
	return fmt.Sprintf("uuid collision on %q", e.Uuid)
}

// LoadFunc reconstructs a concrete request from its serialized JSON form.
type LoadFunc func(reg *Registry, data []byte) (Request, error)

// SaveFunc produces the canonical JSON form of a request.
type SaveFunc func(reg *Registry, req Request) ([]byte, error)

// Entry binds a uuid to its codec functions. Key identifies the triple:
// two entries with equal keys are interchangeable.
type Entry struct {
	Key  uintptr
	Save SaveFunc
	Load LoadFunc
}

// Registry maps uuids to codec entries. The uuid -> entry mapping is
// bijective within one registry; registrations are idempotent for equal
// triples and rejected for differing ones.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register installs an entry for a uuid. Re-registering with an equal
// triple is a silent no-op; a differing triple returns UuidCollisionError.
func (r *Registry) Register(uuid string, e Entry) error {
	if uuid == "" {
		return &UuidError{Msg: "cannot register an empty uuid"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[uuid]; ok {
		if old.Key == e.Key {
			return nil
		}
		return &UuidCollisionError{Uuid: uuid}
	}
	r.entries[uuid] = e
	return nil
}

// Replace installs an entry unconditionally. A differing existing triple
// is logged and overwritten; used when a catalog is reloaded in place.
func (r *Registry) Replace(uuid string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[uuid]; ok && old.Key != e.Key {
		lg := log.WithComponent("registry")
		lg.Warn().
			Str("uuid", uuid).
			Msg("replacing conflicting uuid registration")
	}
	r.entries[uuid] = e
}

// Unregister removes a uuid. Missing uuids are ignored.
func (r *Registry) Unregister(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, uuid)
}

// Lookup finds the entry for a uuid.
func (r *Registry) Lookup(uuid string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uuid]
	if !ok {
		return Entry{}, &UnregisteredUuidError{Uuid: uuid}
	}
	return e, nil
}

// Uuids returns all registered uuids.
func (r *Registry) Uuids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for u := range r.entries {
		out = append(out, u)
	}
	return out
}

// fnKey derives the identity token of a function value.
func fnKey(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
