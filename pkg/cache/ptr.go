package cache

import (
	"context"
	"sync"

	"github.com/opencradle/cradle/pkg/id"
)

// Ptr is a live reference to an AC record. While at least one Ptr (or
// Lock) exists for a record, the record cannot be evicted. Ptrs are not
// safe for concurrent use; each resolution holds its own.
type Ptr struct {
	rec      *record
	released sync.Once
}

// Key returns the record's key.
func (p *Ptr) Key() id.Interface {
	return p.rec.key
}

// State returns the record's current state.
func (p *Ptr) State() State {
	c := p.rec.owner
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.rec.state
}

// Await waits for the record's single-flight task, starting it if nobody
// has. On success the value has been published to the CAS.
func (p *Ptr) Await(ctx context.Context) (any, error) {
	c := p.rec.owner
	c.mu.Lock()
	task := p.rec.task
	c.mu.Unlock()
	return task.Await(ctx)
}

// Value returns the published value when the record is Ready.
func (p *Ptr) Value() (any, bool) {
	c := p.rec.owner
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.rec.state != Ready || p.rec.cas == nil {
		return nil, false
	}
	return p.rec.cas.value, true
}

// Release drops the reference. Idempotent.
func (p *Ptr) Release() {
	p.released.Do(func() {
		p.rec.owner.release(p.rec)
	})
}

// Lock pins the record beyond this Ptr's lifetime: eviction requires both
// the reference count and the lock count to be zero. Used when a remote
// client needs a value to stay resolvable across independent RPC calls.
func (p *Ptr) Lock() *Lock {
	p.rec.owner.addLock(p.rec)
	return &Lock{rec: p.rec}
}

// Lock is an explicit eviction pin on an AC record.
type Lock struct {
	rec      *record
	released sync.Once
}

// Release drops the pin. Idempotent.
func (l *Lock) Release() {
	l.released.Do(func() {
		l.rec.owner.releaseLock(l.rec)
	})
}
