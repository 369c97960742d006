package resolve

import (
	"sync"

	"github.com/opencradle/cradle/pkg/cache"
	"github.com/opencradle/cradle/pkg/remote"
)

// LockRegistry hands out ids for cache-record locks held on behalf of
// remote clients, so a value stays resolvable across independent RPC
// calls until the client releases it.
type LockRegistry struct {
	mu    sync.Mutex
	seq   int64
	locks map[int64]*cache.Lock
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[int64]*cache.Lock)}
}

// Add registers a lock and returns its id. A nil lock yields 0.
func (r *LockRegistry) Add(l *cache.Lock) int64 {
	if l == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.locks[r.seq] = l
	return r.seq
}

// Release drops the lock with the given id.
func (r *LockRegistry) Release(id int64) error {
	r.mu.Lock()
	l, ok := r.locks[id]
	delete(r.locks, id)
	r.mu.Unlock()
	if !ok {
		return remote.Errorf("unknown cache record id %d", id)
	}
	l.Release()
	return nil
}

// ReleaseAll drops every held lock.
func (r *LockRegistry) ReleaseAll() {
	r.mu.Lock()
	locks := r.locks
	r.locks = make(map[int64]*cache.Lock)
	r.mu.Unlock()
	for _, l := range locks {
		l.Release()
	}
}
