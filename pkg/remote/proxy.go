package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/config"
)

// Error indicates a failure on a remote peer, or while communicating with
// one. Retryable errors may be retried by the proxy retrier.
type Error struct {
	Msg       string
	Retryable bool
}

func (e *Error) Error() string {
	return "remote error: " + e.Msg
}

// Errorf builds a non-retryable remote error.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// SubContext describes a child node in an async context tree on a remote:
// its id, and whether it represents a request (as opposed to a plain
// value).
type SubContext struct {
	ID        async.ID
	IsRequest bool
}

// SerializedResult carries a resolution result across a process boundary:
// the msgpack-encoded value, plus the server-side cache-record id when the
// caller asked for the record to stay pinned (0 when unset).
type SerializedResult struct {
	Data     []byte
	RecordID int64
}

// Proxy reaches a peer capable of resolving serialized requests,
// synchronously and asynchronously. All calls return an error on failure;
// blocking calls honor the context.
type Proxy interface {
	// Name returns the proxy's registered name.
	Name() string

	// ResolveSync resolves a serialized request and returns the
	// serialized result.
	ResolveSync(ctx context.Context, cfg config.Config, seriReq []byte) (SerializedResult, error)

	// SubmitAsync submits a request for asynchronous resolution and
	// returns the remote id of the root context.
	SubmitAsync(ctx context.Context, cfg config.Config, seriReq []byte) (async.ID, error)

	// GetSubContexts returns the child contexts of the given subtree
	// root. Valid once the root reports SUBS_RUNNING or later.
	GetSubContexts(ctx context.Context, aid async.ID) ([]SubContext, error)

	// GetAsyncStatus returns the status of the given context.
	GetAsyncStatus(ctx context.Context, aid async.ID) (async.Status, error)

	// GetAsyncErrorMessage returns the failure message; only valid when
	// the status is ERROR.
	GetAsyncErrorMessage(ctx context.Context, aid async.ID) (string, error)

	// GetAsyncResponse returns the resolution result; only valid when
	// the root's status is FINISHED.
	GetAsyncResponse(ctx context.Context, rootID async.ID) (SerializedResult, error)

	// RequestCancellation asks for the resolution owning the given
	// context to be cancelled.
	RequestCancellation(ctx context.Context, aid async.ID) error

	// FinishAsync releases the server-side administration for a
	// resolution tree. Must be called even after failures.
	FinishAsync(ctx context.Context, rootID async.ID) error

	// ReleaseCacheRecord drops a cache-record pin previously returned in
	// a SerializedResult.
	ReleaseCacheRecord(ctx context.Context, recordID int64) error
}

// Registry owns named proxies.
type Registry struct {
	mu      sync.RWMutex
	proxies map[string]Proxy
}

func NewRegistry() *Registry {
	return &Registry{proxies: make(map[string]Proxy)}
}

// Register installs a proxy under its name, replacing any previous one.
func (r *Registry) Register(p Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[p.Name()] = p
}

// Find returns the proxy registered under name.
func (r *Registry) Find(name string) (Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.proxies[name]
	if !ok {
		return nil, Errorf("no proxy registered under %q", name)
	}
	return p, nil
}

// Names lists the registered proxy names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.proxies))
	for n := range r.proxies {
		out = append(out, n)
	}
	return out
}
