package request

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencradle/cradle/pkg/id"
	"github.com/opencradle/cradle/pkg/value"
)

// Fn is the signature of the pure function bound to a function request.
// Arguments arrive in the order of the request's subrequests, already
// resolved and normalized to the value algebra.
type Fn func(ctx context.Context, args ...any) (any, error)

// Request is a node in a computation tree. Concrete kinds: *Value (leaf
// literal), *Function (pure function over subrequests), *Proxy (reference
// to a remote implementation).
//
// Requests are immutable after construction.
type Request interface {
	// Uuid identifies the request class; empty for value requests.
	Uuid() Uuid

	// Level is the request's caching level.
	Level() CachingLevel

	// Introspective reports whether the request carries a title for
	// progress reporting.
	Introspective() bool

	// Title returns the introspection title, "" if none.
	Title() string

	// CapturedID returns the request's captured identity: an opaque,
	// hashable, orderable key covering the uuid and all argument
	// identities. The identity outlives the request instance.
	CapturedID() id.Interface

	// Visit yields the request's subrequests in order.
	Visit(fn func(Request) error) error
}

// Equal compares two requests by captured identity.
func Equal(a, b Request) bool {
	return a.CapturedID().Equals(b.CapturedID())
}

// Hash returns a request's fast hash, for unordered-map keys.
func Hash(r Request) uint64 {
	return r.CapturedID().Hash()
}

// Cacheable reports whether a request's results may be cached at all.
func Cacheable(r Request) bool {
	return r.Level() != LevelNone
}

// DiskCacheable reports whether a request's results may be stored in
// secondary storage.
func DiskCacheable(r Request) bool {
	return r.Level() == LevelFull && r.Uuid().DiskCacheable()
}

// Serializable reports whether a request can cross a process boundary.
func Serializable(r Request) bool {
	return r.Uuid().Serializable()
}

// Value is a leaf request carrying a literal; resolving it returns the
// literal.
type Value struct {
	val any
}

// RqValue creates a value request. The literal is normalized into the
// value algebra; unsupported types panic, as the literal is supplied at
// request-construction time by the programmer.
func RqValue(v any) *Value {
	nv, err := value.Normalize(v)
	if err != nil {
		panic(fmt.Sprintf("RqValue: %v", err))
	}
	return &Value{val: nv}
}

func (r *Value) Uuid() Uuid          { return Uuid{} }
func (r *Value) Level() CachingLevel { return LevelNone }
func (r *Value) Introspective() bool { return false }
func (r *Value) Title() string       { return "" }

// Payload returns the literal.
func (r *Value) Payload() any {
	return r.val
}

func (r *Value) CapturedID() id.Interface {
	return &valueID{v: r.val}
}

func (r *Value) Visit(fn func(Request) error) error {
	return nil
}

// Props bundles the resolution properties shared by similar requests: the
// class uuid, caching level, whether the bound function follows coroutine
// semantics, and the optional introspection title.
type Props struct {
	Uuid          Uuid
	Level         CachingLevel
	Coro          bool
	Introspective bool
	Title         string
}

// Function is an internal node: a pure function applied to the resolved
// values of its subrequests.
type Function struct {
	props Props
	fn    Fn
	args  []Request

	capturedOnce sync.Once
	captured     id.Interface
}

// RqFunction creates a function request. The props uuid is extended with
// the caching level at construction; an empty uuid yields a request that
// cannot be serialized or disk-cached but still resolves and memory-caches.
func RqFunction(props Props, fn Fn, args ...Request) *Function {
	if fn == nil {
		panic("RqFunction: nil function")
	}
	if !props.Uuid.Empty() {
		props.Uuid = props.Uuid.WithLevel(props.Level)
	}
	return &Function{props: props, fn: fn, args: args}
}

func (r *Function) Uuid() Uuid          { return r.props.Uuid }
func (r *Function) Level() CachingLevel { return r.props.Level }
func (r *Function) Introspective() bool { return r.props.Introspective }
func (r *Function) Title() string       { return r.props.Title }

// Coro reports whether the bound function follows coroutine semantics
// (suspends at await points and honors cancellation).
func (r *Function) Coro() bool {
	return r.props.Coro
}

// Args returns the ordered subrequests.
func (r *Function) Args() []Request {
	return r.args
}

// Call invokes the bound function on resolved argument values.
func (r *Function) Call(ctx context.Context, args []any) (any, error) {
	return r.fn(ctx, args...)
}

func (r *Function) CapturedID() id.Interface {
	r.capturedOnce.Do(func() {
		r.captured = r.makeCapturedID()
	})
	return r.captured
}

func (r *Function) Visit(fn func(Request) error) error {
	for _, a := range r.args {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveUuid combines this request's uuid with the uuids of nested
// function and proxy subrequests.
func (r *Function) EffectiveUuid() Uuid {
	eff := r.props.Uuid
	for _, a := range r.args {
		switch sub := a.(type) {
		case *Function:
			eff = Combined(eff, sub.EffectiveUuid())
		case *Proxy:
			eff = Combined(eff, sub.Uuid())
		}
	}
	return eff
}

func (r *Function) makeCapturedID() id.Interface {
	idArgs := make([]any, 0, len(r.args)+1)
	if r.props.Uuid.Empty() {
		// No uuid to identify the function binding; fall back to the
		// function pointer. Process-local, which matches the request's
		// capabilities (memory caching only, no serialization).
		idArgs = append(idArgs, fmt.Sprintf("anon/%x", fnKey(r.fn)))
	} else {
		idArgs = append(idArgs, r.EffectiveUuid().Str())
	}
	for _, a := range r.args {
		idArgs = append(idArgs, a.CapturedID())
	}
	return id.NewHashedID(idArgs...)
}

// Proxy is a leaf request standing in for a request whose implementation
// lives on a remote peer; resolution is delegated there. It carries only
// identity and type: the remote reconstructs the real request from the
// uuid registered in its own catalog.
type Proxy struct {
	props Props

	capturedOnce sync.Once
	captured     id.Interface
}

// RqProxy creates a proxy request. The uuid must be non-empty: a proxy is
// only meaningful when it can be serialized and matched on the remote.
func RqProxy(props Props) *Proxy {
	if props.Uuid.Empty() {
		panic("RqProxy: empty uuid")
	}
	props.Uuid = props.Uuid.WithLevel(props.Level)
	return &Proxy{props: props}
}

func (r *Proxy) Uuid() Uuid          { return r.props.Uuid }
func (r *Proxy) Level() CachingLevel { return r.props.Level }
func (r *Proxy) Introspective() bool { return r.props.Introspective }
func (r *Proxy) Title() string       { return r.props.Title }

func (r *Proxy) CapturedID() id.Interface {
	r.capturedOnce.Do(func() {
		r.captured = id.NewHashedID(r.props.Uuid.Str(), r.props.Title)
	})
	return r.captured
}

func (r *Proxy) Visit(fn func(Request) error) error {
	return nil
}
