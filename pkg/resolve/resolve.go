package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/cache"
	"github.com/opencradle/cradle/pkg/id"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/metrics"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/request"
	"github.com/opencradle/cradle/pkg/resources"
	"github.com/opencradle/cradle/pkg/value"
)

// NotImplementedError indicates an operation the current context cannot
// perform, such as resolving a proxy request with no proxy configured.
type NotImplementedError struct {
	Msg string
}

func (e *NotImplementedError) Error() string {
	return "not implemented: " + e.Msg
}

// Context scopes one resolution. It carries the service resources, the
// optional remote proxy the tree should be dispatched to, the retry
// policy, and the node of the async context tree mirroring this position
// in the request tree.
type Context struct {
	Res *resources.Resources

	// Proxy dispatches the whole resolution to a peer when non-nil.
	Proxy remote.Proxy

	// Retrier is applied around fallible I/O and the function call.
	Retrier Retrier

	// DB and Node track asynchronous resolution state; both nil for a
	// plain synchronous resolution.
	DB   *DB
	Node *Node
}

// withNode derives a child context at a different tree position.
func (c *Context) withNode(n *Node) *Context {
	child := *c
	child.Node = n
	return &child
}

// goCtx returns the Go context carrying this resolution's cancellation
// signal: the node's when the resolution is async, the caller's otherwise.
func (c *Context) goCtx(fallback context.Context) context.Context {
	if c.Node != nil {
		return c.Node.Context()
	}
	return fallback
}

// Resolve resolves a request to a value. Dispatch is by request kind:
// value requests return their payload, function requests compute (through
// the cache at memory/full levels), proxy requests and remote contexts
// delegate to a peer.
func Resolve(ctx context.Context, rctx *Context, req request.Request) (any, error) {
	start := time.Now()
	v, err := dispatch(ctx, rctx, req)
	metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
	metrics.ResolutionsTotal.WithLabelValues(kindLabel(req), outcomeLabel(err)).Inc()
	return v, err
}

func kindLabel(req request.Request) string {
	switch req.(type) {
	case *request.Value:
		return "value"
	case *request.Function:
		return "function"
	case *request.Proxy:
		return "proxy"
	default:
		return "unknown"
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isCancellation(err):
		return "cancelled"
	default:
		return "error"
	}
}

func dispatch(ctx context.Context, rctx *Context, req request.Request) (any, error) {
	if rctx.Proxy != nil {
		return resolveViaProxy(ctx, rctx, req)
	}
	switch t := req.(type) {
	case *request.Value:
		finishNode(rctx.Node, nil)
		return t.Payload(), nil
	case *request.Function:
		if t.Level() == request.LevelNone {
			v, err := resolveFunctionUncached(ctx, rctx, t)
			finishNode(rctx.Node, err)
			return v, err
		}
		v, err := resolveFunctionCached(ctx, rctx, t)
		finishNode(rctx.Node, err)
		return v, err
	case *request.Proxy:
		err := &NotImplementedError{
			Msg: fmt.Sprintf("proxy request %q requires a remote context", t.Uuid().Str()),
		}
		finishNode(rctx.Node, err)
		return nil, err
	default:
		return nil, &NotImplementedError{Msg: fmt.Sprintf("request kind %T", req)}
	}
}

// finishNode drives a node to its terminal status from a resolution
// outcome.
func finishNode(n *Node, err error) {
	if n == nil {
		return
	}
	switch {
	case err == nil:
		n.setStatus(async.StatusFinished)
	case isCancellation(err):
		n.setStatus(async.StatusCancelled)
	default:
		n.setError(err.Error())
	}
}

func isCancellation(err error) bool {
	var cancelled *async.CancelledError
	return errors.As(err, &cancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// asCancellation converts context cancellation observed during a
// cooperative suspension into the first-class sentinel.
func asCancellation(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return &async.CancelledError{}
	}
	return err
}

func resolveFunctionUncached(ctx context.Context, rctx *Context, req *request.Function) (any, error) {
	if rctx.Node != nil {
		rctx.Node.setStatus(async.StatusSubsRunning)
	}
	args, err := resolveArgs(ctx, rctx, req)
	if err != nil {
		return nil, err
	}
	if err := rctx.Node.checkCancelled(); err != nil {
		return nil, err
	}
	if rctx.Node != nil {
		rctx.Node.setStatus(async.StatusSelfRunning)
	}
	v, err := callFunction(ctx, rctx, req, args)
	if err != nil {
		return nil, err
	}
	if rctx.Node != nil {
		rctx.Node.setStatus(async.StatusAwaitingResult)
	}
	return v, nil
}

func resolveFunctionCached(ctx context.Context, rctx *Context, req *request.Function) (any, error) {
	key := req.CapturedID()
	ptr := rctx.Res.Cache.Acquire(key, func(k id.Interface) *cache.SharedTask {
		// The task is bound to the creating resolution's context; it
		// runs outside the cache mutex, at most once per episode.
		taskCtx, taskRctx := ctx, rctx
		return cache.NewSharedTask(func() (any, error) {
			v, err := runFunctionTask(taskCtx, taskRctx, req, k)
			if err != nil {
				taskRctx.Res.Cache.RecordFailure(k)
				return nil, asCancellation(err)
			}
			taskRctx.Res.Cache.RecordValue(k, v)
			return v, nil
		})
	})
	defer ptr.Release()

	if v, ok := ptr.Value(); ok {
		// Already Ready; no need to await the task.
		return v, nil
	}
	v, err := ptr.Await(rctx.goCtx(ctx))
	return v, asCancellation(err)
}

// runFunctionTask is the single-flight task body for a cached function
// request: resolve subrequests, consult secondary storage, invoke the
// function, schedule the write-back.
func runFunctionTask(ctx context.Context, rctx *Context, req *request.Function, key id.Interface) (any, error) {
	if rctx.Node != nil {
		rctx.Node.setStatus(async.StatusSubsRunning)
	}
	args, err := resolveArgs(ctx, rctx, req)
	if err != nil {
		return nil, err
	}
	if err := rctx.Node.checkCancelled(); err != nil {
		return nil, err
	}

	diskCached := request.DiskCacheable(req) && rctx.Res.Secondary != nil
	var storageKey string
	if diskCached {
		storageKey = id.UniqueString(key)
		if v, ok := readSecondary(ctx, rctx, storageKey); ok {
			return v, nil
		}
		if err := rctx.Node.checkCancelled(); err != nil {
			return nil, err
		}
	}

	if rctx.Node != nil {
		rctx.Node.setStatus(async.StatusSelfRunning)
	}
	v, err := callFunction(ctx, rctx, req, args)
	if err != nil {
		return nil, err
	}
	if rctx.Node != nil {
		rctx.Node.setStatus(async.StatusAwaitingResult)
	}

	if diskCached {
		// Fire and forget; failures are logged, never surfaced.
		go writeSecondary(rctx, storageKey, v)
	}
	return v, nil
}

func callFunction(ctx context.Context, rctx *Context, req *request.Function, args []any) (any, error) {
	callCtx := rctx.goCtx(ctx)
	var result any
	err := withRetry(ctx, rctx.Retrier, func() error {
		r, err := req.Call(callCtx, args)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if rctx.Node.CancelRequested() && errors.Is(err, context.Canceled) {
			return nil, &async.CancelledError{}
		}
		return nil, asCancellation(err)
	}
	return value.Normalize(result)
}

// resolveArgs resolves a function request's subrequests, concurrently
// when there is more than one. No ordering is imposed between siblings.
func resolveArgs(ctx context.Context, rctx *Context, req *request.Function) ([]any, error) {
	args := req.Args()
	results := make([]any, len(args))
	childCtxs := make([]*Context, len(args))
	for i, a := range args {
		childCtxs[i] = rctx
		if rctx.DB != nil && rctx.Node != nil {
			_, isValue := a.(*request.Value)
			node := rctx.DB.NewChild(rctx.Node, !isValue)
			childCtxs[i] = rctx.withNode(node)
		}
	}
	if len(args) <= 1 {
		for i, a := range args {
			v, err := Resolve(ctx, childCtxs[i], a)
			if err != nil {
				return nil, err
			}
			results[i] = v
		}
		return results, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range args {
		i, a := i, a
		g.Go(func() error {
			v, err := Resolve(gctx, childCtxs[i], a)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func readSecondary(ctx context.Context, rctx *Context, storageKey string) (any, bool) {
	logger := log.WithComponent("resolve")
	if err := rctx.Res.HTTPPool.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer rctx.Res.HTTPPool.Release(1)

	var payload []byte
	var found bool
	err := withRetry(ctx, rctx.Retrier, func() error {
		b, ok, err := rctx.Res.Secondary.Read(ctx, storageKey)
		if err != nil {
			return err
		}
		found = ok
		if ok {
			payload = b.Bytes()
		}
		return nil
	})
	if err != nil {
		// A broken secondary store degrades to a recompute.
		metrics.SecondaryReads.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Str("key", storageKey).Msg("secondary storage read failed")
		return nil, false
	}
	if !found {
		metrics.SecondaryReads.WithLabelValues("miss").Inc()
		return nil, false
	}
	v, err := value.Decode(payload)
	if err != nil {
		metrics.SecondaryReads.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Str("key", storageKey).Msg("secondary storage payload is corrupt")
		return nil, false
	}
	metrics.SecondaryReads.WithLabelValues("hit").Inc()
	return v, true
}

func writeSecondary(rctx *Context, storageKey string, v any) {
	logger := log.WithComponent("resolve")
	ctx := context.Background()
	if err := rctx.Res.HTTPPool.Acquire(ctx, 1); err != nil {
		return
	}
	defer rctx.Res.HTTPPool.Release(1)

	data, err := value.Encode(v)
	if err != nil {
		metrics.SecondaryWrites.WithLabelValues("error").Inc()
		logger.Error().Err(err).Str("key", storageKey).Msg("failed to encode value for secondary storage")
		return
	}
	if err := rctx.Res.Secondary.Write(ctx, storageKey, blob.FromBytes(data)); err != nil {
		metrics.SecondaryWrites.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Str("key", storageKey).Msg("secondary storage write failed")
		return
	}
	metrics.SecondaryWrites.WithLabelValues("ok").Inc()
}
