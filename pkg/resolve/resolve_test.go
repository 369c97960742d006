package resolve

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencradle/cradle/pkg/cache"
	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/request"
	"github.com/opencradle/cradle/pkg/resources"
	"github.com/opencradle/cradle/pkg/secondary"
)

func newTestResources(t *testing.T, cfg map[string]any) *resources.Resources {
	t.Helper()
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg[config.KeyTesting] = true
	res, err := resources.New(config.MustNew(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { res.Close() })
	return res
}

func addReq(level request.CachingLevel, calls *atomic.Int32, a, b int64) *request.Function {
	return request.RqFunction(request.Props{
		Uuid:  request.MustUuid("test/add"),
		Level: level,
	}, func(ctx context.Context, args ...any) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		return args[0].(int64) + args[1].(int64), nil
	}, request.RqValue(a), request.RqValue(b))
}

func TestResolveValueRequest(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}

	v, err := Resolve(context.Background(), rctx, request.RqValue("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestResolveUncachedFunction(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}
	var calls atomic.Int32

	req := addReq(request.LevelNone, &calls, 2, 3)
	for i := 0; i < 2; i++ {
		v, err := Resolve(context.Background(), rctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(5), v)
	}
	// No caching at level none: every resolve recomputes.
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, res.Cache.GetSummaryInfo().AcNumRecords)
}

func TestResolveMemoryCachedFunction(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}
	var calls atomic.Int32

	req := addReq(request.LevelMemory, &calls, 2, 3)

	v, err := Resolve(context.Background(), rctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = Resolve(context.Background(), rctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	assert.Equal(t, int32(1), calls.Load(), "second resolve must hit the cache")
	assert.Equal(t, 1, res.Cache.GetSummaryInfo().AcNumRecords)

	// After a cache reset the function runs again.
	res.Cache.Reset(cacheConfigOf(res))
	v, err = Resolve(context.Background(), rctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, res.Cache.GetSummaryInfo().AcNumRecords)
}

func TestEquivalentRequestsShareComputation(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}
	var calls atomic.Int32

	// Two structurally equal requests built independently.
	_, err := Resolve(context.Background(), rctx, addReq(request.LevelMemory, &calls, 2, 3))
	require.NoError(t, err)
	_, err = Resolve(context.Background(), rctx, addReq(request.LevelMemory, &calls, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCASSharingAcrossFunctions(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}

	f := addReq(request.LevelMemory, nil, 2, 3)
	g := request.RqFunction(request.Props{
		Uuid:  request.MustUuid("test/also-five"),
		Level: request.LevelMemory,
	}, func(ctx context.Context, args ...any) (any, error) {
		return args[0].(int64) + args[1].(int64), nil
	}, request.RqValue(int64(1)), request.RqValue(int64(4)))

	for _, req := range []request.Request{f, g} {
		v, err := Resolve(context.Background(), rctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(5), v)
	}

	info := res.Cache.GetSummaryInfo()
	assert.Equal(t, 2, info.AcNumRecords)
	assert.Equal(t, 1, info.CasNumRecords, "equal values share one CAS record")
}

func TestFailureThenRetry(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}

	var calls atomic.Int32
	req := request.RqFunction(request.Props{
		Uuid:  request.MustUuid("test/flaky"),
		Level: request.LevelMemory,
	}, func(ctx context.Context, args ...any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient breakage")
		}
		return int64(7), nil
	})

	_, err := Resolve(context.Background(), rctx, req)
	require.Error(t, err)

	v, err := Resolve(context.Background(), rctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNestedRequestsResolveDepthFirst(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}

	inner := addReq(request.LevelMemory, nil, 1, 2)
	outer := request.RqFunction(request.Props{
		Uuid:  request.MustUuid("test/add"),
		Level: request.LevelMemory,
	}, func(ctx context.Context, args ...any) (any, error) {
		return args[0].(int64) + args[1].(int64), nil
	}, inner, request.RqValue(int64(10)))

	v, err := Resolve(context.Background(), rctx, outer)
	require.NoError(t, err)
	assert.Equal(t, int64(13), v)
	// Both the outer and the inner request have AC records.
	assert.Equal(t, 2, res.Cache.GetSummaryInfo().AcNumRecords)
}

func TestConcurrentSiblingResolution(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}

	var running, peak atomic.Int32
	slow := func(ctx context.Context, args ...any) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return args[0], nil
	}

	mkArg := func(i int) request.Request {
		return request.RqFunction(request.Props{Level: request.LevelNone},
			slow, request.RqValue(int64(i)))
	}
	sum := request.RqFunction(request.Props{Level: request.LevelNone},
		func(ctx context.Context, args ...any) (any, error) {
			var s int64
			for _, a := range args {
				s += a.(int64)
			}
			return s, nil
		}, mkArg(1), mkArg(2), mkArg(3), mkArg(4))

	v, err := Resolve(context.Background(), rctx, sum)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
	assert.Greater(t, peak.Load(), int32(1), "siblings should overlap")
}

func TestDefaultRetrierRetriesHTTPFailures(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{
		Res:     res,
		Retrier: DefaultRetrier{BaseDelay: time.Millisecond},
	}

	var calls atomic.Int32
	req := request.RqFunction(request.Props{
		Uuid:  request.MustUuid("test/http-flaky"),
		Level: request.LevelMemory,
	}, func(ctx context.Context, args ...any) (any, error) {
		if calls.Add(1) < 3 {
			return nil, &secondary.HTTPRequestError{Err: errors.New("connection reset")}
		}
		return int64(1), nil
	})

	v, err := Resolve(context.Background(), rctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDefaultRetrierRethrowsOtherErrors(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{
		Res:     res,
		Retrier: DefaultRetrier{BaseDelay: time.Millisecond},
	}

	var calls atomic.Int32
	req := request.RqFunction(request.Props{
		Uuid:  request.MustUuid("test/broken"),
		Level: request.LevelMemory,
	}, func(ctx context.Context, args ...any) (any, error) {
		calls.Add(1)
		return nil, errors.New("deterministic breakage")
	})

	_, err := Resolve(context.Background(), rctx, req)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "non-HTTP errors must not be retried")
}

func TestFullCachingUsesSecondaryStorage(t *testing.T) {
	res := newTestResources(t, map[string]any{
		config.KeySecondaryCacheFactory: "memory",
	})
	rctx := &Context{Res: res}
	store := res.Secondary.(*secondary.Memory)

	var calls atomic.Int32
	mkReq := func() *request.Function {
		return request.RqFunction(request.Props{
			Uuid:  request.MustUuid("test/full-add"),
			Level: request.LevelFull,
		}, func(ctx context.Context, args ...any) (any, error) {
			calls.Add(1)
			return args[0].(int64) + args[1].(int64), nil
		}, request.RqValue(int64(20)), request.RqValue(int64(2)))
	}

	v, err := Resolve(context.Background(), rctx, mkReq())
	require.NoError(t, err)
	assert.Equal(t, int64(22), v)
	require.Equal(t, int32(1), calls.Load())

	// The write-back is fire-and-forget; wait for it to land.
	require.Eventually(t, func() bool { return store.Size() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Drop the memory cache: the next resolve must come from secondary
	// storage without re-running the function.
	res.Cache.Reset(cacheConfigOf(res))
	v, err = Resolve(context.Background(), rctx, mkReq())
	require.NoError(t, err)
	assert.Equal(t, int64(22), v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, res.Cache.GetSummaryInfo().AcNumRecords)
}

func TestProxyRequestWithoutProxyFails(t *testing.T) {
	res := newTestResources(t, nil)
	rctx := &Context{Res: res}

	req := request.RqProxy(request.Props{
		Uuid:  request.MustUuid("test/remote-op"),
		Level: request.LevelMemory,
	})
	_, err := Resolve(context.Background(), rctx, req)
	var notImpl *NotImplementedError
	assert.ErrorAs(t, err, &notImpl)
}

func cacheConfigOf(res *resources.Resources) cache.Config {
	limit, _ := res.Config.NumberOrDefault(
		config.KeyMemoryCacheUnusedSizeLimit, config.DefaultUnusedSizeLimit)
	return cache.Config{UnusedSizeLimit: limit}
}
