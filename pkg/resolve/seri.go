package resolve

import (
	"context"

	"github.com/opencradle/cradle/pkg/cache"
	"github.com/opencradle/cradle/pkg/request"
	"github.com/opencradle/cradle/pkg/value"
)

// ResolveSerialized resolves a serialized request to a serialized
// (msgpack) result. When withLock is set and the request is cacheable,
// the resolved cache record is pinned and the lock returned; the caller
// owns its release. This is the entry point used by the RPC server and
// the loopback proxy.
func ResolveSerialized(
	ctx context.Context,
	rctx *Context,
	seriReq []byte,
	withLock bool,
) ([]byte, *cache.Lock, error) {
	req, err := request.Deserialize(rctx.Res.Registry, seriReq)
	if err != nil {
		return nil, nil, err
	}
	v, err := Resolve(ctx, rctx, req)
	if err != nil {
		return nil, nil, err
	}
	data, err := value.Encode(v)
	if err != nil {
		return nil, nil, err
	}
	var lock *cache.Lock
	if withLock && request.Cacheable(req) {
		if ptr := rctx.Res.Cache.AcquireExisting(req.CapturedID()); ptr != nil {
			lock = ptr.Lock()
			ptr.Release()
		}
	}
	return data, lock, nil
}
