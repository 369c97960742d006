package resolve

import (
	"context"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/cache"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/remote"
)

// SubmitSerialized starts an asynchronous resolution of a serialized
// request on the async pool and returns the root id of its context tree.
// The outcome is stored in the DB; the caller polls node statuses, fetches
// the result with AwaitResult and releases the tree with the DB's Finish.
func SubmitSerialized(
	rctx *Context,
	db *DB,
	seriReq []byte,
	withLock bool,
	onLock func(*cache.Lock) int64,
) (async.ID, error) {
	root := db.NewRoot()
	runCtx := rctx.withNode(root)
	runCtx.DB = db

	bg := context.Background()
	if err := rctx.Res.AsyncPool.Acquire(bg, 1); err != nil {
		return async.NoID, err
	}
	go func() {
		defer rctx.Res.AsyncPool.Release(1)
		data, lock, err := ResolveSerialized(root.Context(), runCtx, seriReq, withLock)
		result := remote.SerializedResult{Data: data}
		if err == nil && lock != nil && onLock != nil {
			result.RecordID = onLock(lock)
		}
		if err != nil {
			log.WithAsyncID(uint64(root.ID())).Debug().Err(err).Msg("async resolution failed")
		}
		finishNode(root, err)
		db.setOutcome(root.ID(), result, err)
	}()
	return root.ID(), nil
}

// AwaitResult blocks until the root resolution completes and returns its
// outcome.
func (db *DB) AwaitResult(ctx context.Context, rootID async.ID) (remote.SerializedResult, error) {
	e, err := db.findRoot(rootID)
	if err != nil {
		return remote.SerializedResult{}, err
	}
	select {
	case <-ctx.Done():
		return remote.SerializedResult{}, ctx.Err()
	case <-e.done:
		return e.result, e.err
	}
}

// TryResult returns the outcome if the root resolution has completed.
func (db *DB) TryResult(rootID async.ID) (remote.SerializedResult, error, bool) {
	e, err := db.findRoot(rootID)
	if err != nil {
		return remote.SerializedResult{}, err, true
	}
	select {
	case <-e.done:
		return e.result, e.err, true
	default:
		return remote.SerializedResult{}, nil, false
	}
}
