package resolve

import (
	"context"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/request"
	"github.com/opencradle/cradle/pkg/value"
)

// resolveViaProxy serializes the request tree and ships it to the
// context's proxy. A context without a node resolves synchronously; one
// with a node submits asynchronously and polls.
func resolveViaProxy(ctx context.Context, rctx *Context, req request.Request) (any, error) {
	seri, err := request.Serialize(req)
	if err != nil {
		return nil, err
	}
	retrier := rctx.Retrier
	if retrier == nil {
		retrier = ProxyRetrier{}
	}
	var res remote.SerializedResult
	if rctx.Node == nil {
		err = withRetry(ctx, retrier, func() error {
			r, rerr := rctx.Proxy.ResolveSync(ctx, rctx.Res.Config, seri)
			if rerr != nil {
				return rerr
			}
			res = r
			return nil
		})
	} else {
		err = withRetry(ctx, retrier, func() error {
			r, rerr := resolveRemoteAsync(ctx, rctx, seri)
			if rerr != nil {
				return rerr
			}
			res = r
			return nil
		})
	}
	if err != nil {
		finishNode(rctx.Node, err)
		return nil, err
	}
	v, err := value.Decode(res.Data)
	finishNode(rctx.Node, err)
	return v, err
}

// resolveRemoteAsync submits the serialized request, mirrors cancellation
// onto the remote, waits for completion and fetches the response.
func resolveRemoteAsync(ctx context.Context, rctx *Context, seri []byte) (remote.SerializedResult, error) {
	proxy := rctx.Proxy
	logger := log.WithProxy(proxy.Name())
	node := rctx.Node

	remoteID, err := proxy.SubmitAsync(ctx, rctx.Res.Config, seri)
	if err != nil {
		return remote.SerializedResult{}, err
	}
	logger.Debug().Uint64("remote_id", uint64(remoteID)).Msg("async request submitted")

	// Forward a local cancellation request to the peer.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-node.Context().Done():
			if node.CancelRequested() {
				if cerr := proxy.RequestCancellation(context.Background(), remoteID); cerr != nil {
					logger.Warn().Err(cerr).Msg("failed to forward cancellation")
				}
			}
		case <-watchDone:
		}
	}()

	defer func() {
		if ferr := proxy.FinishAsync(context.Background(), remoteID); ferr != nil {
			logger.Warn().Err(ferr).Msg("failed to finish remote async resolution")
		}
	}()

	if err := remote.WaitUntilFinished(ctx, proxy, remoteID); err != nil {
		return remote.SerializedResult{}, err
	}
	return proxy.GetAsyncResponse(ctx, remoteID)
}

// statusMatchesSubsRunning is the matcher used when a caller needs the
// remote context tree to exist before querying sub-contexts.
func statusMatchesSubsRunning(s async.Status) bool {
	switch s {
	case async.StatusSubsRunning, async.StatusSelfRunning, async.StatusFinished:
		return true
	default:
		return false
	}
}

// WaitUntilTreeAvailable polls until the remote root reports a status at
// which its sub-contexts can be queried.
func WaitUntilTreeAvailable(ctx context.Context, proxy remote.Proxy, rootID async.ID) error {
	return remote.WaitUntilStatusMatches(ctx, proxy, rootID, statusMatchesSubsRunning)
}
