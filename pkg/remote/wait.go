package remote

import (
	"context"
	"time"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/log"
)

const (
	pollInitialSleep = time.Millisecond
	pollMaxSleep     = 100 * time.Millisecond
)

// WaitUntilStatusMatches polls the status of a remote context until the
// matcher accepts it. A CANCELLED status converts to CancelledError; an
// ERROR status fetches the remote message and converts to async.Error.
// The poll interval grows from 1 ms to a 100 ms cap.
func WaitUntilStatusMatches(
	ctx context.Context,
	proxy Proxy,
	remoteID async.ID,
	match func(async.Status) bool,
) error {
	logger := log.WithProxy(proxy.Name())
	sleep := pollInitialSleep
	for {
		status, err := proxy.GetAsyncStatus(ctx, remoteID)
		if err != nil {
			return err
		}
		if match(status) {
			logger.Debug().Uint64("async_id", uint64(remoteID)).
				Stringer("status", status).Msg("status matched")
			return nil
		}
		switch status {
		case async.StatusCancelled:
			return &async.CancelledError{Msg: "remote async cancelled"}
		case async.StatusError:
			msg, merr := proxy.GetAsyncErrorMessage(ctx, remoteID)
			if merr != nil {
				return merr
			}
			return &async.Error{Msg: msg}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep = min((sleep+1)*3/2, pollMaxSleep)
	}
}

// WaitUntilFinished polls until the remote context reports FINISHED.
func WaitUntilFinished(ctx context.Context, proxy Proxy, remoteID async.ID) error {
	return WaitUntilStatusMatches(ctx, proxy, remoteID, func(s async.Status) bool {
		return s == async.StatusFinished
	})
}
