// Package rpcclient implements the remote.Proxy interface over a gRPC
// connection speaking the msgpack wire protocol.
package rpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/remote"
	"github.com/opencradle/cradle/pkg/rpcwire"
)

// Client is a remote proxy backed by a gRPC connection to a peer.
type Client struct {
	name string
	conn *grpc.ClientConn
}

// New connects to a peer at addr (host:port) and registers under name.
func New(name, addr string) (*Client, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpcwire.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{name: name, conn: conn}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// translateError converts a gRPC status into the typed errors the
// dispatcher understands. Unavailable peers produce retryable remote
// errors; Canceled becomes the cancellation sentinel.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &remote.Error{Msg: err.Error()}
	}
	switch st.Code() {
	case codes.Canceled:
		return &async.CancelledError{Msg: st.Message()}
	case codes.Unavailable, codes.ResourceExhausted:
		return &remote.Error{Msg: st.Message(), Retryable: true}
	default:
		return &remote.Error{Msg: st.Message()}
	}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return translateError(c.conn.Invoke(ctx, method, in, out))
}

// Ping checks that the peer is up and serving.
func (c *Client) Ping(ctx context.Context) error {
	return c.invoke(ctx, rpcwire.MethodPing, &rpcwire.Empty{}, &rpcwire.Empty{})
}

func (c *Client) ResolveSync(ctx context.Context, cfg config.Config, seriReq []byte) (remote.SerializedResult, error) {
	return c.resolveSyncLocked(ctx, cfg, seriReq, false)
}

// ResolveSyncLocked resolves and asks the peer to pin the cache record.
func (c *Client) ResolveSyncLocked(ctx context.Context, cfg config.Config, seriReq []byte) (remote.SerializedResult, error) {
	return c.resolveSyncLocked(ctx, cfg, seriReq, true)
}

func (c *Client) resolveSyncLocked(ctx context.Context, cfg config.Config, seriReq []byte, lock bool) (remote.SerializedResult, error) {
	in := &rpcwire.ResolveRequest{Config: cfg.Map(), SeriReq: seriReq, NeedRecordLock: lock}
	out := new(rpcwire.ResolveResponse)
	if err := c.invoke(ctx, rpcwire.MethodResolveSync, in, out); err != nil {
		return remote.SerializedResult{}, err
	}
	return remote.SerializedResult{Data: out.Data, RecordID: out.RecordID}, nil
}

func (c *Client) SubmitAsync(ctx context.Context, cfg config.Config, seriReq []byte) (async.ID, error) {
	in := &rpcwire.ResolveRequest{Config: cfg.Map(), SeriReq: seriReq}
	out := new(rpcwire.SubmitAsyncResponse)
	if err := c.invoke(ctx, rpcwire.MethodSubmitAsync, in, out); err != nil {
		return async.NoID, err
	}
	return async.ID(out.RemoteID), nil
}

func (c *Client) GetSubContexts(ctx context.Context, aid async.ID) ([]remote.SubContext, error) {
	in := &rpcwire.AsyncIDRequest{RemoteID: uint64(aid)}
	out := new(rpcwire.SubContextsResponse)
	if err := c.invoke(ctx, rpcwire.MethodGetSubContexts, in, out); err != nil {
		return nil, err
	}
	subs := make([]remote.SubContext, len(out.Children))
	for i, ch := range out.Children {
		subs[i] = remote.SubContext{ID: async.ID(ch.RemoteID), IsRequest: ch.IsRequest}
	}
	return subs, nil
}

func (c *Client) GetAsyncStatus(ctx context.Context, aid async.ID) (async.Status, error) {
	in := &rpcwire.AsyncIDRequest{RemoteID: uint64(aid)}
	out := new(rpcwire.StatusResponse)
	if err := c.invoke(ctx, rpcwire.MethodGetAsyncStatus, in, out); err != nil {
		return 0, err
	}
	return async.Status(out.Status), nil
}

func (c *Client) GetAsyncErrorMessage(ctx context.Context, aid async.ID) (string, error) {
	in := &rpcwire.AsyncIDRequest{RemoteID: uint64(aid)}
	out := new(rpcwire.ErrorMessageResponse)
	if err := c.invoke(ctx, rpcwire.MethodGetAsyncErrorMessage, in, out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) GetAsyncResponse(ctx context.Context, rootID async.ID) (remote.SerializedResult, error) {
	in := &rpcwire.AsyncIDRequest{RemoteID: uint64(rootID)}
	out := new(rpcwire.ResolveResponse)
	if err := c.invoke(ctx, rpcwire.MethodGetAsyncResponse, in, out); err != nil {
		return remote.SerializedResult{}, err
	}
	return remote.SerializedResult{Data: out.Data, RecordID: out.RecordID}, nil
}

func (c *Client) RequestCancellation(ctx context.Context, aid async.ID) error {
	in := &rpcwire.AsyncIDRequest{RemoteID: uint64(aid)}
	return c.invoke(ctx, rpcwire.MethodRequestCancellation, in, &rpcwire.Empty{})
}

func (c *Client) FinishAsync(ctx context.Context, rootID async.ID) error {
	in := &rpcwire.AsyncIDRequest{RemoteID: uint64(rootID)}
	return c.invoke(ctx, rpcwire.MethodFinishAsync, in, &rpcwire.Empty{})
}

func (c *Client) ReleaseCacheRecord(ctx context.Context, recordID int64) error {
	in := &rpcwire.ReleaseCacheRecordRequest{RecordID: recordID}
	return c.invoke(ctx, rpcwire.MethodReleaseCacheRecord, in, &rpcwire.Empty{})
}

// MockHTTP instructs the peer to answer all HTTP traffic with body.
func (c *Client) MockHTTP(ctx context.Context, body string) error {
	in := &rpcwire.MockHTTPRequest{Body: body}
	return c.invoke(ctx, rpcwire.MethodMockHTTP, in, &rpcwire.Empty{})
}

var _ remote.Proxy = (*Client)(nil)
