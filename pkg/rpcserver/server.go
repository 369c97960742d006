// Package rpcserver exposes request resolution to peers over gRPC with
// the msgpack wire protocol. A server instance owns an async DB for
// submitted resolutions and a lock registry for pinned cache records.
package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/opencradle/cradle/pkg/async"
	"github.com/opencradle/cradle/pkg/log"
	"github.com/opencradle/cradle/pkg/metrics"
	"github.com/opencradle/cradle/pkg/request"
	"github.com/opencradle/cradle/pkg/resolve"
	"github.com/opencradle/cradle/pkg/resources"
	"github.com/opencradle/cradle/pkg/rpcwire"
	"github.com/opencradle/cradle/pkg/secondary"
)

// Server serves the cradle.Resolution service.
type Server struct {
	res   *resources.Resources
	db    *resolve.DB
	locks *resolve.LockRegistry
	grpc  *grpc.Server
	lis   net.Listener
}

// New creates a server over the given resources.
func New(res *resources.Resources) *Server {
	s := &Server{
		res:   res,
		db:    resolve.NewDB(),
		locks: resolve.NewLockRegistry(),
		grpc:  grpc.NewServer(grpc.ForceServerCodec(rpcwire.Codec{})),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// DB exposes the async database, for in-process inspection.
func (s *Server) DB() *resolve.DB {
	return s.db
}

// Listen binds the server to addr ("host:port"; port 0 picks one).
func (s *Server) Listen(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.lis = lis
	return lis.Addr(), nil
}

// Serve accepts connections until Stop. Listen must have been called.
func (s *Server) Serve() error {
	lg := log.WithComponent("rpcserver")
	lg.Info().
		Str("addr", s.lis.Addr().String()).
		Msg("RPC server listening")
	return s.grpc.Serve(s.lis)
}

// Stop gracefully stops the server and releases held cache-record locks.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	s.locks.ReleaseAll()
}

// rctx builds the per-call resolution context.
func (s *Server) rctx() *resolve.Context {
	return &resolve.Context{
		Res:     s.res,
		Retrier: resolve.DefaultRetrier{},
	}
}

// toStatus maps resolution errors onto gRPC statuses so the client can
// reconstruct typed errors.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var cancelled *async.CancelledError
	if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	var reqErr *secondary.HTTPRequestError
	if errors.As(err, &reqErr) {
		return status.Error(codes.Unavailable, err.Error())
	}
	var unreg *request.UnregisteredUuidError
	if errors.As(err, &unreg) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Unknown, err.Error())
}

func (s *Server) ping(ctx context.Context, _ *rpcwire.Empty) (*rpcwire.Empty, error) {
	return &rpcwire.Empty{}, nil
}

func (s *Server) resolveSync(ctx context.Context, in *rpcwire.ResolveRequest) (*rpcwire.ResolveResponse, error) {
	metrics.RPCRequestsTotal.WithLabelValues("ResolveSync", "received").Inc()
	data, lock, err := resolve.ResolveSerialized(ctx, s.rctx(), in.SeriReq, in.NeedRecordLock)
	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues("ResolveSync", "error").Inc()
		return nil, toStatus(err)
	}
	metrics.RPCRequestsTotal.WithLabelValues("ResolveSync", "ok").Inc()
	return &rpcwire.ResolveResponse{Data: data, RecordID: s.locks.Add(lock)}, nil
}

func (s *Server) submitAsync(ctx context.Context, in *rpcwire.ResolveRequest) (*rpcwire.SubmitAsyncResponse, error) {
	metrics.RPCRequestsTotal.WithLabelValues("SubmitAsync", "received").Inc()
	aid, err := resolve.SubmitSerialized(s.rctx(), s.db, in.SeriReq, in.NeedRecordLock, s.locks.Add)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpcwire.SubmitAsyncResponse{RemoteID: uint64(aid)}, nil
}

func (s *Server) getSubContexts(ctx context.Context, in *rpcwire.AsyncIDRequest) (*rpcwire.SubContextsResponse, error) {
	node, err := s.db.FindNode(async.ID(in.RemoteID))
	if err != nil {
		return nil, toStatus(err)
	}
	out := new(rpcwire.SubContextsResponse)
	for _, ch := range node.Children() {
		out.Children = append(out.Children, rpcwire.SubContextSpec{
			RemoteID:  uint64(ch.ID()),
			IsRequest: ch.IsRequest(),
		})
	}
	return out, nil
}

func (s *Server) getAsyncStatus(ctx context.Context, in *rpcwire.AsyncIDRequest) (*rpcwire.StatusResponse, error) {
	node, err := s.db.FindNode(async.ID(in.RemoteID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpcwire.StatusResponse{Status: int(node.Status())}, nil
}

func (s *Server) getAsyncErrorMessage(ctx context.Context, in *rpcwire.AsyncIDRequest) (*rpcwire.ErrorMessageResponse, error) {
	node, err := s.db.FindNode(async.ID(in.RemoteID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpcwire.ErrorMessageResponse{Message: node.ErrorMessage()}, nil
}

func (s *Server) getAsyncResponse(ctx context.Context, in *rpcwire.AsyncIDRequest) (*rpcwire.ResolveResponse, error) {
	result, err := s.db.AwaitResult(ctx, async.ID(in.RemoteID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpcwire.ResolveResponse{Data: result.Data, RecordID: result.RecordID}, nil
}

func (s *Server) requestCancellation(ctx context.Context, in *rpcwire.AsyncIDRequest) (*rpcwire.Empty, error) {
	node, err := s.db.FindNode(async.ID(in.RemoteID))
	if err != nil {
		return nil, toStatus(err)
	}
	node.RequestCancellation()
	return &rpcwire.Empty{}, nil
}

func (s *Server) finishAsync(ctx context.Context, in *rpcwire.AsyncIDRequest) (*rpcwire.Empty, error) {
	s.db.Finish(async.ID(in.RemoteID))
	return &rpcwire.Empty{}, nil
}

func (s *Server) releaseCacheRecord(ctx context.Context, in *rpcwire.ReleaseCacheRecordRequest) (*rpcwire.Empty, error) {
	if err := s.locks.Release(in.RecordID); err != nil {
		return nil, toStatus(err)
	}
	return &rpcwire.Empty{}, nil
}

func (s *Server) mockHTTP(ctx context.Context, in *rpcwire.MockHTTPRequest) (*rpcwire.Empty, error) {
	h, ok := s.res.Secondary.(*secondary.HTTP)
	if !ok {
		return nil, status.Error(codes.FailedPrecondition, "no http storage to mock")
	}
	h.Mock(in.Body)
	return &rpcwire.Empty{}, nil
}
