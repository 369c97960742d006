package rpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/opencradle/cradle/pkg/rpcwire"
)

// The service descriptor is authored by hand: messages are msgpack structs
// rather than protobuf, so there is no generated code to lean on.

func unary[In any, Out any](
	call func(*Server, context.Context, *In) (*Out, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		return call(srv.(*Server), ctx, in)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: rpcwire.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler:    unary((*Server).ping),
		},
		{
			MethodName: "ResolveSync",
			Handler:    unary((*Server).resolveSync),
		},
		{
			MethodName: "SubmitAsync",
			Handler:    unary((*Server).submitAsync),
		},
		{
			MethodName: "GetSubContexts",
			Handler:    unary((*Server).getSubContexts),
		},
		{
			MethodName: "GetAsyncStatus",
			Handler:    unary((*Server).getAsyncStatus),
		},
		{
			MethodName: "GetAsyncErrorMessage",
			Handler:    unary((*Server).getAsyncErrorMessage),
		},
		{
			MethodName: "GetAsyncResponse",
			Handler:    unary((*Server).getAsyncResponse),
		},
		{
			MethodName: "RequestCancellation",
			Handler:    unary((*Server).requestCancellation),
		},
		{
			MethodName: "FinishAsync",
			Handler:    unary((*Server).finishAsync),
		},
		{
			MethodName: "ReleaseCacheRecord",
			Handler:    unary((*Server).releaseCacheRecord),
		},
		{
			MethodName: "MockHTTP",
			Handler:    unary((*Server).mockHTTP),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cradle/rpcwire",
}
