// Package rpcwire defines the wire protocol between CRADLE peers: the
// message structs, the msgpack codec plugged into gRPC, and the method
// names. Messages travel as msgpack rather than protobuf, so no IDL or
// generated code is involved; both ends share these definitions.
package rpcwire

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// ServiceName is the gRPC service identifier.
const ServiceName = "cradle.Resolution"

// Full method names, as used by grpc.ClientConn.Invoke.
const (
	MethodPing                 = "/" + ServiceName + "/Ping"
	MethodResolveSync          = "/" + ServiceName + "/ResolveSync"
	MethodSubmitAsync          = "/" + ServiceName + "/SubmitAsync"
	MethodGetSubContexts       = "/" + ServiceName + "/GetSubContexts"
	MethodGetAsyncStatus       = "/" + ServiceName + "/GetAsyncStatus"
	MethodGetAsyncErrorMessage = "/" + ServiceName + "/GetAsyncErrorMessage"
	MethodGetAsyncResponse     = "/" + ServiceName + "/GetAsyncResponse"
	MethodRequestCancellation  = "/" + ServiceName + "/RequestCancellation"
	MethodFinishAsync          = "/" + ServiceName + "/FinishAsync"
	MethodReleaseCacheRecord   = "/" + ServiceName + "/ReleaseCacheRecord"
	MethodMockHTTP             = "/" + ServiceName + "/MockHTTP"
)

// Codec is the msgpack message codec for gRPC, installed with
// grpc.ForceServerCodec on the server and grpc.ForceCodec on client calls.
type Codec struct{}

func handle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.RawToString = true
	h.WriteExt = true
	return h
}

func (Codec) Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, handle()).Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack marshal failed: %w", err)
	}
	return out, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := codec.NewDecoderBytes(data, handle()).Decode(v); err != nil {
		return fmt.Errorf("msgpack unmarshal failed: %w", err)
	}
	return nil
}

func (Codec) Name() string {
	return "msgpack"
}

// Empty is the empty message.
type Empty struct{}

// ResolveRequest submits a serialized request, synchronously or
// asynchronously. Config is the flat configuration map forwarded to the
// peer; NeedRecordLock asks the peer to pin the resolved cache record.
type ResolveRequest struct {
	Config         map[string]any `codec:"config"`
	SeriReq        []byte         `codec:"seri_req"`
	NeedRecordLock bool           `codec:"need_record_lock"`
}

// ResolveResponse carries a serialized result. RecordID is the pinned
// cache-record id, 0 when no pin was requested.
type ResolveResponse struct {
	Data     []byte `codec:"data"`
	RecordID int64  `codec:"record_id"`
}

// SubmitAsyncResponse returns the remote id of the root context.
type SubmitAsyncResponse struct {
	RemoteID uint64 `codec:"remote_id"`
}

// AsyncIDRequest addresses one context in an async tree.
type AsyncIDRequest struct {
	RemoteID uint64 `codec:"remote_id"`
}

// StatusResponse carries an async.Status value.
type StatusResponse struct {
	Status int `codec:"status"`
}

// ErrorMessageResponse carries a node's failure message.
type ErrorMessageResponse struct {
	Message string `codec:"message"`
}

// SubContextSpec describes one child of an async tree node.
type SubContextSpec struct {
	RemoteID  uint64 `codec:"remote_id"`
	IsRequest bool   `codec:"is_request"`
}

// SubContextsResponse lists a node's children in order.
type SubContextsResponse struct {
	Children []SubContextSpec `codec:"children"`
}

// ReleaseCacheRecordRequest drops a cache-record pin.
type ReleaseCacheRecordRequest struct {
	RecordID int64 `codec:"record_id"`
}

// MockHTTPRequest instructs the peer to mock HTTP traffic, answering
// every request with the given body.
type MockHTTPRequest struct {
	Body string `codec:"body"`
}
