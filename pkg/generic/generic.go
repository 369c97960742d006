// Package generic provides small built-in request classes: arithmetic
// over literals and subrequests, and test blobs. They exercise the full
// resolution machinery and give servers a default catalog to serve.
package generic

import (
	"context"
	"fmt"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/request"
)

func addFn(ctx context.Context, args ...any) (any, error) {
	var sum int64
	for _, a := range args {
		n, ok := a.(int64)
		if !ok {
			return nil, fmt.Errorf("addition wants integers, got %T", a)
		}
		sum += n
	}
	return sum, nil
}

func mulFn(ctx context.Context, args ...any) (any, error) {
	prod := int64(1)
	for _, a := range args {
		n, ok := a.(int64)
		if !ok {
			return nil, fmt.Errorf("multiplication wants integers, got %T", a)
		}
		prod *= n
	}
	return prod, nil
}

func makeBlobFn(ctx context.Context, args ...any) (any, error) {
	size, ok := args[0].(int64)
	if !ok {
		return nil, fmt.Errorf("make_blob wants an integer size, got %T", args[0])
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return blob.FromBytes(data), nil
}

// RqAdd builds an addition request over the given subrequests.
func RqAdd(level request.CachingLevel, args ...request.Request) *request.Function {
	return request.RqFunction(request.Props{
		Uuid:  request.MustUuid("generic/addition"),
		Level: level,
	}, addFn, args...)
}

// RqAddLiterals builds an addition request over integer literals.
func RqAddLiterals(level request.CachingLevel, values ...int64) *request.Function {
	args := make([]request.Request, len(values))
	for i, v := range values {
		args[i] = request.RqValue(v)
	}
	return RqAdd(level, args...)
}

// RqMul builds a multiplication request over the given subrequests.
func RqMul(level request.CachingLevel, args ...request.Request) *request.Function {
	return request.RqFunction(request.Props{
		Uuid:  request.MustUuid("generic/multiplication"),
		Level: level,
	}, mulFn, args...)
}

// RqMakeBlob builds a request producing a deterministic blob of the given
// size.
func RqMakeBlob(level request.CachingLevel, size int64) *request.Function {
	return request.RqFunction(request.Props{
		Uuid:  request.MustUuid("generic/make_blob"),
		Level: level,
	}, makeBlobFn, request.RqValue(size))
}

// NewCatalog registers one sample per request class and caching level, so
// any serialized generic request can be resolved.
func NewCatalog(reg *request.Registry) (*request.Catalog, error) {
	cat := request.NewCatalog("generic", reg)
	for _, level := range []request.CachingLevel{
		request.LevelNone, request.LevelMemory, request.LevelFull,
	} {
		samples := []request.Request{
			RqAddLiterals(level, 0, 0),
			RqMul(level, request.RqValue(int64(1))),
			RqMakeBlob(level, 1),
		}
		for _, s := range samples {
			if err := cat.RegisterResolver(s); err != nil {
				cat.Close()
				return nil, err
			}
		}
	}
	return cat, nil
}
