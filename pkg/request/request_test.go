package request

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencradle/cradle/pkg/blob"
)

func addFn(ctx context.Context, args ...any) (any, error) {
	var sum int64
	for _, a := range args {
		sum += a.(int64)
	}
	return sum, nil
}

func mulFn(ctx context.Context, args ...any) (any, error) {
	prod := int64(1)
	for _, a := range args {
		prod *= a.(int64)
	}
	return prod, nil
}

func rqAdd(level CachingLevel, args ...Request) *Function {
	return RqFunction(Props{Uuid: MustUuid("test/add"), Level: level}, addFn, args...)
}

func TestUuidBaseValidation(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		wantErr bool
	}{
		{name: "plain base", base: "my-request"},
		{name: "slash allowed", base: "domain/op"},
		{name: "empty base", base: "", wantErr: true},
		{name: "plus rejected", base: "bad+ext", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewUuid(tt.base)
			if tt.wantErr {
				var uuidErr *UuidError
				assert.ErrorAs(t, err, &uuidErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.base, u.Str())
		})
	}
}

func TestUuidExtensions(t *testing.T) {
	u := MustUuid("base")
	assert.Equal(t, "base+none", u.WithLevel(LevelNone).Str())
	assert.Equal(t, "base+mem", u.WithLevel(LevelMemory).Str())
	assert.Equal(t, "base+full", u.WithLevel(LevelFull).Str())
	assert.Equal(t, "base+full+flattened", u.WithLevel(LevelFull).WithFlattened().Str())

	assert.Panics(t, func() {
		u.WithFlattened().WithFlattened()
	})
}

func TestUuidVersionSuffix(t *testing.T) {
	u, err := NewVersionedUuid("base", "v2")
	require.NoError(t, err)
	assert.Equal(t, "base@v2+mem", u.WithLevel(LevelMemory).Str())
}

func TestEmptyUuid(t *testing.T) {
	var u Uuid
	assert.True(t, u.Empty())
	assert.False(t, u.Serializable())
	assert.False(t, u.DiskCacheable())
	assert.Equal(t, "", u.Str())
}

func TestRequestEqualityByCapturedID(t *testing.T) {
	a := rqAdd(LevelMemory, RqValue(2), RqValue(3))
	b := rqAdd(LevelMemory, RqValue(2), RqValue(3))
	c := rqAdd(LevelMemory, RqValue(2), RqValue(4))

	assert.True(t, Equal(a, b))
	assert.Equal(t, Hash(a), Hash(b))
	assert.False(t, Equal(a, c))

	// A different function binding means a different uuid, hence a
	// different identity even with equal arguments.
	d := RqFunction(Props{Uuid: MustUuid("test/mul"), Level: LevelMemory},
		mulFn, RqValue(2), RqValue(3))
	assert.False(t, Equal(a, d))
}

func TestCachingPredicates(t *testing.T) {
	assert.False(t, Cacheable(rqAdd(LevelNone, RqValue(1))))
	assert.True(t, Cacheable(rqAdd(LevelMemory, RqValue(1))))
	assert.False(t, DiskCacheable(rqAdd(LevelMemory, RqValue(1))))
	assert.True(t, DiskCacheable(rqAdd(LevelFull, RqValue(1))))

	anon := RqFunction(Props{Level: LevelFull}, addFn, RqValue(1))
	assert.False(t, DiskCacheable(anon))
	assert.False(t, Serializable(anon))
}

func TestVisitOrder(t *testing.T) {
	req := rqAdd(LevelMemory, RqValue(1), RqValue(2), RqValue(3))
	var seen []int64
	err := req.Visit(func(sub Request) error {
		seen = append(seen, sub.(*Value).Payload().(int64))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestNestedUuidCombination(t *testing.T) {
	inner := rqAdd(LevelMemory, RqValue(1), RqValue(2))
	outer := rqAdd(LevelMemory, inner, RqValue(3))
	flat := rqAdd(LevelMemory, RqValue(3), RqValue(3))

	assert.Contains(t, outer.EffectiveUuid().Str(), "test/add/test/add")
	assert.False(t, Equal(outer, flat))
}

func TestRegistryCollision(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog("test", reg)

	sampleA := rqAdd(LevelMemory, RqValue(0), RqValue(0))
	require.NoError(t, cat.RegisterResolver(sampleA))

	// Idempotent for the same function binding.
	require.NoError(t, cat.RegisterResolver(rqAdd(LevelMemory, RqValue(9), RqValue(9))))

	// A different binding under the same uuid is a collision.
	sampleB := RqFunction(Props{Uuid: MustUuid("test/add"), Level: LevelMemory},
		mulFn, RqValue(0))
	err := cat.RegisterResolver(sampleB)
	var collision *UuidCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "test/add+mem", collision.Uuid)
}

func TestCatalogClose(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog("test", reg)
	require.NoError(t, cat.RegisterResolver(rqAdd(LevelMemory, RqValue(0), RqValue(0))))
	require.Len(t, reg.Uuids(), 1)

	cat.Close()
	assert.Empty(t, reg.Uuids())
	cat.Close() // idempotent
}

func TestSerializationRoundTrip(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog("test", reg)
	require.NoError(t, cat.RegisterResolver(rqAdd(LevelMemory, RqValue(0), RqValue(0))))

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "literal args",
			req:  rqAdd(LevelMemory, RqValue(2), RqValue(3)),
		},
		{
			name: "mixed value kinds",
			req: rqAdd(LevelMemory,
				RqValue("s"), RqValue(true), RqValue(2.5),
				RqValue(blob.FromBytes([]byte{1, 2}))),
		},
		{
			name: "nested subrequest",
			req: rqAdd(LevelMemory,
				rqAdd(LevelMemory, RqValue(1), RqValue(2)),
				RqValue(3)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Serialize(tt.req)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"uuid":"test/add+mem"`)

			back, err := Deserialize(reg, data)
			require.NoError(t, err)
			assert.True(t, Equal(tt.req, back))
			assert.Equal(t, Hash(tt.req), Hash(back))
		})
	}
}

func TestProxySerializationRoundTrip(t *testing.T) {
	reg := NewRegistry()
	cat := NewCatalog("test", reg)
	proxy := RqProxy(Props{
		Uuid:          MustUuid("test/proxied"),
		Level:         LevelMemory,
		Introspective: true,
		Title:         "proxied op",
	})
	require.NoError(t, cat.RegisterResolver(proxy))

	data, err := Serialize(proxy)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"proxied op"`)

	back, err := Deserialize(reg, data)
	require.NoError(t, err)
	assert.True(t, Equal(proxy, back))
	assert.Equal(t, "proxied op", back.Title())
}

func TestDeserializeErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := Deserialize(reg, []byte(`{"uuid":"nobody+mem","args":[]}`))
	var unreg *UnregisteredUuidError
	require.ErrorAs(t, err, &unreg)
	assert.Equal(t, "nobody+mem", unreg.Uuid)

	_, err = Deserialize(reg, []byte(`{"no":"uuid"}`))
	var missing *MissingFieldError
	assert.ErrorAs(t, err, &missing)
}

func TestValueRequestNotSerializable(t *testing.T) {
	_, err := Serialize(RqValue(5))
	var uuidErr *UuidError
	assert.ErrorAs(t, err, &uuidErr)
}
