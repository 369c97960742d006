package value

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/opencradle/cradle/pkg/blob"
)

// Wire layout: inline blobs travel as msgpack BIN; file-backed blobs travel
// by reference as an ext-wrapped 2-element array [path, offset], so the
// receiving side maps the file instead of copying its contents.

// fileRefExtTag is the msgpack ext type for file-backed blob references.
const fileRefExtTag = 0x01

type fileRef struct {
	Path   string
	Offset uint64
}

type fileRefExt struct{}

func (fileRefExt) WriteExt(v any) []byte {
	var ref *fileRef
	switch t := v.(type) {
	case *fileRef:
		ref = t
	case fileRef:
		ref = &t
	default:
		panic(fmt.Sprintf("unexpected ext value %T", v))
	}
	var out []byte
	enc := codec.NewEncoderBytes(&out, plainHandle())
	if err := enc.Encode([2]any{ref.Path, ref.Offset}); err != nil {
		panic(fmt.Sprintf("failed to encode blob file reference: %v", err))
	}
	return out
}

func (fileRefExt) ReadExt(dst any, src []byte) {
	var arr [2]any
	dec := codec.NewDecoderBytes(src, plainHandle())
	if err := dec.Decode(&arr); err != nil {
		panic(fmt.Sprintf("failed to decode blob file reference: %v", err))
	}
	ref := dst.(*fileRef)
	ref.Path, _ = arr[0].(string)
	switch off := arr[1].(type) {
	case uint64:
		ref.Offset = off
	case int64:
		ref.Offset = uint64(off)
	}
}

func plainHandle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.RawToString = true
	return h
}

func wireHandle() *codec.MsgpackHandle {
	h := plainHandle()
	h.WriteExt = true
	h.SignedInteger = true
	h.MapType = reflect.TypeOf(map[string]any(nil))
	if err := h.SetBytesExt(reflect.TypeOf(fileRef{}), fileRefExtTag, fileRefExt{}); err != nil {
		panic(err)
	}
	return h
}

// Encode serializes a value to msgpack.
func Encode(v any) ([]byte, error) {
	wire, err := toWire(v)
	if err != nil {
		return nil, err
	}
	var out []byte
	enc := codec.NewEncoderBytes(&out, wireHandle())
	if err := enc.Encode(wire); err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return out, nil
}

// Decode deserializes a msgpack-encoded value. File-backed blob references
// are resolved by mapping the referenced file.
func Decode(data []byte) (any, error) {
	var wire any
	dec := codec.NewDecoderBytes(data, wireHandle())
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return fromWire(wire)
}

func toWire(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return t, nil
	case blob.Blob:
		if path := t.MappedFile(); path != "" {
			return &fileRef{Path: path, Offset: t.FileOffset()}, nil
		}
		return t.Bytes(), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			we, err := toWire(e)
			if err != nil {
				return nil, err
			}
			out[i] = we
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			we, err := toWire(e)
			if err != nil {
				return nil, err
			}
			out[k] = we
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromWire(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string:
		return t, nil
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case []byte:
		return blob.FromBytes(t), nil
	case fileRef:
		reader, err := blob.OpenFileReader(t.Path, t.Offset, -1)
		if err != nil {
			return nil, err
		}
		return reader.Blob(), nil
	case *fileRef:
		reader, err := blob.OpenFileReader(t.Path, t.Offset, -1)
		if err != nil {
			return nil, err
		}
		return reader.Blob(), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			de, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			out[i] = de
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			de, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			out[k] = de
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported wire value type %T", v)
	}
}
