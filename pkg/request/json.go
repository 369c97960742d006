package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/opencradle/cradle/pkg/blob"
)

// Requests serialize to canonical JSON. The class-name field is "uuid" and
// is the source of polymorphic dispatch on load. Function requests carry
// their subrequests in an ordered "args" array; value leaves inline the
// literal; proxy requests carry only uuid and title.

// MalformedJSONError wraps a JSON syntax failure during deserialization.
type MalformedJSONError struct {
	Err error
}

func (e *MalformedJSONError) Error() string {
	return "malformed request JSON: " + e.Err.Error()
}

func (e *MalformedJSONError) Unwrap() error {
	return e.Err
}

// MissingFieldError indicates a serialized request lacking a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("request JSON is missing field %q", e.Field)
}

type jsonRequest struct {
	Uuid  string            `json:"uuid"`
	Title string            `json:"title,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

// Serialize renders a request as canonical JSON. The request must have a
// non-empty uuid.
func Serialize(req Request) ([]byte, error) {
	if !Serializable(req) {
		return nil, &UuidError{Msg: "request with empty uuid is not serializable"}
	}
	raw, err := serializeNode(req)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func serializeNode(req Request) (json.RawMessage, error) {
	switch t := req.(type) {
	case *Function:
		jr := jsonRequest{Uuid: t.Uuid().Str(), Title: t.Title()}
		for _, a := range t.Args() {
			ra, err := serializeArg(a)
			if err != nil {
				return nil, err
			}
			jr.Args = append(jr.Args, ra)
		}
		return json.Marshal(jr)
	case *Proxy:
		return json.Marshal(jsonRequest{Uuid: t.Uuid().Str(), Title: t.Title()})
	default:
		return nil, &UuidError{Msg: fmt.Sprintf("cannot serialize request of kind %T", req)}
	}
}

func serializeArg(req Request) (json.RawMessage, error) {
	if v, ok := req.(*Value); ok {
		return json.Marshal(v.Payload())
	}
	if !Serializable(req) {
		return nil, &UuidError{Msg: "subrequest with empty uuid is not serializable"}
	}
	return serializeNode(req)
}

var uuidFieldRe = regexp.MustCompile(`"uuid"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// Deserialize reconstructs a request from its JSON form. The uuid is
// extracted with a regex scan of the text and dispatched through the
// registry.
func Deserialize(reg *Registry, data []byte) (Request, error) {
	m := uuidFieldRe.FindSubmatch(data)
	if m == nil {
		return nil, &MissingFieldError{Field: "uuid"}
	}
	var uuid string
	if err := json.Unmarshal(append(append([]byte{'"'}, m[1]...), '"'), &uuid); err != nil {
		return nil, &MalformedJSONError{Err: err}
	}
	entry, err := reg.Lookup(uuid)
	if err != nil {
		return nil, err
	}
	return entry.Load(reg, data)
}

func decodeNode(data []byte) (jsonRequest, error) {
	var jr jsonRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&jr); err != nil {
		return jr, &MalformedJSONError{Err: err}
	}
	if jr.Uuid == "" {
		return jr, &MissingFieldError{Field: "uuid"}
	}
	return jr, nil
}

// deserializeArg decodes one element of an "args" array: either a nested
// request object (an object carrying a "uuid" key) or an inline literal.
func deserializeArg(reg *Registry, raw json.RawMessage) (Request, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, &MalformedJSONError{Err: err}
		}
		if _, ok := probe["uuid"]; ok {
			return Deserialize(reg, raw)
		}
	}
	v, err := decodeJSONValue(raw)
	if err != nil {
		return nil, err
	}
	return RqValue(v), nil
}

// decodeJSONValue parses a JSON literal into the value algebra. Numbers
// without a fraction or exponent become int64; objects in the blob wire
// shape become blobs.
func decodeJSONValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &MalformedJSONError{Err: err}
	}
	return convertJSONValue(v)
}

func convertJSONValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string:
		return t, nil
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			return t.Int64()
		}
		return t.Float64()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ce, err := convertJSONValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ce
		}
		return out, nil
	case map[string]any:
		if _, ok := t["as_file"]; ok {
			raw, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			var b blob.Blob
			if err := b.UnmarshalJSON(raw); err != nil {
				return nil, err
			}
			return b, nil
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			ce, err := convertJSONValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = ce
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value type %T", v)
	}
}
