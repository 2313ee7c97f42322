package civitai

import (
	"encoding/json"
	"fmt"

	"civharvest/pkg/errors"

	"github.com/tidwall/gjson"
)

// Payload is the procedure input placed under the "json" key.
type Payload map[string]any

type envelopeMeta struct {
	Values map[string][]string `json:"values"`
}

type envelope struct {
	JSON Payload       `json:"json"`
	Meta *envelopeMeta `json:"meta,omitempty"`
}

// firstPageMeta tells the server that cursor is JavaScript undefined. It is
// sent only while no cursor is known; sending it later resets pagination.
var firstPageMeta = &envelopeMeta{
	Values: map[string][]string{"cursor": {"undefined"}},
}

// Encode renders payload as the compact "input" query value.
func Encode(payload Payload) (string, error) {
	if payload == nil {
		payload = Payload{}
	}

	env := envelope{JSON: payload}
	if payload["cursor"] == nil {
		env.Meta = firstPageMeta
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode tRPC input: %w", err)
	}
	return string(data), nil
}

// Decode unwraps a tRPC response body. Batch bodies use their first element;
// result.data.json is preferred over result.data, and any other shape is
// returned as decoded.
func Decode(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Message: "response body is not valid JSON",
		}
	}

	root := gjson.ParseBytes(body)
	if root.IsArray() {
		if first := root.Get("0"); first.Exists() {
			root = first
		}
	}

	if v := root.Get("result.data.json"); v.Exists() {
		return v, nil
	}
	if v := root.Get("result.data"); v.Exists() {
		return v, nil
	}
	return root, nil
}

// EnvelopeError extracts the message of a tRPC error envelope.
func EnvelopeError(body []byte) (string, bool) {
	root := gjson.ParseBytes(body)
	for _, path := range []string{"0.error.json.message", "error.json.message", "error.message"} {
		if v := root.Get(path); v.Exists() {
			return v.String(), true
		}
	}
	if root.Get("0.error").Exists() || root.Get("error").IsObject() {
		return "unknown error", true
	}
	return "", false
}

// CursorFrom converts a nextCursor value into an opaque payload cursor:
// strings stay strings, numbers keep their exact text as json.Number, and
// null or missing values yield nil.
func CursorFrom(r gjson.Result) any {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.Null:
		return nil
	default:
		if !r.Exists() {
			return nil
		}
		// objects and booleans are echoed back verbatim
		return json.RawMessage(r.Raw)
	}
}

// SameCursor compares two cursors without interpreting them. A string and
// a number with the same text are different cursors.
func SameCursor(a, b any) bool {
	return cursorKey(a) == cursorKey(b)
}

func cursorKey(c any) string {
	switch v := c.(type) {
	case nil:
		return "nil:"
	case string:
		return "s:" + v
	case json.Number:
		return "n:" + string(v)
	case json.RawMessage:
		return "r:" + string(v)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
