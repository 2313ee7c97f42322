package civitai

import (
	"encoding/json"
	"testing"

	"civharvest/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEncodeMeta(t *testing.T) {
	tests := []struct {
		name     string
		payload  Payload
		wantMeta bool
	}{
		{name: "cursor absent", payload: Payload{"collectionId": 1}, wantMeta: true},
		{name: "cursor nil", payload: Payload{"collectionId": 1, "cursor": nil}, wantMeta: true},
		{name: "nil payload", payload: nil, wantMeta: true},
		{name: "string cursor", payload: Payload{"cursor": "abc|123"}, wantMeta: false},
		{name: "numeric cursor", payload: Payload{"cursor": json.Number("9007199254740993")}, wantMeta: false},
		{name: "empty string cursor", payload: Payload{"cursor": ""}, wantMeta: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Encode(tt.payload)
			require.NoError(t, err)
			require.True(t, gjson.Valid(out))

			parsed := gjson.Parse(out)
			assert.True(t, parsed.Get("json").IsObject())
			assert.Equal(t, tt.wantMeta, parsed.Get("meta").Exists())
			if tt.wantMeta {
				assert.Equal(t, `["undefined"]`, parsed.Get("meta.values.cursor").Raw)
			}
		})
	}
}

func TestEncodeIsCompactAndKeepsNumericCursor(t *testing.T) {
	out, err := Encode(Payload{"cursor": json.Number("9007199254740993"), "authed": true})
	require.NoError(t, err)
	assert.Equal(t, `{"json":{"authed":true,"cursor":9007199254740993}}`, out)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "result data json", body: `{"result":{"data":{"json":{"a":1}}}}`, want: `{"a":1}`},
		{name: "batch", body: `[{"result":{"data":{"json":[1,2]}}}]`, want: `[1,2]`},
		{name: "result data only", body: `{"result":{"data":{"b":2}}}`, want: `{"b":2}`},
		{name: "raw body", body: `{"items":[]}`, want: `{"items":[]}`},
		{name: "null json", body: `{"result":{"data":{"json":null}}}`, want: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got.Raw)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte("<html>blocked</html>"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParsing))
}

func TestEnvelopeError(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		wantHit bool
	}{
		{`[{"error":{"json":{"message":"UNAUTHORIZED"}}}]`, "UNAUTHORIZED", true},
		{`{"error":{"json":{"message":"bad input","code":-32600}}}`, "bad input", true},
		{`{"error":{"message":"plain"}}`, "plain", true},
		{`{"error":{}}`, "unknown error", true},
		{`{"result":{"data":{"json":{}}}}`, "", false},
	}

	for _, tt := range tests {
		got, ok := EnvelopeError([]byte(tt.body))
		assert.Equal(t, tt.wantHit, ok, tt.body)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

func TestCursorFromAndSameCursor(t *testing.T) {
	root := gjson.Parse(`{"s":"123","n":123,"big":9007199254740993,"z":null}`)

	assert.Equal(t, "123", CursorFrom(root.Get("s")))
	assert.Equal(t, json.Number("123"), CursorFrom(root.Get("n")))
	assert.Equal(t, json.Number("9007199254740993"), CursorFrom(root.Get("big")))
	assert.Nil(t, CursorFrom(root.Get("z")))
	assert.Nil(t, CursorFrom(root.Get("missing")))

	assert.True(t, SameCursor("a", "a"))
	assert.True(t, SameCursor(nil, nil))
	assert.True(t, SameCursor(json.Number("5"), json.Number("5")))
	assert.False(t, SameCursor("5", json.Number("5")))
	assert.False(t, SameCursor(nil, ""))
	assert.False(t, SameCursor("a", "b"))
}
