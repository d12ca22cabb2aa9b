package capture

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remote(t *testing.T, raw string) *proto.RuntimeRemoteObject {
	t.Helper()
	var obj proto.RuntimeRemoteObject
	require.NoError(t, json.Unmarshal([]byte(raw), &obj))
	return &obj
}

func TestRemoteValue(t *testing.T) {
	tests := []struct {
		name string
		obj  string
		want any
	}{
		{"string", `{"type":"string","value":"hi"}`, "hi"},
		{"number", `{"type":"number","value":3}`, 3.0},
		{"boolean", `{"type":"boolean","value":false}`, false},
		{"object value", `{"type":"object","value":{"a":1}}`, map[string]any{"a": 1.0}},
		{"null", `{"type":"object","subtype":"null","value":null}`, nil},
		{"null without value", `{"type":"object","subtype":"null"}`, nil},
		{"NaN", `{"type":"number","unserializableValue":"NaN","description":"NaN"}`, "NaN"},
		{"negative zero", `{"type":"number","unserializableValue":"-0"}`, "-0"},
		{"description", `{"type":"object","className":"Window","description":"Window","objectId":"1"}`, "Window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemoteValue(remote(t, tt.obj)))
		})
	}
}

func TestRemoteValue_SerializesToSentinels(t *testing.T) {
	tests := []struct {
		obj  string
		want any
	}{
		{`{"type":"undefined"}`, UndefinedSentinel},
		{`{"type":"function","className":"Function","description":"function f() {}"}`, FunctionSentinel},
		{`{"type":"symbol","description":"Symbol(foo)"}`, SymbolSentinel},
		{`{"type":"bigint","unserializableValue":"10n","description":"10n"}`, "[BigInt: 10]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeSerialize(RemoteValue(remote(t, tt.obj))), tt.obj)
	}
	assert.Equal(t, UndefinedSentinel, SafeSerialize(RemoteValue(nil)))
}

func TestRemoteValue_BigInt(t *testing.T) {
	v := RemoteValue(remote(t, `{"type":"bigint","unserializableValue":"123456789012345678901234567890n"}`))
	n, ok := v.(*big.Int)
	if assert.True(t, ok) {
		assert.Equal(t, "123456789012345678901234567890", n.String())
	}
}

func TestRemoteValue_ValuelessObject(t *testing.T) {
	obj := remote(t, `{"type":"object","objectId":"42"}`)
	assert.Equal(t, obj, RemoteValue(obj))

	out, ok := SafeSerialize(RemoteValue(obj)).(*proto.RuntimeRemoteObject)
	if assert.True(t, ok) {
		_, err := json.Marshal(out)
		assert.NoError(t, err)
	}
}
