package capture

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

func fixedClock(t *testing.T) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.UnixMilli(1700000000123) }
	t.Cleanup(func() { now = prev })
}

func decode(t *testing.T, method, params string) cdp.Event {
	t.Helper()
	ev, err := cdp.DecodeEvent(method, json.RawMessage(params))
	require.NoError(t, err)
	return ev
}

var tab = cdp.Target{ID: "T1", Type: "page", Title: "Home", URL: "http://localhost:3000/"}

func TestNormalize_Console(t *testing.T) {
	fixedClock(t)
	raw := decode(t, "Runtime.consoleAPICalled", `{
		"type": "log",
		"args": [{"type":"string","value":"hi"}, {"type":"number","value":1}],
		"executionContextId": 1,
		"timestamp": 1.5
	}`)

	ev, err := Normalize(raw, tab)
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"ts": 1700000000123,
		"event": "console",
		"type": "log",
		"url": "http://localhost:3000/",
		"args": ["hi", 1],
		"tab": {"id": "T1", "title": "Home"}
	}`, string(data))
}

func TestNormalize_ConsoleURLFromStack(t *testing.T) {
	fixedClock(t)
	raw := decode(t, "Runtime.consoleAPICalled", `{
		"type": "error",
		"args": [],
		"executionContextId": 1,
		"timestamp": 1,
		"stackTrace": {"callFrames": [
			{"functionName":"f","scriptId":"9","url":"http://localhost:3000/app.js","lineNumber":3,"columnNumber":7,"extra":"kept"}
		]}
	}`)

	ev, err := Normalize(raw, tab)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/app.js", ev.URL)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	frames := out["stackTrace"].(map[string]any)["callFrames"].([]any)
	assert.Equal(t, "kept", frames[0].(map[string]any)["extra"])
	assert.NotContains(t, out, "args")
}

func TestNormalize_UnknownURL(t *testing.T) {
	raw := decode(t, "Runtime.consoleAPICalled", `{"type":"info","args":[],"executionContextId":1,"timestamp":1}`)

	ev, err := Normalize(raw, cdp.Target{})
	require.NoError(t, err)
	assert.Equal(t, UnknownURL, ev.URL)
	assert.Nil(t, ev.Tab)
}

func TestNormalize_SentinelArgs(t *testing.T) {
	raw := decode(t, "Runtime.consoleAPICalled", `{
		"type": "log",
		"args": [
			{"type":"undefined"},
			{"type":"function","className":"Function","description":"function f() {}","objectId":"1"},
			{"type":"symbol","description":"Symbol(a)","objectId":"2"},
			{"type":"bigint","unserializableValue":"5n","description":"5n"},
			{"type":"number","unserializableValue":"Infinity","description":"Infinity"}
		],
		"executionContextId": 1,
		"timestamp": 1
	}`)

	ev, err := Normalize(raw, tab)
	require.NoError(t, err)
	assert.Equal(t, []any{UndefinedSentinel, FunctionSentinel, SymbolSentinel, "[BigInt: 5]", "Infinity"}, ev.Args)
}

func TestNormalize_Exception(t *testing.T) {
	fixedClock(t)
	details := `{
		"exceptionId": 3,
		"text": "Uncaught",
		"lineNumber": 10,
		"columnNumber": 2,
		"url": "http://localhost:3000/boom.js",
		"stackTrace": {"callFrames": [{"functionName":"","scriptId":"1","url":"http://localhost:3000/boom.js","lineNumber":10,"columnNumber":2}]},
		"exception": {"type":"object","subtype":"error","className":"TypeError","description":"TypeError: x is undefined"}
	}`
	raw := decode(t, "Runtime.exceptionThrown", `{"timestamp": 2, "exceptionDetails": `+details+`}`)

	ev, err := Normalize(raw, tab)
	require.NoError(t, err)
	assert.Equal(t, EventException, ev.Event)
	assert.Equal(t, "exception", ev.Type)
	assert.Equal(t, "http://localhost:3000/boom.js", ev.URL)
	assert.Nil(t, ev.Args)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	var out struct {
		TS               int64           `json:"ts"`
		ExceptionDetails json.RawMessage `json:"exceptionDetails"`
		StackTrace       json.RawMessage `json:"stackTrace"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, int64(1700000000123), out.TS)
	assert.JSONEq(t, details, string(out.ExceptionDetails))
	assert.NotEmpty(t, out.StackTrace)
}

func TestNormalize_ExceptionFallsBackToTargetURL(t *testing.T) {
	raw := decode(t, "Runtime.exceptionThrown", `{"timestamp": 2, "exceptionDetails": {"exceptionId":1,"text":"x","lineNumber":0,"columnNumber":0}}`)

	ev, err := Normalize(raw, tab)
	require.NoError(t, err)
	assert.Equal(t, tab.URL, ev.URL)
	assert.Nil(t, ev.StackTrace)
}

func TestNormalize_TypedPayloadWithoutRawJSON(t *testing.T) {
	raw := cdp.Event{
		Kind: cdp.EventExceptionThrown,
		Exception: &proto.RuntimeExceptionThrown{
			ExceptionDetails: &proto.RuntimeExceptionDetails{Text: "boom", URL: "http://localhost:3000/x.js"},
		},
	}

	ev, err := Normalize(raw, tab)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/x.js", ev.URL)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text":"boom"`)
}

func TestNormalize_Errors(t *testing.T) {
	_, err := FromConsoleCall(cdp.Event{Kind: cdp.EventConsoleAPICalled}, tab)
	var nerr *NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "console", nerr.Kind)

	_, err = FromException(cdp.Event{Kind: cdp.EventExceptionThrown, Exception: &proto.RuntimeExceptionThrown{}}, tab)
	assert.True(t, errors.As(err, &nerr))

	_, err = Normalize(cdp.Event{Kind: "Page.loadEventFired"}, tab)
	assert.True(t, errors.As(err, &nerr))
}
