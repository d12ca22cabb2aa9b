package cdp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// EventKind identifies the protocol event carried by an Event.
type EventKind string

var (
	// EventConsoleAPICalled is emitted for console.log, console.warn, etc.
	EventConsoleAPICalled = EventKind((&proto.RuntimeConsoleAPICalled{}).ProtoEvent())
	// EventExceptionThrown is emitted for uncaught exceptions.
	EventExceptionThrown = EventKind((&proto.RuntimeExceptionThrown{}).ProtoEvent())
)

// Event is a union type for the Runtime events the capture pipeline consumes.
// Exactly one payload pointer is set, matching Kind.
//
// StackTrace and ExceptionDetails hold the payload's original JSON so it can
// be written out verbatim, including fields the typed payload drops.
type Event struct {
	Kind      EventKind
	Console   *proto.RuntimeConsoleAPICalled
	Exception *proto.RuntimeExceptionThrown

	StackTrace       json.RawMessage
	ExceptionDetails json.RawMessage
}

// FirstURL returns the URL of the innermost call frame, if any.
func FirstURL(st *proto.RuntimeStackTrace) string {
	if st == nil {
		return ""
	}
	for _, frame := range st.CallFrames {
		if frame != nil {
			return frame.URL
		}
	}
	return ""
}

// errUnhandledEvent marks protocol events the capture pipeline ignores.
var errUnhandledEvent = errors.New("unhandled event")

type rawStack struct {
	StackTrace json.RawMessage `json:"stackTrace"`
}

// DecodeEvent converts a raw protocol notification into an Event.
// Malformed payloads are rejected here so they never reach normalization.
func DecodeEvent(method string, params json.RawMessage) (Event, error) {
	switch EventKind(method) {
	case EventConsoleAPICalled:
		var p proto.RuntimeConsoleAPICalled
		if err := json.Unmarshal(params, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", method, err)
		}
		if p.Type == "" {
			return Event{}, fmt.Errorf("decode %s: missing type", method)
		}
		var raw rawStack
		if err := json.Unmarshal(params, &raw); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", method, err)
		}
		return Event{Kind: EventConsoleAPICalled, Console: &p, StackTrace: present(raw.StackTrace)}, nil

	case EventExceptionThrown:
		var p proto.RuntimeExceptionThrown
		if err := json.Unmarshal(params, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", method, err)
		}
		if p.ExceptionDetails == nil {
			return Event{}, fmt.Errorf("decode %s: missing exceptionDetails", method)
		}
		var raw struct {
			ExceptionDetails json.RawMessage `json:"exceptionDetails"`
		}
		if err := json.Unmarshal(params, &raw); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", method, err)
		}
		var stack rawStack
		if err := json.Unmarshal(raw.ExceptionDetails, &stack); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", method, err)
		}
		return Event{
			Kind:             EventExceptionThrown,
			Exception:        &p,
			StackTrace:       present(stack.StackTrace),
			ExceptionDetails: raw.ExceptionDetails,
		}, nil

	default:
		return Event{}, errUnhandledEvent
	}
}

// present drops absent and null JSON values.
func present(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
