package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

// now is replaced in tests.
var now = time.Now

// FromConsoleCall builds the Event for a Runtime.consoleAPICalled
// notification received from src.
func FromConsoleCall(raw cdp.Event, src cdp.Target) (ev Event, err error) {
	defer recoverNormalization(string(EventConsole), &err)

	p := raw.Console
	if p == nil {
		return Event{}, &NormalizationError{Kind: string(EventConsole), Err: errors.New("nil payload")}
	}

	args := make([]any, 0, len(p.Args))
	for _, arg := range p.Args {
		args = append(args, SafeSerialize(RemoteValue(arg)))
	}

	ev = Event{
		TS:    now().UnixMilli(),
		Event: EventConsole,
		Type:  string(p.Type),
		URL:   sourceURL(cdp.FirstURL(p.StackTrace), src.URL),
		Args:  args,
		Tab:   tabOf(src),
	}
	if len(raw.StackTrace) > 0 {
		ev.StackTrace = raw.StackTrace
	}
	return ev, nil
}

// FromException builds the Event for a Runtime.exceptionThrown notification
// received from src.
func FromException(raw cdp.Event, src cdp.Target) (ev Event, err error) {
	defer recoverNormalization(string(EventException), &err)

	if raw.Exception == nil || raw.Exception.ExceptionDetails == nil {
		return Event{}, &NormalizationError{Kind: string(EventException), Err: errors.New("missing exception details")}
	}
	details := raw.Exception.ExceptionDetails

	ev = Event{
		TS:    now().UnixMilli(),
		Event: EventException,
		Type:  string(EventException),
		URL:   sourceURL(details.URL, src.URL),
		Tab:   tabOf(src),
	}
	if len(raw.ExceptionDetails) > 0 {
		ev.ExceptionDetails = raw.ExceptionDetails
	} else {
		ev.ExceptionDetails = details
	}
	if len(raw.StackTrace) > 0 {
		ev.StackTrace = raw.StackTrace
	} else if details.StackTrace != nil {
		ev.StackTrace = details.StackTrace
	}
	return ev, nil
}

// Normalize dispatches a transport event to the matching constructor.
func Normalize(raw cdp.Event, src cdp.Target) (Event, error) {
	switch raw.Kind {
	case cdp.EventConsoleAPICalled:
		return FromConsoleCall(raw, src)
	case cdp.EventExceptionThrown:
		return FromException(raw, src)
	default:
		return Event{}, &NormalizationError{Kind: string(raw.Kind), Err: errors.New("unsupported event")}
	}
}

func recoverNormalization(kind string, err *error) {
	if r := recover(); r != nil {
		*err = &NormalizationError{Kind: kind, Err: fmt.Errorf("panic: %v", r)}
	}
}

func sourceURL(candidates ...string) string {
	for _, u := range candidates {
		if u != "" {
			return u
		}
	}
	return UnknownURL
}

func tabOf(src cdp.Target) *Tab {
	if src.ID == "" {
		return nil
	}
	return &Tab{ID: src.ID, Title: src.Title}
}
