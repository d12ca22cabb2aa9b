// Package capture turns browser Runtime events into normalized records and
// manages the set of debugging sessions that produce them.
package capture

import (
	"errors"
	"fmt"
)

// EventType is the category of a captured event.
type EventType string

const (
	// EventConsole is a console API call (log, warn, error, ...).
	EventConsole EventType = "console"
	// EventException is an uncaught exception.
	EventException EventType = "exception"
)

// UnknownURL is recorded when no source URL can be determined.
const UnknownURL = "unknown"

// Tab identifies the browser tab an event came from.
type Tab struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Event is the normalized record written to the log, one JSON object per
// line. It is never modified after it is built.
type Event struct {
	TS               int64     `json:"ts"` // Epoch milliseconds
	Event            EventType `json:"event"`
	Type             string    `json:"type"` // console method or "exception"
	URL              string    `json:"url"`
	StackTrace       any       `json:"stackTrace,omitempty"`
	Args             []any     `json:"args,omitempty"`
	ExceptionDetails any       `json:"exceptionDetails,omitempty"`
	Tab              *Tab      `json:"tab,omitempty"`
}

var (
	// ErrTransport wraps failures to list or attach to targets.
	ErrTransport = errors.New("transport failure")
	// ErrNoSuitableTargets is returned when the filter matches no target.
	ErrNoSuitableTargets = errors.New("no suitable target found")
	// ErrShutdown is returned once Disconnect has been called.
	ErrShutdown = errors.New("capture manager is shut down")
)

// NormalizationError reports a raw payload that could not be turned into an
// Event.
type NormalizationError struct {
	Kind string
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s event: %v", e.Kind, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}
