package capture

import "slices"

// EventFilter decides which normalized events are persisted.
type EventFilter struct {
	IncludeConsole    bool
	IncludeExceptions bool
	// Levels restricts console events to these methods. Empty allows all.
	Levels []string
}

// Allow reports whether ev passes the filter.
func (f EventFilter) Allow(ev Event) bool {
	switch ev.Event {
	case EventConsole:
		if !f.IncludeConsole {
			return false
		}
		return len(f.Levels) == 0 || slices.Contains(f.Levels, ev.Type)
	case EventException:
		return f.IncludeExceptions
	default:
		return false
	}
}
