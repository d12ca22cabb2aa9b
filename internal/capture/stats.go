package capture

import (
	"maps"
	"sync"
)

// Stats counts events as they are captured.
type Stats struct {
	mu         sync.Mutex
	total      int
	console    int
	exceptions int
	byType     map[string]int
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Total      int            `json:"total"`
	Console    int            `json:"console"`
	Exceptions int            `json:"exceptions"`
	ByType     map[string]int `json:"by_type"`
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{byType: make(map[string]int)}
}

// Record counts one event.
func (s *Stats) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	switch ev.Event {
	case EventConsole:
		s.console++
	case EventException:
		s.exceptions++
	}
	s.byType[ev.Type]++
}

// Snapshot returns the current counts.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Total:      s.total,
		Console:    s.console,
		Exceptions: s.exceptions,
		ByType:     maps.Clone(s.byType),
	}
}
