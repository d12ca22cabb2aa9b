package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFilter_Allow(t *testing.T) {
	logEv := Event{Event: EventConsole, Type: "log"}
	warnEv := Event{Event: EventConsole, Type: "warn"}
	excEv := Event{Event: EventException, Type: "exception"}

	tests := []struct {
		name   string
		filter EventFilter
		want   [3]bool
	}{
		{"everything", EventFilter{IncludeConsole: true, IncludeExceptions: true}, [3]bool{true, true, true}},
		{"console only", EventFilter{IncludeConsole: true}, [3]bool{true, true, false}},
		{"exceptions only", EventFilter{IncludeExceptions: true}, [3]bool{false, false, true}},
		{"levels", EventFilter{IncludeConsole: true, IncludeExceptions: true, Levels: []string{"warn"}}, [3]bool{false, true, true}},
		{"nothing", EventFilter{}, [3]bool{false, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := [3]bool{tt.filter.Allow(logEv), tt.filter.Allow(warnEv), tt.filter.Allow(excEv)}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStats(t *testing.T) {
	s := NewStats()
	s.Record(Event{Event: EventConsole, Type: "log"})
	s.Record(Event{Event: EventConsole, Type: "log"})
	s.Record(Event{Event: EventConsole, Type: "error"})
	s.Record(Event{Event: EventException, Type: "exception"})

	snap := s.Snapshot()
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 3, snap.Console)
	assert.Equal(t, 1, snap.Exceptions)
	assert.Equal(t, map[string]int{"log": 2, "error": 1, "exception": 1}, snap.ByType)

	snap.ByType["log"] = 100
	assert.Equal(t, 2, s.Snapshot().ByType["log"])
}
