package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

func sampleTargets() []cdp.Target {
	return []cdp.Target{
		{ID: "p1", Type: "page", URL: "http://localhost:3000/"},
		{ID: "sw", Type: "service_worker", URL: "http://localhost:3000/sw.js"},
		{ID: "p2", Type: "page", URL: "https://example.com/"},
		{ID: "p3", Type: "page", URL: "http://localhost:3000/admin"},
	}
}

func ids(targets []cdp.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.ID)
	}
	return out
}

func TestResolveTargets(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter keeps all pages", Filter{}, []string{"p1", "p2", "p3"}},
		{"url substring", Filter{URLSubstring: "localhost:3000"}, []string{"p1", "p3"}},
		{"tab indices count pages only", Filter{TabIndices: []int{2, 3}}, []string{"p2", "p3"}},
		{"indices and substring combine", Filter{URLSubstring: "localhost", TabIndices: []int{1, 2}}, []string{"p1"}},
		{"out of range indices", Filter{TabIndices: []int{0, -1, 9}}, []string{}},
		{"no match", Filter{URLSubstring: "nowhere"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTargets(sampleTargets(), tt.filter)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestResolveTargets_Empty(t *testing.T) {
	got := ResolveTargets(nil, Filter{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPageTargets(t *testing.T) {
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(PageTargets(sampleTargets())))
}
