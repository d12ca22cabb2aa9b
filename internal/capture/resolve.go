package capture

import (
	"slices"
	"strings"

	"github.com/standardbeagle/consolelog/internal/cdp"
)

// Filter selects which page targets to attach to.
type Filter struct {
	// URLSubstring keeps targets whose URL contains it. Empty matches all.
	URLSubstring string
	// TabIndices keeps targets by 1-based position among page targets.
	TabIndices []int
}

// PageTargets returns the page-type targets in listing order.
func PageTargets(all []cdp.Target) []cdp.Target {
	pages := make([]cdp.Target, 0, len(all))
	for _, t := range all {
		if t.Type == cdp.TargetTypePage {
			pages = append(pages, t)
		}
	}
	return pages
}

// ResolveTargets applies f to the page targets in all. Tab positions are
// counted after the page filter and before the URL filter. The result is
// never nil; an empty result is not an error.
func ResolveTargets(all []cdp.Target, f Filter) []cdp.Target {
	pages := PageTargets(all)
	selected := make([]cdp.Target, 0, len(pages))
	for i, t := range pages {
		if len(f.TabIndices) > 0 && !slices.Contains(f.TabIndices, i+1) {
			continue
		}
		if !strings.Contains(t.URL, f.URLSubstring) {
			continue
		}
		selected = append(selected, t)
	}
	return selected
}
