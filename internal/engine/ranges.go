package engine

import (
	"strings"

	"github.com/audiopcb/veritas/internal/models"
)

// rangeHeuristic maps a parameter-name pattern to a search window around the
// current value. The table is ordered; the first matching entry wins.
type rangeHeuristic struct {
	name    string
	matches func(name string) bool
	build   func(current float64) (min, max, step float64)
}

var rangeHeuristics = []rangeHeuristic{
	{
		name:    "threshold",
		matches: func(n string) bool { return strings.Contains(n, "threshold") },
		build: func(c float64) (float64, float64, float64) {
			return 0.5 * c, 1.5 * c, 0.1 * c
		},
	},
	{
		name:    "minimum",
		matches: func(n string) bool { return strings.HasPrefix(n, "min_") },
		build: func(c float64) (float64, float64, float64) {
			return 0, 2 * c, 0.1 * c
		},
	},
	{
		name:    "maximum",
		matches: func(n string) bool { return strings.HasPrefix(n, "max_") },
		build: func(c float64) (float64, float64, float64) {
			return 0.5 * c, 2 * c, 0.1 * c
		},
	},
	{
		name:    "tolerance",
		matches: func(n string) bool { return strings.Contains(n, "tolerance") },
		build: func(c float64) (float64, float64, float64) {
			return 0, 2 * c, 0.05 * c
		},
	},
}

// MatchesHeuristic reports whether a parameter name matches any range
// pattern, regardless of whether a usable window can be derived from its
// current value.
func MatchesHeuristic(name string) bool {
	lower := strings.ToLower(name)
	for _, h := range rangeHeuristics {
		if h.matches(lower) {
			return true
		}
	}
	return false
}

// RangeFor derives the search window for a parameter from its name pattern
// and current value. Parameters matching no pattern, or whose derived step is
// not positive, have no range and are skipped by the optimizer.
func RangeFor(name string, current float64) (models.ParameterRange, bool) {
	lower := strings.ToLower(name)
	for _, h := range rangeHeuristics {
		if !h.matches(lower) {
			continue
		}
		min, max, step := h.build(current)
		if step <= 0 || max <= min {
			return models.ParameterRange{}, false
		}
		return models.ParameterRange{
			Name:         name,
			MinValue:     min,
			MaxValue:     max,
			Step:         step,
			CurrentValue: current,
		}, true
	}
	return models.ParameterRange{}, false
}

// tightens reports whether raising the parameter makes the rule stricter.
// Minimum-style parameters tighten as they grow; threshold, maximum and
// tolerance parameters relax.
func tightens(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "min_")
}
