package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/audiopcb/veritas/internal/models"
)

// maxCandidatesPerParameter hard-caps the grid search so a degenerate range
// can never run unbounded.
const maxCandidatesPerParameter = 200

// Optimizer searches each numeric parameter's heuristic range for values
// that would have scored better against the recorded history. Candidate
// scoring is a deterministic projection from the effectiveness counters; no
// historical boards are replayed.
type Optimizer struct {
	logger *slog.Logger

	mu      sync.RWMutex
	history map[string][]models.OptimizationResult
}

// NewOptimizer constructs an Optimizer with an empty history.
func NewOptimizer(logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		logger:  logger,
		history: make(map[string][]models.OptimizationResult),
	}
}

// OptimizeParameters grid-searches every recognised numeric parameter of the
// rule and returns candidates that beat the current value, sorted by
// descending improvement. A rule with no recognised parameters yields an
// empty slice. Results are appended to the rule's optimization history.
func (o *Optimizer) OptimizeParameters(rule *models.ValidationRule, eff *models.RuleEffectiveness, strategy models.OptimizationStrategy) []models.OptimizationResult {
	results := make([]models.OptimizationResult, 0)
	if rule == nil || eff == nil || !strategy.IsValid() {
		return results
	}

	for name, current := range rule.Parameters {
		rng, ok := RangeFor(name, current)
		if !ok {
			continue
		}

		currentScore := o.evaluateParameter(name, current, current, eff, strategy)
		candidates := 0
		for value := rng.MinValue; value <= rng.MaxValue+rng.Step/2; value += rng.Step {
			candidates++
			if candidates > maxCandidatesPerParameter {
				o.logger.Warn("candidate cap reached",
					slog.String("rule_id", rule.ID), slog.String("parameter", name))
				break
			}
			score := o.evaluateParameter(name, value, current, eff, strategy)
			improvement := score - currentScore
			if improvement <= 0 {
				continue
			}
			results = append(results, models.OptimizationResult{
				RuleID:         rule.ID,
				ParameterName:  name,
				OriginalValue:  current,
				OptimizedValue: value,
				Improvement:    improvement,
				Strategy:       strategy,
				Metrics:        o.calculateMetrics(name, value, current, eff),
				CreatedAt:      time.Now().UTC(),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Improvement > results[j].Improvement
	})

	if len(results) > 0 {
		o.mu.Lock()
		o.history[rule.ID] = append(o.history[rule.ID], results...)
		o.mu.Unlock()
	}
	return results
}

// evaluateParameter scores a candidate value in [0,1] under the strategy,
// using projected metrics derived from the recorded counters.
func (o *Optimizer) evaluateParameter(name string, value, current float64, eff *models.RuleEffectiveness, strategy models.OptimizationStrategy) float64 {
	m := o.calculateMetrics(name, value, current, eff)

	switch strategy {
	case models.StrategyMinimizeFailures:
		return clamp01(1 - m["failure_rate"])
	case models.StrategyMaximizePassRate:
		return clamp01(m["pass_rate"])
	case models.StrategyBalanceSeverity:
		// Weight severity reduction over raw failure reduction.
		return clamp01(0.6*(1-m["average_severity"]/models.SeverityCritical.Weight()) + 0.4*(1-m["failure_rate"]))
	case models.StrategyOptimizeFeedback:
		return clamp01(m["feedback_score"])
	default:
		return 0
	}
}

// calculateMetrics projects the four evidence metrics for a candidate value.
//
// The projection is a monotonic heuristic: relaxing a parameter (raising a
// threshold, lowering a minimum) scales the recorded failure rate down by
// the relative move, tightening scales it up. Severity follows the failure
// projection; the feedback score shifts toward positive as projected false
// positives drop.
func (o *Optimizer) calculateMetrics(name string, value, current float64, eff *models.RuleEffectiveness) map[string]float64 {
	relax := 1.0
	if current != 0 {
		relax = value / current
		if tightens(name) {
			if value == 0 {
				relax = 2 // a zero minimum disables the check entirely
			} else {
				relax = current / value
			}
		}
	}
	if relax <= 0 {
		relax = 1
	}

	failureRate := eff.FailureRate()
	projectedFailure := clamp01(failureRate / relax)

	projectedSeverity := eff.AverageSeverity
	if failureRate > 0 {
		projectedSeverity = eff.AverageSeverity * (projectedFailure / failureRate)
	}

	feedbackScore := eff.PositiveRatio()
	feedbackScore = clamp01(feedbackScore + 0.5*(failureRate-projectedFailure))

	return map[string]float64{
		"failure_rate":     projectedFailure,
		"pass_rate":        clamp01(1 - projectedFailure),
		"average_severity": projectedSeverity,
		"feedback_score":   feedbackScore,
	}
}

// History returns a copy of the rule's optimization history in append order.
func (o *Optimizer) History(ruleID string) []models.OptimizationResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]models.OptimizationResult(nil), o.history[ruleID]...)
}

// BestOptimization returns the history entry with the highest improvement.
func (o *Optimizer) BestOptimization(ruleID string) (models.OptimizationResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	entries := o.history[ruleID]
	if len(entries) == 0 {
		return models.OptimizationResult{}, false
	}
	best := entries[0]
	for _, entry := range entries[1:] {
		if entry.Improvement > best.Improvement {
			best = entry
		}
	}
	return best, true
}

// Summary aggregates the rule's optimization history.
func (o *Optimizer) Summary(ruleID string) models.OptimizationSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	summary := models.OptimizationSummary{RuleID: ruleID}
	entries := o.history[ruleID]
	if len(entries) == 0 {
		return summary
	}

	total := 0.0
	seen := make(map[string]struct{})
	for _, entry := range entries {
		total += entry.Improvement
		if entry.Improvement > summary.BestImprovement {
			summary.BestImprovement = entry.Improvement
		}
		if _, ok := seen[entry.ParameterName]; !ok {
			seen[entry.ParameterName] = struct{}{}
			summary.Parameters = append(summary.Parameters, entry.ParameterName)
		}
	}
	summary.Count = len(entries)
	summary.AverageImprovement = total / float64(len(entries))
	sort.Strings(summary.Parameters)
	return summary
}

// ReplaceHistory swaps a rule's history wholesale, used by imports.
func (o *Optimizer) ReplaceHistory(ruleID string, entries []models.OptimizationResult) {
	o.mu.Lock()
	o.history[ruleID] = append([]models.OptimizationResult(nil), entries...)
	o.mu.Unlock()
}

// TrimHistory drops the oldest entries beyond limit for a rule.
func (o *Optimizer) TrimHistory(ruleID string, limit int) {
	if limit <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := o.history[ruleID]
	if len(entries) > limit {
		o.history[ruleID] = append([]models.OptimizationResult(nil), entries[len(entries)-limit:]...)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
