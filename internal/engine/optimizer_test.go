package engine

import (
	"testing"

	"github.com/audiopcb/veritas/internal/models"
)

func failingEffectiveness(ruleID string, total, failed int) *models.RuleEffectiveness {
	return &models.RuleEffectiveness{
		RuleID:            ruleID,
		Category:          models.CategoryAudio,
		TotalValidations:  total,
		PassedValidations: total - failed,
		FailedValidations: failed,
		AverageSeverity:   models.SeverityError.Weight(),
		Status:            models.StatusIneffective,
	}
}

func TestOptimizeParametersFindsRelaxedThreshold(t *testing.T) {
	opt := NewOptimizer(nil)
	rule := &models.ValidationRule{
		ID:         "impedance-threshold",
		Name:       "Impedance Threshold",
		Category:   models.CategoryAudio,
		Severity:   models.SeverityError,
		Parameters: map[string]float64{"impedance_threshold": 1000},
		Enabled:    true,
	}
	eff := failingEffectiveness(rule.ID, 20, 20)

	results := opt.OptimizeParameters(rule, eff, models.StrategyMinimizeFailures)
	if len(results) == 0 {
		t.Fatal("no candidates for an always-failing tunable rule")
	}

	for i, res := range results {
		if res.RuleID != rule.ID || res.ParameterName != "impedance_threshold" {
			t.Fatalf("result %d mislabelled: %+v", i, res)
		}
		if res.OriginalValue != 1000 {
			t.Fatalf("result %d original value = %v, want 1000", i, res.OriginalValue)
		}
		if res.Improvement <= 0 {
			t.Fatalf("result %d kept with non-positive improvement %v", i, res.Improvement)
		}
		if res.OptimizedValue <= 1000 {
			t.Fatalf("result %d should relax the threshold upward, got %v", i, res.OptimizedValue)
		}
		if i > 0 && results[i-1].Improvement < res.Improvement {
			t.Fatalf("results not sorted by descending improvement at %d", i)
		}
		for _, key := range []string{"failure_rate", "pass_rate", "average_severity", "feedback_score"} {
			if _, ok := res.Metrics[key]; !ok {
				t.Fatalf("result %d missing metric %q", i, key)
			}
		}
	}

	best := results[0]
	if !approx(best.OptimizedValue, 1500) {
		t.Fatalf("best candidate = %v, want the most relaxed value 1500", best.OptimizedValue)
	}
}

func TestOptimizeParametersUnrecognisedParameters(t *testing.T) {
	opt := NewOptimizer(nil)
	rule := &models.ValidationRule{
		ID:         "layer-check",
		Name:       "Layer Check",
		Category:   models.CategoryDesign,
		Severity:   models.SeverityWarning,
		Parameters: map[string]float64{"layer_count": 4, "copper_weight": 1},
		Enabled:    true,
	}

	results := opt.OptimizeParameters(rule, failingEffectiveness(rule.ID, 20, 20), models.StrategyMinimizeFailures)
	if len(results) != 0 {
		t.Fatalf("got %d candidates for unrecognised parameters, want 0", len(results))
	}
	if hist := opt.History(rule.ID); len(hist) != 0 {
		t.Fatalf("empty run polluted history: %d entries", len(hist))
	}
}

func TestOptimizeParametersRejectsBadInput(t *testing.T) {
	opt := NewOptimizer(nil)
	rule := &models.ValidationRule{
		ID:         "r",
		Parameters: map[string]float64{"min_width": 0.2},
	}
	eff := failingEffectiveness("r", 20, 20)

	if got := opt.OptimizeParameters(nil, eff, models.StrategyMinimizeFailures); len(got) != 0 {
		t.Fatal("nil rule produced candidates")
	}
	if got := opt.OptimizeParameters(rule, nil, models.StrategyMinimizeFailures); len(got) != 0 {
		t.Fatal("nil effectiveness produced candidates")
	}
	if got := opt.OptimizeParameters(rule, eff, models.OptimizationStrategy("made_up")); len(got) != 0 {
		t.Fatal("unknown strategy produced candidates")
	}
}

func TestOptimizeParametersIsDeterministic(t *testing.T) {
	rule := &models.ValidationRule{
		ID:         "det-rule",
		Parameters: map[string]float64{"noise_threshold": 50},
	}
	eff := failingEffectiveness(rule.ID, 30, 21)

	first := NewOptimizer(nil).OptimizeParameters(rule, eff, models.StrategyBalanceSeverity)
	second := NewOptimizer(nil).OptimizeParameters(rule, eff, models.StrategyBalanceSeverity)
	if len(first) != len(second) {
		t.Fatalf("runs diverged in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].OptimizedValue != second[i].OptimizedValue || first[i].Improvement != second[i].Improvement {
			t.Fatalf("runs diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestBestOptimizationAndSummary(t *testing.T) {
	opt := NewOptimizer(nil)
	rule := &models.ValidationRule{
		ID:         "summary-rule",
		Parameters: map[string]float64{"ripple_threshold": 100},
	}
	eff := failingEffectiveness(rule.ID, 20, 16)

	if _, ok := opt.BestOptimization(rule.ID); ok {
		t.Fatal("best found before any run")
	}

	results := opt.OptimizeParameters(rule, eff, models.StrategyMaximizePassRate)
	if len(results) == 0 {
		t.Fatal("expected candidates")
	}

	best, ok := opt.BestOptimization(rule.ID)
	if !ok {
		t.Fatal("best not found after a run")
	}
	if best.Improvement != results[0].Improvement {
		t.Fatalf("best improvement %v != top result %v", best.Improvement, results[0].Improvement)
	}

	summary := opt.Summary(rule.ID)
	if summary.Count != len(results) {
		t.Fatalf("summary count = %d, want %d", summary.Count, len(results))
	}
	if !approx(summary.BestImprovement, best.Improvement) {
		t.Fatalf("summary best = %v, want %v", summary.BestImprovement, best.Improvement)
	}
	if len(summary.Parameters) != 1 || summary.Parameters[0] != "ripple_threshold" {
		t.Fatalf("summary parameters = %v", summary.Parameters)
	}
}

func TestTrimHistory(t *testing.T) {
	opt := NewOptimizer(nil)
	rule := &models.ValidationRule{
		ID:         "trim-rule",
		Parameters: map[string]float64{"gain_threshold": 10},
	}
	eff := failingEffectiveness(rule.ID, 20, 20)

	opt.OptimizeParameters(rule, eff, models.StrategyMinimizeFailures)
	opt.OptimizeParameters(rule, eff, models.StrategyMinimizeFailures)
	full := opt.History(rule.ID)
	if len(full) < 4 {
		t.Fatalf("need at least 4 entries, got %d", len(full))
	}

	opt.TrimHistory(rule.ID, 3)
	trimmed := opt.History(rule.ID)
	if len(trimmed) != 3 {
		t.Fatalf("trimmed to %d entries, want 3", len(trimmed))
	}
	// Oldest entries are dropped first.
	if trimmed[2].CreatedAt.Before(trimmed[0].CreatedAt) {
		t.Fatal("trim dropped the newest entries")
	}

	opt.TrimHistory(rule.ID, 0)
	if len(opt.History(rule.ID)) != 3 {
		t.Fatal("non-positive limit should be a no-op")
	}
}
