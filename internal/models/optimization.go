package models

import "time"

// OptimizationStrategy selects the scoring objective for a parameter search.
type OptimizationStrategy string

const (
	StrategyMinimizeFailures OptimizationStrategy = "minimize_failures"
	StrategyMaximizePassRate OptimizationStrategy = "maximize_pass_rate"
	StrategyBalanceSeverity  OptimizationStrategy = "balance_severity"
	StrategyOptimizeFeedback OptimizationStrategy = "optimize_feedback"
)

// IsValid reports whether the strategy is one of the recognised values.
func (s OptimizationStrategy) IsValid() bool {
	switch s {
	case StrategyMinimizeFailures, StrategyMaximizePassRate, StrategyBalanceSeverity, StrategyOptimizeFeedback:
		return true
	default:
		return false
	}
}

// OptimizationResult records one candidate parameter value that scored better
// than the current value under a strategy.
type OptimizationResult struct {
	RuleID         string               `json:"rule_id"`
	ParameterName  string               `json:"parameter_name"`
	OriginalValue  float64              `json:"original_value"`
	OptimizedValue float64              `json:"optimized_value"`
	Improvement    float64              `json:"improvement"`
	Strategy       OptimizationStrategy `json:"strategy"`
	Metrics        map[string]float64   `json:"metrics"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ParameterRange is the heuristic search window derived from a parameter's
// name pattern and current value. Derived on demand, never persisted.
type ParameterRange struct {
	Name         string  `json:"name"`
	MinValue     float64 `json:"min_value"`
	MaxValue     float64 `json:"max_value"`
	Step         float64 `json:"step"`
	CurrentValue float64 `json:"current_value"`
}

// OptimizationSummary aggregates a rule's optimization history.
type OptimizationSummary struct {
	RuleID             string   `json:"rule_id"`
	Count              int      `json:"count"`
	AverageImprovement float64  `json:"average_improvement"`
	BestImprovement    float64  `json:"best_improvement"`
	Parameters         []string `json:"parameters"`
}
