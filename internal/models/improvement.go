package models

import "time"

// Priority ranks how urgently an improvement should be addressed.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns an ordering weight so improvements can be sorted by urgency.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// RuleImprovement is a generated suggestion for fixing an underperforming
// rule. Improvements are ephemeral: computed on demand, never persisted.
type RuleImprovement struct {
	ID          string             `json:"id"`
	RuleID      string             `json:"rule_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Priority    Priority           `json:"priority"`
	Category    Category           `json:"category"`
	Suggestions []string           `json:"suggestions"`
	Metrics     map[string]float64 `json:"metrics"`
	CreatedAt   time.Time          `json:"created_at"`
}
