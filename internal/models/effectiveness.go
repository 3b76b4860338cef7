package models

import "time"

// EffectivenessStatus classifies a rule's observed usefulness.
type EffectivenessStatus string

const (
	StatusUnknown          EffectivenessStatus = "unknown"
	StatusEffective        EffectivenessStatus = "effective"
	StatusIneffective      EffectivenessStatus = "ineffective"
	StatusNeedsImprovement EffectivenessStatus = "needs_improvement"
)

// RuleEffectiveness accumulates validation outcomes and user feedback for one
// rule. Counters only ever grow; status is recomputed from them after every
// mutation rather than patched incrementally.
type RuleEffectiveness struct {
	RuleID            string              `json:"rule_id"`
	RuleName          string              `json:"rule_name"`
	Category          Category            `json:"category"`
	TotalValidations  int                 `json:"total_validations"`
	PassedValidations int                 `json:"passed_validations"`
	FailedValidations int                 `json:"failed_validations"`
	FeedbackCount     int                 `json:"feedback_count"`
	PositiveFeedback  int                 `json:"positive_feedback"`
	NegativeFeedback  int                 `json:"negative_feedback"`
	AverageSeverity   float64             `json:"average_severity"`
	Status            EffectivenessStatus `json:"status"`
	LastUpdated       time.Time           `json:"last_updated"`
}

// FailureRate returns failed/total, or zero with no samples.
func (e *RuleEffectiveness) FailureRate() float64 {
	if e.TotalValidations == 0 {
		return 0
	}
	return float64(e.FailedValidations) / float64(e.TotalValidations)
}

// PassRate returns passed/total, or zero with no samples.
func (e *RuleEffectiveness) PassRate() float64 {
	if e.TotalValidations == 0 {
		return 0
	}
	return float64(e.PassedValidations) / float64(e.TotalValidations)
}

// PositiveRatio returns positive/feedback, or zero with no feedback.
func (e *RuleEffectiveness) PositiveRatio() float64 {
	if e.FeedbackCount == 0 {
		return 0
	}
	return float64(e.PositiveFeedback) / float64(e.FeedbackCount)
}

// NegativeRatio returns negative/feedback, or zero with no feedback.
func (e *RuleEffectiveness) NegativeRatio() float64 {
	if e.FeedbackCount == 0 {
		return 0
	}
	return float64(e.NegativeFeedback) / float64(e.FeedbackCount)
}

// Clone returns a copy safe to hand to callers.
func (e *RuleEffectiveness) Clone() *RuleEffectiveness {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

// EffectivenessSummary aggregates status counts across all tracked rules.
type EffectivenessSummary struct {
	TotalRules        int     `json:"total_rules"`
	EffectiveRules    int     `json:"effective_rules"`
	IneffectiveRules  int     `json:"ineffective_rules"`
	RulesNeedingWork  int     `json:"rules_needing_improvement"`
	UnknownRules      int     `json:"unknown_rules"`
	EffectivenessRate float64 `json:"effectiveness_rate"`
	TotalValidations  int     `json:"total_validations"`
	TotalFeedback     int     `json:"total_feedback"`
}

// ValidationSnapshot is the per-rule counter view forwarded to the metrics
// sink after every tracked validation.
type ValidationSnapshot struct {
	RuleID            string   `json:"rule_id"`
	Category          Category `json:"category"`
	TotalValidations  int      `json:"total_validations"`
	PassedValidations int      `json:"passed_validations"`
	FailedValidations int      `json:"failed_validations"`
}

// FeedbackNote is an optional free-text comment attached to a feedback vote.
type FeedbackNote struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	Positive  bool      `json:"positive"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
