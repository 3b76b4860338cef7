package models

import (
	"fmt"
	"time"
)

// Category groups validation rules by the board concern they inspect.
type Category string

const (
	CategoryDesign        Category = "design"
	CategorySafety        Category = "safety"
	CategoryManufacturing Category = "manufacturing"
	CategoryPower         Category = "power"
	CategoryAudio         Category = "audio"
	CategoryThermal       Category = "thermal"
	CategoryEMI           Category = "emi"
)

// ValidCategories lists every recognised category in declaration order.
func ValidCategories() []Category {
	return []Category{
		CategoryDesign,
		CategorySafety,
		CategoryManufacturing,
		CategoryPower,
		CategoryAudio,
		CategoryThermal,
		CategoryEMI,
	}
}

// IsValid reports whether the category is one of the recognised values.
func (c Category) IsValid() bool {
	for _, known := range ValidCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks how serious a rule failure is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Weight returns the numeric encoding used for severity averaging.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// SeverityFromWeight maps a numeric encoding back to the nearest severity.
func SeverityFromWeight(w float64) Severity {
	switch {
	case w >= 3.5:
		return SeverityCritical
	case w >= 2.5:
		return SeverityError
	case w >= 1.5:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Operator is a comparison applied by a declarative rule condition.
type Operator string

const (
	OpEquals      Operator = "eq"
	OpNotEquals   Operator = "ne"
	OpGreaterThan Operator = "gt"
	OpAtLeast     Operator = "gte"
	OpLessThan    Operator = "lt"
	OpAtMost      Operator = "lte"
	OpContains    Operator = "contains"
	OpExists      Operator = "exists"
)

// Condition is one field comparison evaluated against the structured input.
// The reserved value "$param:<name>" resolves to the rule parameter of that
// name at evaluation time, so optimized parameters take effect immediately.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value,omitempty" json:"value,omitempty"`
}

// CheckFunc is a programmatic rule check. It returns whether the input passed
// and an optional message describing the finding.
type CheckFunc func(input map[string]any) (bool, string)

// ValidationRule describes one configurable design check.
//
// Rules are registered once and afterwards mutated only through the manager's
// update and apply-optimization paths.
type ValidationRule struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Description  string             `yaml:"description" json:"description"`
	Category     Category           `yaml:"category" json:"category"`
	Severity     Severity           `yaml:"severity" json:"severity"`
	Parameters   map[string]float64 `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Dependencies []string           `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Enabled      bool               `yaml:"enabled" json:"enabled"`
	Conditions   []Condition        `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	// Check overrides condition evaluation when set. Not serialised.
	Check CheckFunc `yaml:"-" json:"-"`
}

// Validate reports the first structural problem with the rule definition.
func (r *ValidationRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("rule %s: unknown category %q", r.ID, r.Category)
	}
	if r.Severity.Weight() == 0 {
		return fmt.Errorf("rule %s: unknown severity %q", r.ID, r.Severity)
	}
	return nil
}

// Clone returns a deep copy safe to hand to callers.
func (r *ValidationRule) Clone() *ValidationRule {
	if r == nil {
		return nil
	}
	out := *r
	if r.Parameters != nil {
		out.Parameters = make(map[string]float64, len(r.Parameters))
		for k, v := range r.Parameters {
			out.Parameters[k] = v
		}
	}
	out.Dependencies = append([]string(nil), r.Dependencies...)
	out.Conditions = append([]Condition(nil), r.Conditions...)
	return &out
}

// RuleResult is the outcome of executing one rule against an input.
type RuleResult struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message,omitempty"`
	// Errored marks results synthesised from a check that failed to execute.
	Errored bool `json:"errored,omitempty"`
}

// ValidationSummary aggregates the results of one validate call.
type ValidationSummary struct {
	Passed       bool         `json:"passed"`
	HasErrors    bool         `json:"has_errors"`
	HasWarnings  bool         `json:"has_warnings"`
	ErrorCount   int          `json:"error_count"`
	WarningCount int          `json:"warning_count"`
	RulesRun     int          `json:"rules_run"`
	Results      []RuleResult `json:"results"`
	Duration     string       `json:"duration,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
