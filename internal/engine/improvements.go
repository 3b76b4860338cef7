package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/tracker"
)

// minDescriptionLength is the documentation floor below which a rule is
// flagged as under-documented.
const minDescriptionLength = 20

// ImprovementGenerator derives prioritised suggestions from an effectiveness
// snapshot. It is stateless: the same snapshot always yields the same
// improvements.
type ImprovementGenerator struct {
	policy  tracker.Policy
	checks  []improvementCheck
	logger  *slog.Logger
	knownID func(string) bool
}

// improvementCheck is one independent pattern: it inspects a snapshot (and
// optionally the rule definition) and emits an improvement or nil.
type improvementCheck struct {
	name  string
	apply func(g *ImprovementGenerator, eff *models.RuleEffectiveness, rule *models.ValidationRule) *models.RuleImprovement
}

// NewImprovementGenerator constructs a generator. knownID reports whether a
// rule id is registered and backs the missing-dependency check; it may be
// nil, in which case that check is skipped.
func NewImprovementGenerator(policy tracker.Policy, knownID func(string) bool, logger *slog.Logger) *ImprovementGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &ImprovementGenerator{policy: policy, logger: logger, knownID: knownID}
	g.checks = []improvementCheck{
		{name: "high_failure_rate", apply: (*ImprovementGenerator).checkHighFailureRate},
		{name: "high_severity_failures", apply: (*ImprovementGenerator).checkHighSeverity},
		{name: "high_negative_feedback", apply: (*ImprovementGenerator).checkNegativeFeedback},
		{name: "inconsistent_results", apply: (*ImprovementGenerator).checkInconsistency},
		{name: "low_user_feedback", apply: (*ImprovementGenerator).checkLowFeedback},
		{name: "extreme_parameter_value", apply: (*ImprovementGenerator).checkExtremeParameter},
		{name: "missing_dependencies", apply: (*ImprovementGenerator).checkMissingDependencies},
		{name: "minimal_documentation", apply: (*ImprovementGenerator).checkDocumentation},
	}
	return g
}

// Generate evaluates every pattern check against the snapshot. rule may be
// nil; rule-specific checks are then skipped. A healthy rule yields an empty
// slice. Results are ordered by priority, then by check order.
func (g *ImprovementGenerator) Generate(eff *models.RuleEffectiveness, rule *models.ValidationRule) []models.RuleImprovement {
	if eff == nil {
		return nil
	}

	improvements := make([]models.RuleImprovement, 0)
	for _, check := range g.checks {
		imp := check.apply(g, eff, rule)
		if imp == nil {
			continue
		}
		imp.ID = uuid.NewString()
		imp.RuleID = eff.RuleID
		imp.Category = eff.Category
		imp.CreatedAt = time.Now().UTC()
		improvements = append(improvements, *imp)
	}

	sort.SliceStable(improvements, func(i, j int) bool {
		return improvements[i].Priority.Rank() > improvements[j].Priority.Rank()
	})
	return improvements
}

func (g *ImprovementGenerator) checkHighFailureRate(eff *models.RuleEffectiveness, _ *models.ValidationRule) *models.RuleImprovement {
	if eff.TotalValidations < g.policy.MinValidationSample {
		return nil
	}
	rate := eff.FailureRate()
	if rate < g.policy.FailureRateLimit {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "High Failure Rate",
		Description: fmt.Sprintf("Rule fails %.0f%% of validations; its parameters are likely too strict for real boards.", rate*100),
		Priority:    models.PriorityHigh,
		Suggestions: []string{
			"Review the rule's threshold parameters against boards that failed",
			"Run the parameter optimizer with the minimize-failures strategy",
			"Consider lowering the rule severity until the failure rate drops",
		},
		Metrics: map[string]float64{
			"failure_rate":      rate,
			"total_validations": float64(eff.TotalValidations),
		},
	}
}

func (g *ImprovementGenerator) checkHighSeverity(eff *models.RuleEffectiveness, _ *models.ValidationRule) *models.RuleImprovement {
	if eff.FailedValidations == 0 || eff.AverageSeverity < models.SeverityError.Weight() {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "High Severity Failures",
		Description: "Failures average at error level or above; verify the severity assignment matches real impact.",
		Priority:    models.PriorityHigh,
		Suggestions: []string{
			"Confirm the rule severity reflects actual board impact",
			"Split the rule into separate error-level and warning-level checks",
		},
		Metrics: map[string]float64{
			"average_severity":   eff.AverageSeverity,
			"failed_validations": float64(eff.FailedValidations),
		},
	}
}

func (g *ImprovementGenerator) checkNegativeFeedback(eff *models.RuleEffectiveness, _ *models.ValidationRule) *models.RuleImprovement {
	if eff.FeedbackCount < g.policy.MinFeedbackSample {
		return nil
	}
	ratio := eff.NegativeRatio()
	if ratio < g.policy.IneffectiveRatio {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "High Negative Feedback",
		Description: fmt.Sprintf("%.0f%% of user feedback is negative; the rule's findings are not considered useful.", ratio*100),
		Priority:    models.PriorityHigh,
		Suggestions: []string{
			"Read recent feedback notes for recurring complaints",
			"Tune parameters toward the boards users marked as false positives",
			"Disable the rule until it is reworked if feedback stays negative",
		},
		Metrics: map[string]float64{
			"negative_ratio": ratio,
			"feedback_count": float64(eff.FeedbackCount),
		},
	}
}

func (g *ImprovementGenerator) checkInconsistency(eff *models.RuleEffectiveness, _ *models.ValidationRule) *models.RuleImprovement {
	if eff.TotalValidations < g.policy.MinValidationSample {
		return nil
	}
	if eff.PassedValidations == 0 || eff.FailedValidations == 0 {
		return nil
	}
	diff := eff.PassedValidations - eff.FailedValidations
	if diff < 0 {
		diff = -diff
	}
	spread := float64(diff) / float64(eff.TotalValidations)
	if spread > g.policy.InconsistencyBand {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "Inconsistent Results",
		Description: "Pass and fail counts are roughly balanced; the rule fires unpredictably across similar boards.",
		Priority:    models.PriorityMedium,
		Suggestions: []string{
			"Check whether the rule depends on board attributes that vary between runs",
			"Add guard conditions so the rule only fires on applicable boards",
		},
		Metrics: map[string]float64{
			"pass_rate":    eff.PassRate(),
			"failure_rate": eff.FailureRate(),
		},
	}
}

func (g *ImprovementGenerator) checkLowFeedback(eff *models.RuleEffectiveness, _ *models.ValidationRule) *models.RuleImprovement {
	if eff.TotalValidations < g.policy.MinValidationSample {
		return nil
	}
	if eff.FeedbackCount >= g.policy.MinFeedbackSample {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "Low User Feedback",
		Description: "The rule runs often but users rarely rate it; its usefulness cannot be judged.",
		Priority:    models.PriorityMedium,
		Suggestions: []string{
			"Prompt for feedback when the rule reports a finding",
			"Make the rule's finding message more actionable so users engage with it",
		},
		Metrics: map[string]float64{
			"feedback_count":    float64(eff.FeedbackCount),
			"total_validations": float64(eff.TotalValidations),
		},
	}
}

func (g *ImprovementGenerator) checkExtremeParameter(eff *models.RuleEffectiveness, rule *models.ValidationRule) *models.RuleImprovement {
	if rule == nil {
		return nil
	}
	for name, value := range rule.Parameters {
		if !MatchesHeuristic(name) {
			continue
		}
		// A tunable parameter whose value collapses its search window (zero
		// or negative) sits at the boundary and cannot be optimized.
		if _, ok := RangeFor(name, value); ok {
			continue
		}
		return &models.RuleImprovement{
			Title:       "Extreme Parameter Value",
			Description: fmt.Sprintf("Parameter %q sits at the boundary of its plausible range and cannot be tuned.", name),
			Priority:    models.PriorityMedium,
			Suggestions: []string{
				fmt.Sprintf("Re-derive %q from measured board data instead of the current value", name),
				"Reset the parameter to a mid-range default before re-optimizing",
			},
			Metrics: map[string]float64{
				"parameter_value": value,
			},
		}
	}
	return nil
}

func (g *ImprovementGenerator) checkMissingDependencies(eff *models.RuleEffectiveness, rule *models.ValidationRule) *models.RuleImprovement {
	if rule == nil || g.knownID == nil {
		return nil
	}
	missing := 0
	var firstMissing string
	for _, dep := range rule.Dependencies {
		if !g.knownID(dep) {
			if firstMissing == "" {
				firstMissing = dep
			}
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "Missing Dependencies",
		Description: fmt.Sprintf("Rule declares dependency %q which is not registered; dependent checks may run on incomplete data.", firstMissing),
		Priority:    models.PriorityHigh,
		Suggestions: []string{
			"Register the missing dependency rule or remove the reference",
		},
		Metrics: map[string]float64{
			"missing_dependencies": float64(missing),
		},
	}
}

func (g *ImprovementGenerator) checkDocumentation(eff *models.RuleEffectiveness, rule *models.ValidationRule) *models.RuleImprovement {
	if rule == nil || len(rule.Description) >= minDescriptionLength {
		return nil
	}
	return &models.RuleImprovement{
		Title:       "Minimal Documentation",
		Description: "The rule description is too short for users to understand what the check verifies.",
		Priority:    models.PriorityLow,
		Suggestions: []string{
			"Describe what the rule checks, why it matters, and how to fix a failure",
		},
		Metrics: map[string]float64{
			"description_length": float64(len(rule.Description)),
		},
	}
}
