package tracker

import "github.com/audiopcb/veritas/internal/models"

// Policy centralises the status-classification cutoffs. The exact values are
// tunable; the state-machine shape is not.
type Policy struct {
	// MinValidationSample is the number of validations before pass/fail
	// ratios are trusted.
	MinValidationSample int `yaml:"minValidationSample"`
	// MinFeedbackSample is the number of feedback votes before feedback
	// ratios are trusted.
	MinFeedbackSample int `yaml:"minFeedbackSample"`
	// EffectiveRatio is the positive-feedback ratio at or above which a rule
	// is classified effective.
	EffectiveRatio float64 `yaml:"effectiveRatio"`
	// IneffectiveRatio is the negative-feedback ratio at or above which a
	// rule is classified ineffective.
	IneffectiveRatio float64 `yaml:"ineffectiveRatio"`
	// FailureRateLimit is the failure rate at or above which a rule is
	// classified ineffective given an adequate validation sample.
	FailureRateLimit float64 `yaml:"failureRateLimit"`
	// MixedFloor is the lower bound of the mixed-feedback band.
	MixedFloor float64 `yaml:"mixedFloor"`
	// InconsistencyBand bounds |passed-failed|/total below which pass and
	// fail counts are considered roughly balanced.
	InconsistencyBand float64 `yaml:"inconsistencyBand"`
}

// DefaultPolicy returns the stock cutoffs.
func DefaultPolicy() Policy {
	return Policy{
		MinValidationSample: 10,
		MinFeedbackSample:   5,
		EffectiveRatio:      0.7,
		IneffectiveRatio:    0.6,
		FailureRateLimit:    0.6,
		MixedFloor:          0.4,
		InconsistencyBand:   0.3,
	}
}

// normalise backfills zero values so a partially-specified policy still
// behaves sensibly.
func (p Policy) normalise() Policy {
	def := DefaultPolicy()
	if p.MinValidationSample <= 0 {
		p.MinValidationSample = def.MinValidationSample
	}
	if p.MinFeedbackSample <= 0 {
		p.MinFeedbackSample = def.MinFeedbackSample
	}
	if p.EffectiveRatio <= 0 {
		p.EffectiveRatio = def.EffectiveRatio
	}
	if p.IneffectiveRatio <= 0 {
		p.IneffectiveRatio = def.IneffectiveRatio
	}
	if p.FailureRateLimit <= 0 {
		p.FailureRateLimit = def.FailureRateLimit
	}
	if p.MixedFloor <= 0 {
		p.MixedFloor = def.MixedFloor
	}
	if p.InconsistencyBand <= 0 {
		p.InconsistencyBand = def.InconsistencyBand
	}
	return p
}

// Classify derives a status from the current counters alone. It is a pure
// function: identical counters always yield an identical status.
func (p Policy) Classify(e *models.RuleEffectiveness) models.EffectivenessStatus {
	hasValidations := e.TotalValidations >= p.MinValidationSample
	hasFeedback := e.FeedbackCount >= p.MinFeedbackSample

	if !hasValidations && !hasFeedback {
		return models.StatusUnknown
	}

	if hasFeedback && e.NegativeRatio() >= p.IneffectiveRatio {
		return models.StatusIneffective
	}
	if hasValidations && e.FailureRate() >= p.FailureRateLimit {
		return models.StatusIneffective
	}
	if hasFeedback && e.PositiveRatio() >= p.EffectiveRatio {
		return models.StatusEffective
	}
	if hasFeedback && e.PositiveRatio() >= p.MixedFloor {
		return models.StatusNeedsImprovement
	}
	if hasValidations && p.inconsistent(e) {
		return models.StatusNeedsImprovement
	}

	return models.StatusUnknown
}

// inconsistent reports whether pass and fail counts are both non-trivial and
// roughly balanced, signalling a rule that fires unpredictably.
func (p Policy) inconsistent(e *models.RuleEffectiveness) bool {
	if e.PassedValidations == 0 || e.FailedValidations == 0 {
		return false
	}
	diff := e.PassedValidations - e.FailedValidations
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(e.TotalValidations) <= p.InconsistencyBand
}
