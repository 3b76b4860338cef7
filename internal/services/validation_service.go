package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/audiopcb/veritas/internal/cache"
	"github.com/audiopcb/veritas/internal/engine"
	"github.com/audiopcb/veritas/internal/metrics"
	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/rules"
	"github.com/audiopcb/veritas/internal/tracker"
	"github.com/audiopcb/veritas/internal/utils"
)

const (
	cacheKeySummary          = "effectiveness-summary"
	cacheKeyHighPriority     = "high-priority-improvements"
	defaultOptimizationLimit = 500
)

// HistoryStore persists a rule's optimization history between restarts.
type HistoryStore interface {
	SaveOptimizationHistory(ctx context.Context, ruleID string, entries []models.OptimizationResult) error
	LoadOptimizationHistory(ctx context.Context, ruleID string) ([]models.OptimizationResult, error)
}

// Options tunes non-essential manager behaviour.
type Options struct {
	// SummaryTTL enables caching of summary/improvement scans when positive.
	SummaryTTL time.Duration
	// HistoryLimit bounds each rule's in-memory optimization history.
	HistoryLimit int
}

// ValidationManager orchestrates the rule registry, effectiveness tracker,
// improvement generator, and parameter optimizer behind one surface.
type ValidationManager struct {
	logger       *slog.Logger
	registry     *rules.Registry
	tracker      *tracker.Tracker
	improver     *engine.ImprovementGenerator
	optimizer    *engine.Optimizer
	historyStore HistoryStore
	latencies    *utils.LatencyTracker
	cache        *cache.TTLCache
	opts         Options
}

// NewValidationManager wires the engine components together. historyStore
// may be nil for in-memory use.
func NewValidationManager(
	logger *slog.Logger,
	registry *rules.Registry,
	trk *tracker.Tracker,
	improver *engine.ImprovementGenerator,
	optimizer *engine.Optimizer,
	historyStore HistoryStore,
	opts Options,
) *ValidationManager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultOptimizationLimit
	}
	return &ValidationManager{
		logger:       logger,
		registry:     registry,
		tracker:      trk,
		improver:     improver,
		optimizer:    optimizer,
		historyStore: historyStore,
		latencies:    utils.NewLatencyTracker(1024),
		cache:        cache.New(),
		opts:         opts,
	}
}

// Registry exposes the rule registry for boot-time pack loading.
func (m *ValidationManager) Registry() *rules.Registry {
	return m.registry
}

// AddRule registers a new rule.
func (m *ValidationManager) AddRule(rule *models.ValidationRule) error {
	if err := m.registry.Add(rule); err != nil {
		return err
	}
	m.logger.Info("rule registered", slog.String("rule_id", rule.ID), slog.String("category", string(rule.Category)))
	return nil
}

// RemoveRule deletes a rule unless another rule depends on it.
func (m *ValidationManager) RemoveRule(id string) error {
	if err := m.registry.Remove(id); err != nil {
		return err
	}
	m.logger.Info("rule removed", slog.String("rule_id", id))
	return nil
}

// GetRule returns the registered rule for id.
func (m *ValidationManager) GetRule(id string) (*models.ValidationRule, error) {
	return m.registry.Get(id)
}

// RulesByCategory returns all rules of a category in registration order.
func (m *ValidationManager) RulesByCategory(cat models.Category) []*models.ValidationRule {
	return m.registry.ByCategory(cat)
}

// RuleUpdate carries the mutable fields of a rule. Nil fields are left
// untouched.
type RuleUpdate struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Severity    *models.Severity   `json:"severity,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
}

// UpdateRule applies a partial update to a registered rule. The update is
// validated as a whole first: a rejected update leaves the rule exactly as it
// was.
func (m *ValidationManager) UpdateRule(id string, update RuleUpdate) error {
	err := m.registry.Mutate(id, func(rule *models.ValidationRule) error {
		if update.Severity != nil && update.Severity.Weight() == 0 {
			return fmt.Errorf("unknown severity %q", *update.Severity)
		}
		for name := range update.Parameters {
			if _, ok := rule.Parameters[name]; !ok {
				return fmt.Errorf("%w: %s on rule %s", rules.ErrInvalidParameter, name, id)
			}
		}

		if update.Name != nil {
			rule.Name = *update.Name
		}
		if update.Description != nil {
			rule.Description = *update.Description
		}
		if update.Severity != nil {
			rule.Severity = *update.Severity
		}
		if update.Enabled != nil {
			rule.Enabled = *update.Enabled
		}
		for name, value := range update.Parameters {
			rule.Parameters[name] = value
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("rule updated", slog.String("rule_id", id))
	return nil
}

// Validate runs all enabled rules, optionally filtered by category, against
// the structured input. A rule whose check fails to execute is recorded as a
// rule-level error result; it never aborts the remaining rules.
func (m *ValidationManager) Validate(ctx context.Context, input map[string]any, categories []models.Category) (models.ValidationSummary, error) {
	for _, cat := range categories {
		if !cat.IsValid() {
			return models.ValidationSummary{}, fmt.Errorf("unknown category %q", cat)
		}
	}

	start := time.Now()
	toRun := m.selectRules(categories)

	summary := models.ValidationSummary{
		Passed:    true,
		CreatedAt: start.UTC(),
	}
	for _, rule := range toRun {
		result := m.executeRule(ctx, rule, input)
		summary.Results = append(summary.Results, result)
		summary.RulesRun++

		if result.Passed {
			continue
		}
		summary.Passed = false
		switch result.Severity {
		case models.SeverityError, models.SeverityCritical:
			summary.HasErrors = true
			summary.ErrorCount++
		case models.SeverityWarning:
			summary.HasWarnings = true
			summary.WarningCount++
		}
	}

	duration := time.Since(start)
	summary.Duration = duration.String()
	m.latencies.Observe(duration)
	metrics.ObserveValidation(duration)
	if count := m.latencies.Count(); count >= 20 && count%20 == 0 {
		m.logger.Info("validation latency", slog.Duration("p95", m.latencies.Percentile(95)), slog.Int("samples", count))
	}

	m.invalidateSummaries()
	return summary, nil
}

// executeRule runs one rule with panic absorption and forwards the outcome
// to the tracker.
func (m *ValidationManager) executeRule(ctx context.Context, rule *models.ValidationRule, input map[string]any) (result models.RuleResult) {
	result = models.RuleResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Category: rule.Category,
		Severity: rule.Severity,
	}

	defer func() {
		if r := recover(); r != nil {
			err := utils.NewAppError("executeRule", fmt.Sprintf("rule %s check panicked", rule.ID), fmt.Errorf("%v", r))
			m.logger.Error("rule execution failed", slog.String("rule_id", rule.ID), slog.Any("error", err))
			result.Passed = false
			result.Errored = true
			result.Severity = models.SeverityError
			result.Message = fmt.Sprintf("rule check failed to execute: %v", r)
			metrics.CountRuleResult(metrics.OutcomeError)
			m.tracker.TrackValidation(ctx, rule, false, models.SeverityError)
		}
	}()

	passed, message := rules.Evaluate(rule, input)
	result.Passed = passed
	result.Message = message

	if passed {
		metrics.CountRuleResult(metrics.OutcomePass)
	} else {
		metrics.CountRuleResult(metrics.OutcomeFail)
	}
	m.tracker.TrackValidation(ctx, rule, passed, rule.Severity)
	return result
}

// AddRuleFeedback records a user's judgement of a rule's findings.
func (m *ValidationManager) AddRuleFeedback(ctx context.Context, ruleID string, positive bool, text string) error {
	if !m.registry.Has(ruleID) {
		return fmt.Errorf("%w: %s", rules.ErrRuleNotFound, ruleID)
	}
	if err := m.tracker.AddFeedback(ctx, ruleID, positive, text); err != nil {
		return err
	}
	metrics.CountFeedback(positive)
	m.invalidateSummaries()
	return nil
}

// RuleEffectiveness returns the tracked snapshot for one rule.
func (m *ValidationManager) RuleEffectiveness(ruleID string) (*models.RuleEffectiveness, error) {
	return m.tracker.Effectiveness(ruleID)
}

// EffectivenessSummary aggregates status counts across all tracked rules.
func (m *ValidationManager) EffectivenessSummary() models.EffectivenessSummary {
	if cached, ok := m.cachedValue(cacheKeySummary); ok {
		return cached.(models.EffectivenessSummary)
	}
	summary := m.tracker.Summary()
	m.cacheValue(cacheKeySummary, summary)
	return summary
}

// RuleImprovements generates suggestions for one rule from its current
// effectiveness snapshot.
func (m *ValidationManager) RuleImprovements(ruleID string) ([]models.RuleImprovement, error) {
	eff, err := m.tracker.Effectiveness(ruleID)
	if err != nil {
		return nil, err
	}
	rule, err := m.registry.Get(ruleID)
	if err != nil {
		// The rule was tracked but since removed; generate from the
		// snapshot alone.
		rule = nil
	}
	return m.improver.Generate(eff, rule), nil
}

// HighPriorityImprovements scans every tracked rule and returns only
// high-priority suggestions.
func (m *ValidationManager) HighPriorityImprovements() []models.RuleImprovement {
	if cached, ok := m.cachedValue(cacheKeyHighPriority); ok {
		return cached.([]models.RuleImprovement)
	}

	var out []models.RuleImprovement
	for _, eff := range m.tracker.All() {
		rule, err := m.registry.Get(eff.RuleID)
		if err != nil {
			rule = nil
		}
		for _, imp := range m.improver.Generate(eff, rule) {
			if imp.Priority == models.PriorityHigh {
				out = append(out, imp)
			}
		}
	}
	m.cacheValue(cacheKeyHighPriority, out)
	return out
}

// ImprovementsByCategory generates suggestions for every tracked rule of a
// category.
func (m *ValidationManager) ImprovementsByCategory(cat models.Category) []models.RuleImprovement {
	var out []models.RuleImprovement
	for _, eff := range m.tracker.All() {
		if eff.Category != cat {
			continue
		}
		rule, err := m.registry.Get(eff.RuleID)
		if err != nil {
			rule = nil
		}
		out = append(out, m.improver.Generate(eff, rule)...)
	}
	return out
}

// OptimizeRuleParameters searches the rule's parameter space under the given
// strategy and persists the updated history.
func (m *ValidationManager) OptimizeRuleParameters(ctx context.Context, ruleID string, strategy models.OptimizationStrategy) ([]models.OptimizationResult, error) {
	rule, err := m.registry.Get(ruleID)
	if err != nil {
		return nil, err
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("unknown optimization strategy %q", strategy)
	}
	eff, err := m.tracker.Effectiveness(ruleID)
	if err != nil {
		return nil, err
	}

	results := m.optimizer.OptimizeParameters(rule, eff, strategy)
	m.optimizer.TrimHistory(ruleID, m.opts.HistoryLimit)
	m.persistHistory(ctx, ruleID)
	return results, nil
}

// ApplyOptimization overwrites one rule parameter with an optimized value.
// It reports false, leaving the rule unmodified, when the result names a
// parameter the rule does not carry.
func (m *ValidationManager) ApplyOptimization(ruleID string, result models.OptimizationResult) (bool, error) {
	applied := false
	err := m.registry.Mutate(ruleID, func(rule *models.ValidationRule) error {
		if _, ok := rule.Parameters[result.ParameterName]; !ok {
			return nil
		}
		rule.Parameters[result.ParameterName] = result.OptimizedValue
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !applied {
		m.logger.Warn("optimization names unknown parameter",
			slog.String("rule_id", ruleID), slog.String("parameter", result.ParameterName))
		return false, nil
	}
	m.logger.Info("optimization applied",
		slog.String("rule_id", ruleID),
		slog.String("parameter", result.ParameterName),
		slog.Float64("value", result.OptimizedValue))
	return true, nil
}

// BestOptimization returns the highest-improvement history entry for a rule.
func (m *ValidationManager) BestOptimization(ruleID string) (models.OptimizationResult, bool) {
	return m.optimizer.BestOptimization(ruleID)
}

// OptimizationSummary aggregates a rule's optimization history.
func (m *ValidationManager) OptimizationSummary(ruleID string) models.OptimizationSummary {
	return m.optimizer.Summary(ruleID)
}

// ExportOptimizationHistory renders a rule's history as CSV or JSON.
func (m *ValidationManager) ExportOptimizationHistory(ruleID, format string) ([]byte, error) {
	switch format {
	case "csv":
		return m.optimizer.ExportHistoryCSV(ruleID)
	case "json", "":
		return m.optimizer.ExportHistoryJSON(ruleID)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ImportOptimizationHistory replaces a rule's history from an exported
// document and persists it.
func (m *ValidationManager) ImportOptimizationHistory(ctx context.Context, ruleID, format string, data []byte) error {
	var err error
	switch format {
	case "csv":
		err = m.optimizer.ImportHistoryCSV(ruleID, data)
	case "json", "":
		err = m.optimizer.ImportHistoryJSON(ruleID, data)
	default:
		return fmt.Errorf("unsupported import format %q", format)
	}
	if err != nil {
		return err
	}
	m.persistHistory(ctx, ruleID)
	return nil
}

// RestoreHistory loads persisted optimization history for every registered
// rule. Called once at boot.
func (m *ValidationManager) RestoreHistory(ctx context.Context) error {
	if m.historyStore == nil {
		return nil
	}
	for _, rule := range m.registry.All() {
		entries, err := m.historyStore.LoadOptimizationHistory(ctx, rule.ID)
		if err != nil {
			return fmt.Errorf("restore history for %s: %w", rule.ID, err)
		}
		if len(entries) > 0 {
			m.optimizer.ReplaceHistory(rule.ID, entries)
		}
	}
	return nil
}

// ResetEffectiveness clears all tracked effectiveness state.
func (m *ValidationManager) ResetEffectiveness(ctx context.Context) error {
	if err := m.tracker.Reset(ctx); err != nil {
		return err
	}
	m.invalidateSummaries()
	m.logger.Info("effectiveness state reset")
	return nil
}

// FeedbackNotes returns the retained free-text feedback for a rule.
func (m *ValidationManager) FeedbackNotes(ruleID string) []models.FeedbackNote {
	return m.tracker.Notes(ruleID)
}

// LatencyP95 returns the current p95 validation latency.
func (m *ValidationManager) LatencyP95() time.Duration {
	return m.latencies.Percentile(95)
}

func (m *ValidationManager) selectRules(categories []models.Category) []*models.ValidationRule {
	var candidates []*models.ValidationRule
	if len(categories) == 0 {
		candidates = m.registry.All()
	} else {
		for _, cat := range categories {
			candidates = append(candidates, m.registry.ByCategory(cat)...)
		}
	}

	enabled := candidates[:0]
	for _, rule := range candidates {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled
}

func (m *ValidationManager) persistHistory(ctx context.Context, ruleID string) {
	if m.historyStore == nil {
		return
	}
	if err := m.historyStore.SaveOptimizationHistory(ctx, ruleID, m.optimizer.History(ruleID)); err != nil {
		m.logger.Warn("optimization history persist failed", slog.String("rule_id", ruleID), slog.Any("error", err))
	}
}

func (m *ValidationManager) cachedValue(key string) (any, bool) {
	if m.opts.SummaryTTL <= 0 {
		return nil, false
	}
	return m.cache.Get(key)
}

func (m *ValidationManager) cacheValue(key string, value any) {
	if m.opts.SummaryTTL <= 0 {
		return
	}
	m.cache.Set(key, value, m.opts.SummaryTTL)
}

func (m *ValidationManager) invalidateSummaries() {
	if m.opts.SummaryTTL <= 0 {
		return
	}
	m.cache.Invalidate(cacheKeySummary)
	m.cache.Invalidate(cacheKeyHighPriority)
}
