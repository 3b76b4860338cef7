package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/rules"
)

// maxNotesPerRule bounds the in-memory feedback-note ring.
const maxNotesPerRule = 50

// Store abstracts durable persistence for effectiveness records.
type Store interface {
	SaveEffectiveness(ctx context.Context, record *models.RuleEffectiveness) error
	LoadEffectiveness(ctx context.Context) ([]*models.RuleEffectiveness, error)
	DeleteEffectiveness(ctx context.Context) error
}

// Sink receives a counter snapshot after every tracked validation. Publishing
// is best-effort: failures are logged and never surfaced to the caller.
type Sink interface {
	Publish(ctx context.Context, snapshot models.ValidationSnapshot) error
}

// Tracker accumulates per-rule validation outcomes and user feedback and
// derives an effectiveness status after every mutation.
//
// Each rule's counter update is serialised by a per-rule lock so concurrent
// updates to the same rule never lose an increment, while updates to
// distinct rules proceed in parallel.
type Tracker struct {
	policy Policy
	store  Store
	sink   Sink
	logger *slog.Logger

	mu      sync.RWMutex
	gen     uint64
	records map[string]*models.RuleEffectiveness
	locks   map[string]*sync.Mutex
	notes   map[string][]models.FeedbackNote
}

// New constructs a Tracker. Store and sink may be nil for in-memory use.
func New(policy Policy, store Store, sink Sink, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		policy:  policy.normalise(),
		store:   store,
		sink:    sink,
		logger:  logger,
		records: make(map[string]*models.RuleEffectiveness),
		locks:   make(map[string]*sync.Mutex),
		notes:   make(map[string][]models.FeedbackNote),
	}
}

// Restore loads previously persisted records into memory. Called once at
// boot, before concurrent use.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	records, err := t.store.LoadEffectiveness(ctx)
	if err != nil {
		return fmt.Errorf("restore effectiveness: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		t.records[rec.RuleID] = rec
	}
	return nil
}

// TrackValidation folds one validation outcome into the rule's record,
// recomputes its status, persists the record, and forwards a snapshot to the
// metrics sink.
func (t *Tracker) TrackValidation(ctx context.Context, rule *models.ValidationRule, passed bool, severity models.Severity) {
	lock := t.ruleLock(rule.ID)
	lock.Lock()
	defer lock.Unlock()

	rec, gen := t.workingCopy(rule.ID, rule.Name, rule.Category)
	rec.TotalValidations++
	if passed {
		rec.PassedValidations++
	} else {
		rec.FailedValidations++
		// Incremental mean over failures only.
		n := float64(rec.FailedValidations)
		rec.AverageSeverity += (severity.Weight() - rec.AverageSeverity) / n
	}
	rec.Status = t.policy.Classify(rec)
	rec.LastUpdated = time.Now().UTC()
	if !t.swap(rec, gen) {
		return
	}

	t.persist(ctx, rec)
	t.publish(ctx, rec)
}

// AddFeedback folds one feedback vote into the rule's record. It fails with
// ErrRuleNotFound when the rule has never been tracked.
func (t *Tracker) AddFeedback(ctx context.Context, ruleID string, positive bool, text string) error {
	lock := t.ruleLock(ruleID)
	lock.Lock()
	defer lock.Unlock()

	t.mu.RLock()
	current := t.records[ruleID]
	gen := t.gen
	t.mu.RUnlock()
	if current == nil {
		return fmt.Errorf("%w: %s has no tracked validations", rules.ErrRuleNotFound, ruleID)
	}

	rec := current.Clone()
	rec.FeedbackCount++
	if positive {
		rec.PositiveFeedback++
	} else {
		rec.NegativeFeedback++
	}
	rec.Status = t.policy.Classify(rec)
	rec.LastUpdated = time.Now().UTC()
	if !t.swap(rec, gen) {
		return nil
	}

	if text != "" {
		t.appendNote(ruleID, positive, text)
	}

	t.persist(ctx, rec)
	return nil
}

// Effectiveness returns a copy of the rule's record.
func (t *Tracker) Effectiveness(ruleID string) (*models.RuleEffectiveness, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[ruleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no tracked validations", rules.ErrRuleNotFound, ruleID)
	}
	return rec.Clone(), nil
}

// EffectiveRules returns copies of all records classified effective.
func (t *Tracker) EffectiveRules() []*models.RuleEffectiveness {
	return t.recordsWithStatus(models.StatusEffective)
}

// IneffectiveRules returns copies of all records classified ineffective.
func (t *Tracker) IneffectiveRules() []*models.RuleEffectiveness {
	return t.recordsWithStatus(models.StatusIneffective)
}

// RulesNeedingImprovement returns copies of all records classified as
// needing improvement.
func (t *Tracker) RulesNeedingImprovement() []*models.RuleEffectiveness {
	return t.recordsWithStatus(models.StatusNeedsImprovement)
}

// All returns copies of every tracked record.
func (t *Tracker) All() []*models.RuleEffectiveness {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*models.RuleEffectiveness, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec.Clone())
	}
	return out
}

// Summary aggregates status counts across all tracked rules.
func (t *Tracker) Summary() models.EffectivenessSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := models.EffectivenessSummary{TotalRules: len(t.records)}
	for _, rec := range t.records {
		summary.TotalValidations += rec.TotalValidations
		summary.TotalFeedback += rec.FeedbackCount
		switch rec.Status {
		case models.StatusEffective:
			summary.EffectiveRules++
		case models.StatusIneffective:
			summary.IneffectiveRules++
		case models.StatusNeedsImprovement:
			summary.RulesNeedingWork++
		default:
			summary.UnknownRules++
		}
	}
	if summary.TotalRules > 0 {
		summary.EffectivenessRate = float64(summary.EffectiveRules) / float64(summary.TotalRules)
	}
	return summary
}

// Notes returns the retained feedback notes for a rule, newest last.
func (t *Tracker) Notes(ruleID string) []models.FeedbackNote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.FeedbackNote(nil), t.notes[ruleID]...)
}

// Reset clears all tracked state, in memory and in the store. Bumping the
// generation invalidates any update cloned before the reset, so an in-flight
// TrackValidation or AddFeedback cannot resurrect a cleared record.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.gen++
	t.records = make(map[string]*models.RuleEffectiveness)
	t.notes = make(map[string][]models.FeedbackNote)
	t.mu.Unlock()

	if t.store == nil {
		return nil
	}
	if err := t.store.DeleteEffectiveness(ctx); err != nil {
		return fmt.Errorf("reset effectiveness store: %w", err)
	}
	return nil
}

func (t *Tracker) recordsWithStatus(status models.EffectivenessStatus) []*models.RuleEffectiveness {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*models.RuleEffectiveness
	for _, rec := range t.records {
		if rec.Status == status {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// workingCopy returns a mutable clone of the rule's record, or a fresh record
// on first track, along with the generation it was cloned under. Records
// stored in the map are never mutated in place: the caller mutates the clone
// and swaps it back, so concurrent readers always see a consistent record.
func (t *Tracker) workingCopy(ruleID, name string, category models.Category) (*models.RuleEffectiveness, uint64) {
	t.mu.RLock()
	rec := t.records[ruleID]
	gen := t.gen
	t.mu.RUnlock()

	if rec == nil {
		return &models.RuleEffectiveness{
			RuleID:   ruleID,
			RuleName: name,
			Category: category,
			Status:   models.StatusUnknown,
		}, gen
	}
	return rec.Clone(), gen
}

// swap publishes the mutated record. It reports false, discarding the record,
// when a reset ran between the clone and the swap.
func (t *Tracker) swap(rec *models.RuleEffectiveness, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	t.records[rec.RuleID] = rec
	return true
}

func (t *Tracker) ruleLock(ruleID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[ruleID] = lock
	}
	return lock
}

func (t *Tracker) appendNote(ruleID string, positive bool, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	notes := append(t.notes[ruleID], models.FeedbackNote{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		Positive:  positive,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if len(notes) > maxNotesPerRule {
		notes = notes[len(notes)-maxNotesPerRule:]
	}
	t.notes[ruleID] = notes
}

func (t *Tracker) persist(ctx context.Context, rec *models.RuleEffectiveness) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveEffectiveness(ctx, rec.Clone()); err != nil {
		t.logger.Warn("effectiveness persist failed", slog.String("rule_id", rec.RuleID), slog.Any("error", err))
	}
}

func (t *Tracker) publish(ctx context.Context, rec *models.RuleEffectiveness) {
	if t.sink == nil {
		return
	}
	snapshot := models.ValidationSnapshot{
		RuleID:            rec.RuleID,
		Category:          rec.Category,
		TotalValidations:  rec.TotalValidations,
		PassedValidations: rec.PassedValidations,
		FailedValidations: rec.FailedValidations,
	}
	if err := t.sink.Publish(ctx, snapshot); err != nil {
		t.logger.Warn("metrics sink publish failed", slog.String("rule_id", rec.RuleID), slog.Any("error", err))
	}
}
