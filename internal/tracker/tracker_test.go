package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/rules"
)

type memStore struct {
	mu    sync.Mutex
	saved map[string]*models.RuleEffectiveness
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*models.RuleEffectiveness)}
}

func (s *memStore) SaveEffectiveness(_ context.Context, rec *models.RuleEffectiveness) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[rec.RuleID] = rec
	return nil
}

func (s *memStore) LoadEffectiveness(context.Context) ([]*models.RuleEffectiveness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.RuleEffectiveness, 0, len(s.saved))
	for _, rec := range s.saved {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) DeleteEffectiveness(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = make(map[string]*models.RuleEffectiveness)
	return nil
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []models.ValidationSnapshot
	fail      bool
}

func (s *recordingSink) Publish(_ context.Context, snap models.ValidationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func testRule(id string) *models.ValidationRule {
	return &models.ValidationRule{
		ID:       id,
		Name:     "Test " + id,
		Category: models.CategoryAudio,
		Severity: models.SeverityError,
		Enabled:  true,
	}
}

func TestTrackValidationCounters(t *testing.T) {
	tr := New(DefaultPolicy(), nil, nil, nil)
	ctx := context.Background()
	rule := testRule("impedance-check")

	for i := 0; i < 7; i++ {
		tr.TrackValidation(ctx, rule, true, rule.Severity)
	}
	for i := 0; i < 3; i++ {
		tr.TrackValidation(ctx, rule, false, rule.Severity)
	}

	rec, err := tr.Effectiveness("impedance-check")
	if err != nil {
		t.Fatalf("Effectiveness() error: %v", err)
	}
	if rec.TotalValidations != 10 || rec.PassedValidations != 7 || rec.FailedValidations != 3 {
		t.Fatalf("counters = %d/%d/%d, want 10/7/3",
			rec.TotalValidations, rec.PassedValidations, rec.FailedValidations)
	}
	if rec.TotalValidations != rec.PassedValidations+rec.FailedValidations {
		t.Fatalf("total %d != passed+failed %d", rec.TotalValidations, rec.PassedValidations+rec.FailedValidations)
	}
	if rec.AverageSeverity != models.SeverityError.Weight() {
		t.Fatalf("AverageSeverity = %v, want %v", rec.AverageSeverity, models.SeverityError.Weight())
	}
}

func TestFeedbackDrivesStatus(t *testing.T) {
	tr := New(DefaultPolicy(), nil, nil, nil)
	ctx := context.Background()
	rule := testRule("clearance-check")

	tr.TrackValidation(ctx, rule, true, rule.Severity)
	for i := 0; i < 8; i++ {
		if err := tr.AddFeedback(ctx, rule.ID, true, ""); err != nil {
			t.Fatalf("AddFeedback() error: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := tr.AddFeedback(ctx, rule.ID, false, ""); err != nil {
			t.Fatalf("AddFeedback() error: %v", err)
		}
	}

	rec, err := tr.Effectiveness(rule.ID)
	if err != nil {
		t.Fatalf("Effectiveness() error: %v", err)
	}
	if rec.FeedbackCount != 10 || rec.PositiveFeedback != 8 || rec.NegativeFeedback != 2 {
		t.Fatalf("feedback counters = %d/%d/%d, want 10/8/2",
			rec.FeedbackCount, rec.PositiveFeedback, rec.NegativeFeedback)
	}
	if rec.Status != models.StatusEffective {
		t.Fatalf("Status = %s, want %s", rec.Status, models.StatusEffective)
	}
}

func TestFeedbackForUntrackedRule(t *testing.T) {
	tr := New(DefaultPolicy(), nil, nil, nil)

	err := tr.AddFeedback(context.Background(), "never-tracked", true, "")
	if !errors.Is(err, rules.ErrRuleNotFound) {
		t.Fatalf("AddFeedback() error = %v, want ErrRuleNotFound", err)
	}
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	tr := New(DefaultPolicy(), newMemStore(), &recordingSink{}, nil)
	ctx := context.Background()
	rule := testRule("hot-rule")

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(pass bool) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tr.TrackValidation(ctx, rule, pass, rule.Severity)
			}
		}(w%2 == 0)
	}
	wg.Wait()

	rec, err := tr.Effectiveness(rule.ID)
	if err != nil {
		t.Fatalf("Effectiveness() error: %v", err)
	}
	if rec.TotalValidations != workers*perWorker {
		t.Fatalf("TotalValidations = %d, want %d", rec.TotalValidations, workers*perWorker)
	}
	if rec.PassedValidations+rec.FailedValidations != rec.TotalValidations {
		t.Fatalf("passed+failed %d != total %d",
			rec.PassedValidations+rec.FailedValidations, rec.TotalValidations)
	}
}

func TestSinkReceivesSnapshots(t *testing.T) {
	sink := &recordingSink{}
	tr := New(DefaultPolicy(), nil, sink, nil)
	ctx := context.Background()
	rule := testRule("snap-rule")

	tr.TrackValidation(ctx, rule, true, rule.Severity)
	tr.TrackValidation(ctx, rule, false, rule.Severity)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(sink.snapshots))
	}
	last := sink.snapshots[1]
	if last.TotalValidations != 2 || last.PassedValidations != 1 || last.FailedValidations != 1 {
		t.Fatalf("snapshot = %+v", last)
	}
}

func TestSinkFailureIsAbsorbed(t *testing.T) {
	tr := New(DefaultPolicy(), nil, &recordingSink{fail: true}, nil)
	rule := testRule("lossy-rule")

	tr.TrackValidation(context.Background(), rule, true, rule.Severity)

	rec, err := tr.Effectiveness(rule.ID)
	if err != nil {
		t.Fatalf("Effectiveness() error: %v", err)
	}
	if rec.TotalValidations != 1 {
		t.Fatalf("TotalValidations = %d, want 1", rec.TotalValidations)
	}
}

func TestSummaryIsIdempotent(t *testing.T) {
	tr := New(DefaultPolicy(), nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		tr.TrackValidation(ctx, testRule("good-rule"), true, models.SeverityWarning)
	}
	for i := 0; i < 12; i++ {
		tr.TrackValidation(ctx, testRule("bad-rule"), false, models.SeverityError)
	}

	first := tr.Summary()
	second := tr.Summary()
	if first != second {
		t.Fatalf("repeated Summary() diverged: %+v then %+v", first, second)
	}
	if first.TotalRules != 2 || first.IneffectiveRules != 1 {
		t.Fatalf("summary = %+v", first)
	}
	if first.TotalValidations != 24 {
		t.Fatalf("TotalValidations = %d, want 24", first.TotalValidations)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	first := New(DefaultPolicy(), store, nil, nil)
	rule := testRule("persisted-rule")
	for i := 0; i < 5; i++ {
		first.TrackValidation(ctx, rule, false, models.SeverityCritical)
	}

	second := New(DefaultPolicy(), store, nil, nil)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	rec, err := second.Effectiveness(rule.ID)
	if err != nil {
		t.Fatalf("Effectiveness() after restore: %v", err)
	}
	if rec.FailedValidations != 5 {
		t.Fatalf("FailedValidations = %d, want 5", rec.FailedValidations)
	}
}

func TestResetClearsState(t *testing.T) {
	store := newMemStore()
	tr := New(DefaultPolicy(), store, nil, nil)
	ctx := context.Background()
	rule := testRule("reset-rule")

	tr.TrackValidation(ctx, rule, true, rule.Severity)
	if err := tr.AddFeedback(ctx, rule.ID, false, "too strict near the DAC"); err != nil {
		t.Fatalf("AddFeedback() error: %v", err)
	}

	if err := tr.Reset(ctx); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if _, err := tr.Effectiveness(rule.ID); !errors.Is(err, rules.ErrRuleNotFound) {
		t.Fatalf("Effectiveness() after reset = %v, want ErrRuleNotFound", err)
	}
	if notes := tr.Notes(rule.ID); len(notes) != 0 {
		t.Fatalf("notes survived reset: %d", len(notes))
	}
	if recs, _ := store.LoadEffectiveness(ctx); len(recs) != 0 {
		t.Fatalf("store survived reset: %d records", len(recs))
	}
}

func TestResetInvalidatesInFlightUpdate(t *testing.T) {
	tr := New(DefaultPolicy(), nil, nil, nil)
	ctx := context.Background()
	rule := testRule("inflight-rule")

	tr.TrackValidation(ctx, rule, true, rule.Severity)

	// An update clones the record, then a reset lands before the swap. The
	// stale clone must be discarded, not written back.
	rec, gen := tr.workingCopy(rule.ID, rule.Name, rule.Category)
	rec.TotalValidations++
	if err := tr.Reset(ctx); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if tr.swap(rec, gen) {
		t.Fatal("stale record swapped back past a reset")
	}
	if _, err := tr.Effectiveness(rule.ID); !errors.Is(err, rules.ErrRuleNotFound) {
		t.Fatalf("Effectiveness() after reset = %v, want ErrRuleNotFound", err)
	}

	// Updates cloned after the reset go through as first tracks.
	tr.TrackValidation(ctx, rule, false, rule.Severity)
	fresh, err := tr.Effectiveness(rule.ID)
	if err != nil {
		t.Fatalf("Effectiveness() error: %v", err)
	}
	if fresh.TotalValidations != 1 || fresh.FailedValidations != 1 {
		t.Fatalf("counters after reset = %d/%d, want 1/1",
			fresh.TotalValidations, fresh.FailedValidations)
	}
}

func TestNotesRingIsBounded(t *testing.T) {
	tr := New(DefaultPolicy(), nil, nil, nil)
	ctx := context.Background()
	rule := testRule("chatty-rule")
	tr.TrackValidation(ctx, rule, true, rule.Severity)

	for i := 0; i < maxNotesPerRule+10; i++ {
		if err := tr.AddFeedback(ctx, rule.ID, true, "note"); err != nil {
			t.Fatalf("AddFeedback() error: %v", err)
		}
	}

	notes := tr.Notes(rule.ID)
	if len(notes) != maxNotesPerRule {
		t.Fatalf("retained %d notes, want %d", len(notes), maxNotesPerRule)
	}
	for _, note := range notes {
		if note.ID == "" || note.RuleID != rule.ID {
			t.Fatalf("malformed note: %+v", note)
		}
	}
}
