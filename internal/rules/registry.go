package rules

import (
	"fmt"
	"sync"

	"github.com/audiopcb/veritas/internal/models"
)

// Registry holds registered validation rules in registration order and keeps
// a category index for category-scoped validation.
//
// Readers always receive clones and mutation goes through Mutate, which swaps
// a fresh copy in under the registry lock. A rule handed out before a swap
// stays internally consistent for the duration of its use.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*models.ValidationRule
	order []string
	byCat map[models.Category][]string
}

// NewRegistry returns an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]*models.ValidationRule),
		byCat: make(map[models.Category][]string),
	}
}

// Add registers a rule. The rule id must be unique.
func (r *Registry) Add(rule *models.ValidationRule) error {
	if rule == nil {
		return fmt.Errorf("rule is nil")
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}
	r.rules[rule.ID] = rule.Clone()
	r.order = append(r.order, rule.ID)
	r.byCat[rule.Category] = append(r.byCat[rule.Category], rule.ID)
	return nil
}

// Remove deletes a rule. It fails while any other registered rule lists the
// id among its dependencies.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	for _, otherID := range r.order {
		if otherID == id {
			continue
		}
		for _, dep := range r.rules[otherID].Dependencies {
			if dep == id {
				return fmt.Errorf("%w: %s is required by %s", ErrDependency, id, otherID)
			}
		}
	}

	delete(r.rules, id)
	r.order = removeString(r.order, id)
	r.byCat[rule.Category] = removeString(r.byCat[rule.Category], id)
	return nil
}

// Get returns a clone of the registered rule for id.
func (r *Registry) Get(id string) (*models.ValidationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule.Clone(), nil
}

// Mutate applies fn to a working copy of the rule and commits the copy only
// when fn succeeds. A failed fn leaves the registered rule untouched. The id
// and category of a rule are fixed at registration and survive any mutation.
func (r *Registry) Mutate(id string, fn func(*models.ValidationRule) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	working := rule.Clone()
	if err := fn(working); err != nil {
		return err
	}
	working.ID = rule.ID
	working.Category = rule.Category
	r.rules[id] = working
	return nil
}

// Has reports whether a rule id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[id]
	return ok
}

// All returns a clone of every registered rule in registration order.
func (r *Registry) All() []*models.ValidationRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ValidationRule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id].Clone())
	}
	return out
}

// ByCategory returns clones of all rules of a category, enabled or not, in
// registration order.
func (r *Registry) ByCategory(cat models.Category) []*models.ValidationRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCat[cat]
	out := make([]*models.ValidationRule, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.rules[id].Clone())
	}
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
