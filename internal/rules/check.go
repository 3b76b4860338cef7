package rules

import (
	"fmt"
	"strings"

	"github.com/audiopcb/veritas/internal/models"
)

// Evaluate runs a rule's check against the structured input. A programmatic
// Check takes precedence; otherwise the declared conditions are evaluated and
// the rule passes only when every condition holds. A rule with neither is
// treated as passing trivially.
func Evaluate(rule *models.ValidationRule, input map[string]any) (bool, string) {
	if rule.Check != nil {
		return rule.Check(input)
	}
	for _, cond := range rule.Conditions {
		ok, detail := evaluateCondition(rule, cond, input)
		if !ok {
			return false, detail
		}
	}
	return true, ""
}

func evaluateCondition(rule *models.ValidationRule, cond models.Condition, input map[string]any) (bool, string) {
	actual, present := lookupField(input, cond.Field)

	if cond.Operator == models.OpExists {
		if present {
			return true, ""
		}
		return false, fmt.Sprintf("field %s is missing", cond.Field)
	}
	if !present {
		return false, fmt.Sprintf("field %s is missing", cond.Field)
	}

	expected := resolveValue(rule, cond.Value)

	switch cond.Operator {
	case models.OpEquals:
		if valuesEqual(actual, expected) {
			return true, ""
		}
	case models.OpNotEquals:
		if !valuesEqual(actual, expected) {
			return true, ""
		}
	case models.OpContains:
		s, ok1 := actual.(string)
		sub, ok2 := expected.(string)
		if ok1 && ok2 && strings.Contains(s, sub) {
			return true, ""
		}
	case models.OpGreaterThan, models.OpAtLeast, models.OpLessThan, models.OpAtMost:
		a, okA := asFloat(actual)
		b, okB := asFloat(expected)
		if okA && okB && compareFloats(cond.Operator, a, b) {
			return true, ""
		}
	default:
		return false, fmt.Sprintf("unknown operator %q on field %s", cond.Operator, cond.Field)
	}

	return false, fmt.Sprintf("field %s: %v %s %v does not hold", cond.Field, actual, cond.Operator, expected)
}

// lookupField resolves dotted paths into nested maps, e.g. "trace.width_mil".
func lookupField(input map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var current any = input
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// resolveValue substitutes "$param:<name>" references with the rule's
// current parameter value.
func resolveValue(rule *models.ValidationRule, value any) any {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, "$param:") {
		return value
	}
	name := strings.TrimPrefix(s, "$param:")
	if v, ok := rule.Parameters[name]; ok {
		return v
	}
	return value
}

func valuesEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareFloats(op models.Operator, a, b float64) bool {
	switch op {
	case models.OpGreaterThan:
		return a > b
	case models.OpAtLeast:
		return a >= b
	case models.OpLessThan:
		return a < b
	case models.OpAtMost:
		return a <= b
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
