package rules

import "errors"

var (
	// ErrDuplicateRule signals an add with an already-registered rule id.
	ErrDuplicateRule = errors.New("rule id already registered")

	// ErrDependency signals removal of a rule another rule still depends on.
	ErrDependency = errors.New("rule has dependents")

	// ErrRuleNotFound signals an operation against an unknown rule id.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidParameter signals an optimization naming a parameter the
	// target rule does not carry.
	ErrInvalidParameter = errors.New("parameter not defined on rule")

	// ErrRuleMismatch signals an optimization-history import tagged with a
	// different rule id than the target.
	ErrRuleMismatch = errors.New("history document belongs to a different rule")
)
