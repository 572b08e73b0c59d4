package rules

import "errors"

var (
	// ErrRuleExists is returned when adding a rule with a duplicate id.
	ErrRuleExists = errors.New("rule already registered")

	// ErrInvalidRule is returned when a rule is missing required fields.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrStoreNil is returned when the engine is built without a
	// notification store.
	ErrStoreNil = errors.New("notification store cannot be nil")
)
