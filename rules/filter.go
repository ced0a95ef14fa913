/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rules

import "fmt"

// Operator is a comparison in the filter DSL attached to a rule.
type Operator string

const (
	OpEqual       Operator = "="
	OpNotEqual    Operator = "!="
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreater     Operator = ">"
	OpGreaterEq   Operator = ">="
	OpLess        Operator = "<"
	OpLessEq      Operator = "<="
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// NeedsValue reports whether the operator compares against a configured value.
// is_empty and is_not_empty are the only nullary operators.
func (o Operator) NeedsValue() bool {
	return o != OpIsEmpty && o != OpIsNotEmpty
}

// Validate returns an error for operators outside the DSL.
func (o Operator) Validate() error {
	switch o {
	case OpEqual, OpNotEqual, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith,
		OpGreater, OpGreaterEq, OpLess, OpLessEq,
		OpIsEmpty, OpIsNotEmpty:
		return nil
	default:
		return fmt.Errorf("unknown filter operator %q", string(o))
	}
}

// Filter is one predicate over an entity field. All filters on a rule must
// match for the rule to apply (AND semantics).
type Filter struct {
	// Field names the entity attribute the filter inspects, e.g. "name",
	// "input", "output", "metadata", "tags", "duration", "thread_id".
	Field string `json:"field"`

	// Operator is the comparison to apply.
	Operator Operator `json:"operator"`

	// Key addresses one entry of a dictionary-valued field such as metadata.
	Key string `json:"key,omitempty"`

	// Value is the right-hand side of the comparison. Unused by the
	// nullary operators.
	Value string `json:"value,omitempty"`
}

// Validate checks the filter is well formed.
func (f Filter) Validate() error {
	if f.Field == "" {
		return fmt.Errorf("filter is missing a field")
	}
	if err := f.Operator.Validate(); err != nil {
		return err
	}
	if f.Operator.NeedsValue() && f.Value == "" {
		return fmt.Errorf("filter %s %s requires a value", f.Field, f.Operator)
	}
	return nil
}
