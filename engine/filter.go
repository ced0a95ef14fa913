/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tracelens/onlineval/entity"
	"github.com/tracelens/onlineval/rules"
)

// matchesAll reports whether the entity satisfies every filter of a rule.
// Any non-match skips the rule for this entity. A malformed filter is an
// error so the caller can contain it as an item failure.
func matchesAll(e *entity.Scored, filters []rules.Filter) (bool, error) {
	for _, f := range filters {
		ok, err := matches(e, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matches(e *entity.Scored, f rules.Filter) (bool, error) {
	switch f.Field {
	case "tags":
		return matchTags(e.Tags, f)
	case "duration":
		return matchNumber(e.DurationMillis, f)
	}

	actual, err := fieldValue(e, f)
	if err != nil {
		return false, err
	}
	return matchString(actual, f)
}

func fieldValue(e *entity.Scored, f rules.Filter) (string, error) {
	switch f.Field {
	case "id":
		return e.ID.String(), nil
	case "name":
		return e.Name, nil
	case "thread_id":
		return e.ThreadID, nil
	case "input":
		return string(e.Input), nil
	case "output":
		return string(e.Output), nil
	case "metadata":
		if f.Key == "" {
			return string(e.Metadata), nil
		}
		return gjson.GetBytes(e.Metadata, f.Key).String(), nil
	default:
		return "", fmt.Errorf("filter references unknown field %q", f.Field)
	}
}

func matchString(actual string, f rules.Filter) (bool, error) {
	switch f.Operator {
	case rules.OpEqual:
		return strings.EqualFold(actual, f.Value), nil
	case rules.OpNotEqual:
		return !strings.EqualFold(actual, f.Value), nil
	case rules.OpContains:
		return containsFold(actual, f.Value), nil
	case rules.OpNotContains:
		return !containsFold(actual, f.Value), nil
	case rules.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(f.Value)), nil
	case rules.OpEndsWith:
		return strings.HasSuffix(strings.ToLower(actual), strings.ToLower(f.Value)), nil
	case rules.OpGreater, rules.OpGreaterEq, rules.OpLess, rules.OpLessEq:
		got, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		if err != nil {
			return false, nil
		}
		return matchNumber(got, f)
	case rules.OpIsEmpty:
		return actual == "", nil
	case rules.OpIsNotEmpty:
		return actual != "", nil
	default:
		return false, fmt.Errorf("unknown filter operator %q", f.Operator)
	}
}

func matchNumber(actual float64, f rules.Filter) (bool, error) {
	switch f.Operator {
	case rules.OpIsEmpty:
		return actual == 0, nil
	case rules.OpIsNotEmpty:
		return actual != 0, nil
	}

	want, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
	if err != nil {
		return false, fmt.Errorf("filter on %s needs a numeric value, got %q", f.Field, f.Value)
	}
	switch f.Operator {
	case rules.OpEqual:
		return actual == want, nil
	case rules.OpNotEqual:
		return actual != want, nil
	case rules.OpGreater:
		return actual > want, nil
	case rules.OpGreaterEq:
		return actual >= want, nil
	case rules.OpLess:
		return actual < want, nil
	case rules.OpLessEq:
		return actual <= want, nil
	default:
		return false, fmt.Errorf("operator %q does not apply to numeric field %s", f.Operator, f.Field)
	}
}

// matchTags treats the tag list as a set: = and contains test membership.
func matchTags(tags []string, f rules.Filter) (bool, error) {
	switch f.Operator {
	case rules.OpIsEmpty:
		return len(tags) == 0, nil
	case rules.OpIsNotEmpty:
		return len(tags) > 0, nil
	case rules.OpEqual, rules.OpContains:
		for _, t := range tags {
			if strings.EqualFold(t, f.Value) {
				return true, nil
			}
		}
		return false, nil
	case rules.OpNotEqual, rules.OpNotContains:
		for _, t := range tags {
			if strings.EqualFold(t, f.Value) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("operator %q does not apply to tags", f.Operator)
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
