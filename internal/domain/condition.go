package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Matches evaluates the condition against a record's field values. This is
// the rule contract consumed by the downstream product's form and workflow
// renderers; the backend itself never gates anything on it.
func (c Condition) Matches(fields map[string]any) bool {
	val, present := fields[c.SourceField]
	switch c.Operator {
	case OpEquals:
		return present && asString(val) == asString(c.Value)
	case OpNotEquals:
		return !present || asString(val) != asString(c.Value)
	case OpContains:
		return present && contains(val, c.Value)
	case OpGreaterThan:
		a, aok := asNumber(val)
		b, bok := asNumber(c.Value)
		return present && aok && bok && a > b
	case OpLessThan:
		a, aok := asNumber(val)
		b, bok := asNumber(c.Value)
		return present && aok && bok && a < b
	case OpIsEmpty:
		return !present || isEmpty(val)
	case OpIsNotEmpty:
		return present && !isEmpty(val)
	}
	return false
}

// EvaluateAll reports whether every condition holds (AND semantics).
func EvaluateAll(conds []Condition, fields map[string]any) bool {
	for _, c := range conds {
		if !c.Matches(fields) {
			return false
		}
	}
	return true
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func contains(val, operand any) bool {
	needle := asString(operand)
	switch t := val.(type) {
	case string:
		return strings.Contains(t, needle)
	case []any:
		for _, item := range t {
			if asString(item) == needle {
				return true
			}
		}
	case []string:
		for _, item := range t {
			if item == needle {
				return true
			}
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
