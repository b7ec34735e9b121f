package pricing

import (
	"strings"

	"go.uber.org/zap"
)

// EvaluateCondition reports whether the value at fieldPath satisfies op against requiredValue.
// It never fails: missing fields, unparseable numbers and unknown operators all evaluate to false
// (isEmpty and isNotEmpty aside, which are decided before the missing-value short-circuit).
func EvaluateCondition(answers Answers, fieldPath, requiredValue string, op Operator) bool {
	return evaluateCondition(zap.NewNop(), answers, fieldPath, "", requiredValue, op)
}

func evaluateCondition(log *zap.Logger, answers Answers, fieldPath, section, requiredValue string, op Operator) bool {
	value, found := answers.Lookup(fieldPath, section)
	if !found {
		value = nil
	}

	switch op {
	case OpIsEmpty:
		return isEmptyValue(value)
	case OpIsNotEmpty:
		return !isEmptyValue(value)
	}

	if isEmptyValue(value) {
		return false
	}

	want := strings.ToLower(strings.TrimSpace(requiredValue))
	switch op {
	case OpEquals:
		return anyValue(value, func(s string) bool { return s == want })
	case OpNotEquals:
		return !anyValue(value, func(s string) bool { return s == want })
	case OpContains:
		return anyValue(value, func(s string) bool { return strings.Contains(s, want) })
	case OpNotContains:
		return !anyValue(value, func(s string) bool { return strings.Contains(s, want) })
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		return compareNumbers(value, requiredValue, op)
	}

	log.Warn("unknown comparison operator",
		zap.String("operator", string(op)),
		zap.String("field", fieldPath),
	)
	return false
}

// anyValue applies match to the normalised string form of v, or to each element of a list.
func anyValue(v any, match func(string) bool) bool {
	if list, ok := v.([]string); ok {
		for _, item := range list {
			if match(strings.ToLower(strings.TrimSpace(item))) {
				return true
			}
		}
		return false
	}
	return match(strings.ToLower(strings.TrimSpace(valueString(v))))
}

func compareNumbers(v any, required string, op Operator) bool {
	left, ok := parseLooseNumber(valueString(v))
	if !ok {
		return false
	}
	right, ok := parseLooseNumber(required)
	if !ok {
		return false
	}
	switch op {
	case OpLessThan:
		return left < right
	case OpLessThanOrEqual:
		return left <= right
	case OpGreaterThan:
		return left > right
	case OpGreaterThanOrEqual:
		return left >= right
	}
	return false
}
