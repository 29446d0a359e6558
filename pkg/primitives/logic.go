package primitives

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/chicogong/tagforge/pkg/tags"
)

func logicPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "if", Usage: "{if:left|operator|right|then|value|else|value}", Fn: ifThen},
		{Name: "and", Usage: "{and:a|b|...}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			if call.NumParts() == 0 {
				return "false", nil
			}
			for _, p := range call.Parts() {
				if !truthy(p) {
					return "false", nil
				}
			}
			return "true", nil
		}},
		{Name: "or", Usage: "{or:a|b|...}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			for _, p := range call.Parts() {
				if truthy(p) {
					return "true", nil
				}
			}
			return "false", nil
		}},
		{Name: "not", Usage: "{not:value}", Fn: transform(func(s string) string {
			return boolText(!truthy(s))
		})},
		{Name: "equals", Usage: "{equals:a|b|...}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			if call.NumParts() < 2 {
				return nil, usage("{equals:a|b|...}")
			}
			return boolText(allEqual(call.Parts())), nil
		}},
		{Name: "notequals", Aliases: []string{"unequals"}, Usage: "{notequals:a|b}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			if call.NumParts() < 2 {
				return nil, usage("{notequals:a|b}")
			}
			return boolText(!allEqual(call.Parts())), nil
		}},
	}
}

func allEqual(parts []string) bool {
	for _, p := range parts[1:] {
		if !equal(parts[0], p) {
			return false
		}
	}
	return true
}

// equal compares numerically when both sides are numbers.
func equal(a, b string) bool {
	x, okx := parseFloat(a)
	y, oky := parseFloat(b)
	if okx && oky {
		return x == y
	}
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// compare orders a and b numerically when both are numbers and by text
// otherwise.
func compare(a, b string) int {
	x, okx := parseFloat(a)
	y, oky := parseFloat(b)
	switch {
	case okx && oky && x < y:
		return -1
	case okx && oky && x > y:
		return 1
	case okx && oky:
		return 0
	}
	return strings.Compare(strings.TrimSpace(a), strings.TrimSpace(b))
}

// evalCondition applies op. The containment operators *= ^= $= ~= may be
// negated with a leading '!'; ~= tests for a whole word.
func evalCondition(left, op, right string) (bool, error) {
	op = strings.TrimSpace(op)
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case ">=":
		return compare(left, right) >= 0, nil
	case "<=":
		return compare(left, right) <= 0, nil
	case ">":
		return compare(left, right) > 0, nil
	case "<":
		return compare(left, right) < 0, nil
	}

	negate := strings.HasPrefix(op, "!")
	var ok bool
	switch strings.TrimPrefix(op, "!") {
	case "*=":
		ok = strings.Contains(left, right)
	case "^=":
		ok = strings.HasPrefix(left, right)
	case "$=":
		ok = strings.HasSuffix(left, right)
	case "~=":
		ok = slices.Contains(strings.Fields(left), strings.TrimSpace(right))
	default:
		return false, unknownOperatorError{op}
	}
	return ok != negate, nil
}

type unknownOperatorError struct{ op string }

func (e unknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator '%s'", e.op)
}

// ifThen accepts both {if:a|==|b|then|x|else|y} and the short
// {if:a|==|b|x|y}.
func ifThen(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	parts := call.Parts()
	if len(parts) < 3 {
		return nil, usage("{if:left|operator|right|then|value|else|value}")
	}
	ok, err := evalCondition(parts[0], parts[1], parts[2])
	// An unknown operator is the result itself, not a primitive error.
	if uo, isUnknown := err.(unknownOperatorError); isUnknown {
		return "[error: " + uo.Error() + "]", nil
	}
	if err != nil {
		return nil, err
	}

	var then, otherwise string
	rest := parts[3:]
	keyed := false
	for i := 0; i+1 < len(rest); i++ {
		switch strings.ToLower(strings.TrimSpace(rest[i])) {
		case "then":
			then, keyed = rest[i+1], true
			i++
		case "else":
			otherwise, keyed = rest[i+1], true
			i++
		}
	}
	if !keyed {
		if len(rest) > 0 {
			then = rest[0]
		}
		if len(rest) > 1 {
			otherwise = rest[1]
		}
	}
	if ok {
		return then, nil
	}
	return otherwise, nil
}
