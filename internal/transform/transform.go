// Package transform holds the value semantics behind WHERE and THEN clauses
// and the helpers that render values and expressions as Starlark source.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mapsmith/mapsmith/internal/mapping"
)

// ParseNumber parses a numeric-looking string as the DSL understands it.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !mapping.IsNumeric(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Apply runs a THEN transform over a numeric value.
func Apply(v float64, t mapping.Transform) (float64, error) {
	switch t.Type {
	case mapping.TransformAdd:
		return v + t.Value, nil
	case mapping.TransformSubtract:
		return v - t.Value, nil
	case mapping.TransformMultiply:
		return v * t.Value, nil
	case mapping.TransformDivide:
		if t.Value == 0 {
			return 0, fmt.Errorf("divide by zero")
		}
		return v / t.Value, nil
	case mapping.TransformAddPercent:
		return v * (1 + t.Value/100), nil
	case mapping.TransformSubtractPercent:
		return v * (1 - t.Value/100), nil
	default:
		return 0, fmt.Errorf("unknown transform %q", t.Type)
	}
}

// Compare evaluates a WHERE operator. Ordering and equality operators compare
// numerically when both sides look numeric and as strings otherwise.
func Compare(actual string, op mapping.Operator, want string) bool {
	a, aNum := ParseNumber(actual)
	w, wNum := ParseNumber(want)
	numeric := aNum && wNum

	switch op {
	case mapping.OpEq:
		if numeric {
			return a == w
		}
		return actual == want
	case mapping.OpNe:
		if numeric {
			return a != w
		}
		return actual != want
	case mapping.OpGt:
		if numeric {
			return a > w
		}
		return actual > want
	case mapping.OpGe:
		if numeric {
			return a >= w
		}
		return actual >= want
	case mapping.OpLt:
		if numeric {
			return a < w
		}
		return actual < want
	case mapping.OpLe:
		if numeric {
			return a <= w
		}
		return actual <= want
	case mapping.OpContains:
		return strings.Contains(actual, want)
	case mapping.OpStartsWith:
		return strings.HasPrefix(actual, want)
	case mapping.OpEndsWith:
		return strings.HasSuffix(actual, want)
	default:
		return false
	}
}

// FormatNumber renders a float without a trailing ".0" for whole values.
func FormatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatLiteral formats a value as a Starlark literal. Numbers written in
// canonical form stay bare; everything else becomes a quoted string.
func FormatLiteral(value string) string {
	if f, ok := ParseNumber(value); ok && FormatNumber(f) == value {
		return value
	}
	return strconv.Quote(value)
}
