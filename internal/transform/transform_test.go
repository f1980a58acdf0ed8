package transform

import (
	"math"
	"strings"
	"testing"

	"github.com/mapsmith/mapsmith/internal/mapping"
)

func TestApply(t *testing.T) {
	tests := []struct {
		tr   mapping.Transform
		in   float64
		want float64
	}{
		{mapping.Transform{Type: mapping.TransformAdd, Value: 5}, 10, 15},
		{mapping.Transform{Type: mapping.TransformSubtract, Value: 2.5}, 10, 7.5},
		{mapping.Transform{Type: mapping.TransformMultiply, Value: 3}, 4, 12},
		{mapping.Transform{Type: mapping.TransformDivide, Value: 4}, 10, 2.5},
		{mapping.Transform{Type: mapping.TransformAddPercent, Value: 10}, 200, 220},
		{mapping.Transform{Type: mapping.TransformSubtractPercent, Value: 25}, 80, 60},
	}
	for _, tt := range tests {
		got, err := Apply(tt.in, tt.tr)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.tr.Type, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s %v on %v: expected %v, got %v", tt.tr.Type, tt.tr.Value, tt.in, tt.want, got)
		}
	}
}

func TestApply_Errors(t *testing.T) {
	if _, err := Apply(1, mapping.Transform{Type: mapping.TransformDivide, Value: 0}); err == nil {
		t.Error("expected divide by zero error")
	}
	if _, err := Apply(1, mapping.Transform{Type: "modulo", Value: 2}); err == nil {
		t.Error("expected unknown transform error")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		actual string
		op     mapping.Operator
		want   string
		result bool
	}{
		{"10", mapping.OpEq, "10.0", true},
		{"abc", mapping.OpEq, "abc", true},
		{"abc", mapping.OpNe, "abd", true},
		{"9", mapping.OpLt, "10", true},
		{"9", mapping.OpGt, "10", false},
		{"b", mapping.OpGt, "a", true},
		{"10", mapping.OpGe, "10", true},
		{"-1", mapping.OpLe, "0", true},
		{"hello world", mapping.OpContains, "lo w", true},
		{"hello", mapping.OpStartsWith, "he", true},
		{"hello", mapping.OpEndsWith, "he", false},
		{"x", mapping.Operator("~"), "x", false},
	}
	for _, tt := range tests {
		if got := Compare(tt.actual, tt.op, tt.want); got != tt.result {
			t.Errorf("Compare(%q %s %q): expected %v, got %v", tt.actual, tt.op, tt.want, tt.result, got)
		}
	}
}

func TestFormatLiteral(t *testing.T) {
	tests := map[string]string{
		"42":       "42",
		"-3.5":     "-3.5",
		"007":      `"007"`,
		"1.50":     `"1.50"`,
		"active":   `"active"`,
		`say "hi"`: `"say \"hi\""`,
		"":         `""`,
	}
	for in, want := range tests {
		if got := FormatLiteral(in); got != want {
			t.Errorf("FormatLiteral(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(15); got != "15" {
		t.Errorf("expected 15, got %s", got)
	}
	if got := FormatNumber(2.25); got != "2.25" {
		t.Errorf("expected 2.25, got %s", got)
	}
}

func TestExpr(t *testing.T) {
	resolve := func(path string) string {
		return "get(" + strings.ReplaceAll(path, ".", "/") + ")"
	}
	tests := []struct {
		in   string
		want string
	}{
		{"user.active == true", "get(user/active) == True"},
		{"a > 1 && b.c != null", "get(a) > 1 and get(b/c) != None"},
		{"a||b", "get(a) or get(b)"},
		{"!done", "not get(done)"},
		{"x === 'a.b'", "get(x) == 'a.b'"},
		{`upper(user.name)`, `upper(get(user/name))`},
		{`name == "a && b"`, `get(name) == "a && b"`},
		{"total >= 10.5", "get(total) >= 10.5"},
	}
	for _, tt := range tests {
		got, err := Expr(tt.in, resolve)
		if err != nil {
			t.Errorf("Expr(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Expr(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestExpr_UnterminatedString(t *testing.T) {
	if _, err := Expr(`name == "open`, func(p string) string { return p }); err == nil {
		t.Error("expected error for unterminated string")
	}
}
