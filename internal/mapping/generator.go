package mapping

import (
	"strconv"
	"strings"
)

// Generate renders mappings back into DSL text, one line per mapping, using
// the clause order Parse accepts. An empty list renders as "".
func Generate(mappings []Mapping) string {
	lines := make([]string, 0, len(mappings))
	for _, m := range mappings {
		lines = append(lines, GenerateLine(m))
	}
	return strings.Join(lines, "\n")
}

// GenerateLine renders a single mapping.
func GenerateLine(m Mapping) string {
	if m.IsNodeCondition() {
		return displayPath(m.TargetID) + " " + kwIf + " " + m.NodeCondition
	}

	var b strings.Builder
	b.WriteString(renderSource(m))
	b.WriteString(" -> ")
	b.WriteString(displayPath(m.TargetID))

	if m.LoopName != "" {
		b.WriteString(" " + kwLoop + " " + m.LoopName)
	}
	if m.UnderLoop != "" {
		b.WriteString(" " + kwUnder + " " + m.UnderLoop)
	}
	if m.Condition != nil {
		b.WriteString(" " + kwWhere + " " + FormatCondition(*m.Condition))
	}
	if m.Transform != nil {
		b.WriteString(" " + kwThen + " " + FormatTransform(*m.Transform))
	}
	if m.LookupTable != "" {
		b.WriteString(" " + kwLookup + " " + m.LookupTable)
	}
	switch m.ValueType {
	case ValueLiteral:
		b.WriteString(" " + kwAs + " LITERAL")
	case ValueExpr:
		b.WriteString(" " + kwAs + " EXPR")
	}
	if m.NodeCondition != "" {
		b.WriteString(" " + kwIf + " " + m.NodeCondition)
	}

	return b.String()
}

// renderSource picks the source spelling for the mapping's role: loop
// declarations get the wildcard suffix back, loop-scoped mappings are written
// relative to their iterator.
func renderSource(m Mapping) string {
	switch {
	case m.IsLoopDeclaration:
		return displayPath(m.SourceID) + WildcardSuffix
	case m.UnderLoop != "":
		return m.UnderLoop + "." + LastSegment(m.SourceID)
	default:
		return displayPath(m.SourceID)
	}
}

// FormatCondition renders "<field> <operator> <value>", quoting non-numeric values.
func FormatCondition(c Condition) string {
	value := c.Value
	if !IsNumeric(value) {
		value = Quote(value)
	}
	return c.Field + " " + string(c.Operator) + " " + value
}

// FormatTransform renders a transform as it appears after THEN, e.g. "+5%".
func FormatTransform(t Transform) string {
	num := strconv.FormatFloat(t.Value, 'f', -1, 64)
	switch t.Type {
	case TransformAdd:
		return "+" + num
	case TransformSubtract:
		return "-" + num
	case TransformMultiply:
		return "*" + num
	case TransformDivide:
		return "/" + num
	case TransformAddPercent:
		return "+" + num + "%"
	case TransformSubtractPercent:
		return "-" + num + "%"
	default:
		return num
	}
}

func displayPath(path string) string {
	if s := StripRoot(path); s != "" {
		return s
	}
	return RootSegment
}
