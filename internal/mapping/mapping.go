package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ValueType marks how a mapped value is interpreted downstream.
type ValueType string

const (
	ValueExpr    ValueType = "expr"
	ValueLiteral ValueType = "literal"
)

// Operator is a comparison operator usable in a WHERE clause.
type Operator string

const (
	OpEq         Operator = "=="
	OpNe         Operator = "!="
	OpGe         Operator = ">="
	OpLe         Operator = "<="
	OpGt         Operator = ">"
	OpLt         Operator = "<"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// validOperators is the set of operators accepted by the parser.
var validOperators = map[Operator]bool{
	OpEq:         true,
	OpNe:         true,
	OpGe:         true,
	OpLe:         true,
	OpGt:         true,
	OpLt:         true,
	OpContains:   true,
	OpStartsWith: true,
	OpEndsWith:   true,
}

// IsValid reports whether op is one of the supported comparison operators.
func (op Operator) IsValid() bool {
	return validOperators[op]
}

// TransformType names an arithmetic adjustment applied to a numeric value.
type TransformType string

const (
	TransformAdd             TransformType = "add"
	TransformSubtract        TransformType = "subtract"
	TransformMultiply        TransformType = "multiply"
	TransformDivide          TransformType = "divide"
	TransformAddPercent      TransformType = "add_percent"
	TransformSubtractPercent TransformType = "subtract_percent"
)

// Mapping is one source-to-target rule, as produced by Parse.
type Mapping struct {
	ID                string     `yaml:"id" json:"id"`
	SourceID          string     `yaml:"source_id" json:"sourceId"`
	TargetID          string     `yaml:"target_id" json:"targetId"`
	Condition         *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Transform         *Transform `yaml:"transform,omitempty" json:"transform,omitempty"`
	IsLoopDeclaration bool       `yaml:"is_loop_declaration,omitempty" json:"isLoopDeclaration,omitempty"`
	LoopName          string     `yaml:"loop_name,omitempty" json:"loopName,omitempty"`
	UnderLoop         string     `yaml:"under_loop,omitempty" json:"underLoop,omitempty"`
	LookupTable       string     `yaml:"lookup_table,omitempty" json:"lookupTable,omitempty"`
	ValueType         ValueType  `yaml:"value_type,omitempty" json:"valueType,omitempty"`
	NodeCondition     string     `yaml:"node_condition,omitempty" json:"nodeCondition,omitempty"`
}

// IsNodeCondition reports whether m is a standalone "<target> IF <condition>" rule.
func (m Mapping) IsNodeCondition() bool {
	return m.SourceID == "" && m.NodeCondition != ""
}

// Condition gates a mapping on a field comparison.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    string   `yaml:"value" json:"value"`
}

// Transform is a numeric adjustment applied to the mapped value.
type Transform struct {
	Type  TransformType `yaml:"type" json:"type"`
	Value float64       `yaml:"value" json:"value"`
}

// Diagnostic is a line-scoped parse error. Line is 1-based.
type Diagnostic struct {
	Line    int    `yaml:"line" json:"line"`
	Message string `yaml:"message" json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

// Result holds everything a single Parse call produced.
type Result struct {
	Mappings []Mapping    `yaml:"mappings" json:"mappings"`
	Errors   []Diagnostic `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// HasErrors returns true if any line failed to parse.
func (r Result) HasErrors() bool {
	return len(r.Errors) > 0
}

var numericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// IsNumeric reports whether a condition value is rendered without quotes.
func IsNumeric(s string) bool {
	return numericPattern.MatchString(s)
}

// WriteYAML writes a mapping list to a YAML file at the given path.
func WriteYAML(path string, mappings []Mapping) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(mappings)
	if err != nil {
		return fmt.Errorf("marshaling mappings: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// LoadYAML reads a mapping list from a YAML file.
func LoadYAML(path string) ([]Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	var mappings []Mapping
	if err := yaml.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("parsing mappings: %w", err)
	}
	return mappings, nil
}
