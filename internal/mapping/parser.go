package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Clause keywords in the only order the grammar accepts them:
//
//	<source> -> <target> [LOOP <name>] [UNDER <name>] [WHERE <condition>]
//	    [THEN <transform>] [LOOKUP <table>] [AS LITERAL|EXPR] [IF <condition-text>]
const (
	kwLoop   = "LOOP"
	kwUnder  = "UNDER"
	kwWhere  = "WHERE"
	kwThen   = "THEN"
	kwLookup = "LOOKUP"
	kwAs     = "AS"
	kwIf     = "IF"
)

var clauseOrder = map[string]int{
	kwLoop:   0,
	kwUnder:  1,
	kwWhere:  2,
	kwThen:   3,
	kwLookup: 4,
	kwAs:     5,
	kwIf:     6,
}

// clause identifies which part of a line failed, for the diagnostic message.
type clause string

const (
	clauseSyntax clause = "syntax"
	clauseWhere  clause = "WHERE clause"
	clauseThen   clause = "THEN clause"
)

type lineError struct {
	clause clause
	detail string
}

func (e *lineError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.clause, e.detail)
}

func syntaxErr(format string, args ...any) error {
	return &lineError{clause: clauseSyntax, detail: fmt.Sprintf(format, args...)}
}

var transformPattern = regexp.MustCompile(`^([+\-*/])(\d+(?:\.\d+)?)(%)?$`)

// Parse turns DSL text into mappings. Every line is parsed on its own: a
// malformed line yields exactly one diagnostic and no mapping, and never
// stops the lines after it.
func Parse(text string) Result {
	res := Result{Mappings: []Mapping{}}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		m, err := parseLine(line)
		if err != nil {
			res.Errors = append(res.Errors, Diagnostic{Line: lineNo, Message: err.Error()})
			continue
		}
		m.ID = fmt.Sprintf("dsl-%d", lineNo)
		res.Mappings = append(res.Mappings, m)
	}

	return res
}

func parseLine(line string) (Mapping, error) {
	arrow := findArrow(line)
	if arrow < 0 {
		return parseNodeCondition(line)
	}

	source := strings.TrimSpace(line[:arrow])
	if source == "" {
		return Mapping{}, syntaxErr("missing source before \"->\"")
	}

	sc := newScanner(line[arrow+2:])
	target, err := sc.next()
	if err != nil {
		return Mapping{}, syntaxErr("%v", err)
	}
	if target.kind != tokWord || isKeyword(target.text) {
		return Mapping{}, syntaxErr("missing target path after \"->\"")
	}

	m := Mapping{TargetID: NormalizePath(target.text)}
	if err := parseClauses(sc, &m); err != nil {
		return Mapping{}, err
	}

	if m.LoopName != "" && strings.HasSuffix(source, WildcardSuffix) {
		m.IsLoopDeclaration = true
		source = strings.TrimSuffix(source, WildcardSuffix)
	}
	m.SourceID = NormalizePath(source)

	return m, nil
}

// parseNodeCondition handles arrow-less lines, which must read "<target> IF <condition>".
func parseNodeCondition(line string) (Mapping, error) {
	sc := newScanner(line)
	target, err := sc.next()
	if err != nil || target.kind != tokWord || isKeyword(target.text) {
		return Mapping{}, syntaxErr("expected \"<source> -> <target>\" or \"<target> IF <condition>\"")
	}
	kw, err := sc.next()
	if err != nil || kw.kind != tokWord || kw.text != kwIf {
		return Mapping{}, syntaxErr("expected \"<source> -> <target>\" or \"<target> IF <condition>\"")
	}
	cond := sc.rest()
	if cond == "" {
		return Mapping{}, syntaxErr("IF requires a condition")
	}
	return Mapping{TargetID: NormalizePath(target.text), NodeCondition: cond}, nil
}

func parseClauses(sc *scanner, m *Mapping) error {
	next := 0
	for {
		tok, err := sc.next()
		if err != nil {
			return syntaxErr("%v", err)
		}
		if tok.kind == tokEOF {
			return nil
		}

		order, ok := clauseOrder[tok.text]
		if tok.kind != tokWord || !ok {
			return syntaxErr("unexpected %q", tok.text)
		}
		if order < next {
			return syntaxErr("%s clause out of order or repeated", tok.text)
		}
		next = order + 1

		switch tok.text {
		case kwLoop:
			if m.LoopName, err = parseName(sc, kwLoop); err != nil {
				return err
			}
		case kwUnder:
			if m.UnderLoop, err = parseName(sc, kwUnder); err != nil {
				return err
			}
		case kwWhere:
			if m.Condition, err = parseWhere(sc); err != nil {
				return err
			}
		case kwThen:
			if m.Transform, err = parseThen(sc); err != nil {
				return err
			}
		case kwLookup:
			if m.LookupTable, err = parseName(sc, kwLookup); err != nil {
				return err
			}
		case kwAs:
			arg, err := sc.next()
			if err != nil {
				return syntaxErr("%v", err)
			}
			switch arg.text {
			case "LITERAL":
				m.ValueType = ValueLiteral
			case "EXPR":
				m.ValueType = ValueExpr
			default:
				return syntaxErr("AS must be followed by LITERAL or EXPR")
			}
		case kwIf:
			cond := sc.rest()
			if cond == "" {
				return syntaxErr("IF requires a condition")
			}
			m.NodeCondition = cond
			return nil
		}
	}
}

func parseName(sc *scanner, keyword string) (string, error) {
	tok, err := sc.next()
	if err != nil {
		return "", syntaxErr("%v", err)
	}
	if tok.kind != tokWord || isKeyword(tok.text) {
		return "", syntaxErr("%s requires a name", keyword)
	}
	return tok.text, nil
}

// parseWhere reads "<field> <operator> <value>" up to the next clause keyword.
// A double-quoted value loses its quotes; anything else is kept verbatim.
func parseWhere(sc *scanner) (*Condition, error) {
	var toks []token
	for {
		tok, err := sc.peek()
		if err != nil {
			return nil, &lineError{clause: clauseWhere, detail: err.Error()}
		}
		if tok.kind == tokEOF || (tok.kind == tokWord && clauseOrder[tok.text] > clauseOrder[kwWhere]) {
			break
		}
		if _, err := sc.next(); err != nil {
			return nil, &lineError{clause: clauseWhere, detail: err.Error()}
		}
		toks = append(toks, tok)
	}

	if len(toks) < 3 {
		return nil, &lineError{clause: clauseWhere, detail: "expected \"<field> <operator> <value>\""}
	}
	if toks[0].kind != tokWord {
		return nil, &lineError{clause: clauseWhere, detail: fmt.Sprintf("invalid field %s", toks[0].text)}
	}
	op := Operator(toks[1].text)
	if toks[1].kind != tokWord || !op.IsValid() {
		return nil, &lineError{clause: clauseWhere, detail: fmt.Sprintf("unknown operator %q", toks[1].text)}
	}

	value := sc.src[toks[2].start:toks[len(toks)-1].end]
	if len(toks) == 3 && toks[2].kind == tokString {
		value = Unquote(toks[2].text)
	}

	return &Condition{Field: toks[0].text, Operator: op, Value: value}, nil
}

// parseThen reads a sign immediately followed by a number, with an optional
// trailing "%" that is only legal after "+" or "-".
func parseThen(sc *scanner) (*Transform, error) {
	tok, err := sc.next()
	if err != nil {
		return nil, &lineError{clause: clauseThen, detail: err.Error()}
	}
	if tok.kind != tokWord || isKeyword(tok.text) {
		return nil, &lineError{clause: clauseThen, detail: "missing transform"}
	}

	parts := transformPattern.FindStringSubmatch(tok.text)
	if parts == nil {
		return nil, &lineError{clause: clauseThen, detail: fmt.Sprintf("malformed transform %q", tok.text)}
	}
	value, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, &lineError{clause: clauseThen, detail: fmt.Sprintf("malformed number %q", parts[2])}
	}

	percent := parts[3] == "%"
	var typ TransformType
	switch parts[1] {
	case "+":
		typ = TransformAdd
		if percent {
			typ = TransformAddPercent
		}
	case "-":
		typ = TransformSubtract
		if percent {
			typ = TransformSubtractPercent
		}
	case "*":
		typ = TransformMultiply
	case "/":
		typ = TransformDivide
	}
	if percent && (parts[1] == "*" || parts[1] == "/") {
		return nil, &lineError{clause: clauseThen, detail: fmt.Sprintf("%% cannot follow %q", parts[1])}
	}

	return &Transform{Type: typ, Value: value}, nil
}

func isKeyword(s string) bool {
	_, ok := clauseOrder[s]
	return ok
}
