// Package codegen turns a tree-annotated map state into a Starlark program.
//
// The generated program defines transform(input), which receives the decoded
// source document and returns the target document. It relies on the ms
// module and expression helpers predeclared by the script package.
package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/mapsmith/mapsmith/internal/mapping"
	"github.com/mapsmith/mapsmith/internal/state"
	"github.com/mapsmith/mapsmith/internal/transform"
	"github.com/mapsmith/mapsmith/internal/tree"
)

// FormatJSON is the only document format the generated programs read and write.
const FormatJSON = "json"

// Generator produces Starlark programs from map states.
type Generator struct {
	State state.MapState
}

// Generate renders the program for g.State.
func (g *Generator) Generate() (string, error) {
	for _, f := range []string{g.State.SourceFormat, g.State.TargetFormat} {
		if f != "" && !strings.EqualFold(f, FormatJSON) {
			return "", fmt.Errorf("unsupported document format %q", f)
		}
	}

	tmpl, err := template.New("map").Funcs(template.FuncMap{"quote": strconv.Quote}).Parse(scriptTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	data, err := g.buildTemplateData()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// Generate is a shorthand for (&Generator{State: s}).Generate().
func Generate(s state.MapState) (string, error) {
	return (&Generator{State: s}).Generate()
}

type templateData struct {
	Name      string
	ID        string
	Constants []string
	Body      []string
}

// loopScope is one enclosing LOOP: elements of the collection at srcSegs are
// bound to variable.
type loopScope struct {
	srcSegs  []string
	variable string
}

// scope is where a node's value lands: the dict named out, at prefix below it.
type scope struct {
	indent int
	out    string
	prefix []string
	loops  []loopScope
}

type builder struct {
	state  state.MapState
	source *tree.Tree
	target *tree.Tree
	names  map[string]bool
	lines  []string
	seq    int
}

func (g *Generator) buildTemplateData() (templateData, error) {
	b := &builder{
		state:  g.State,
		source: g.State.Source,
		target: g.State.Target,
		names:  make(map[string]bool),
	}

	var consts []string
	for _, gv := range g.State.Globals {
		if !isIdent(gv.Name) || reserved[gv.Name] {
			consts = append(consts, fmt.Sprintf("# global %q skipped: not a valid identifier", gv.Name))
			continue
		}
		value := transform.FormatLiteral(gv.Value)
		if gv.Kind == tree.ValueExpr {
			value = gv.Value
		}
		consts = append(consts, gv.Name+" = "+value)
		b.names[gv.Name] = true
	}
	for _, lt := range g.State.LookupTables {
		consts = append(consts, lookupIdent(lt.Name)+" = "+dictLiteral(lt.Entries))
		def := "None"
		if lt.Default != "" {
			def = strconv.Quote(lt.Default)
		}
		consts = append(consts, lookupIdent(lt.Name)+"_default = "+def)
	}

	if root, ok := b.target.Root(); ok {
		sc := scope{indent: 1, out: "out"}
		for _, child := range b.target.Children(root.ID) {
			if err := b.node(child, sc); err != nil {
				return templateData{}, err
			}
		}
	}

	return templateData{
		Name:      g.State.Name,
		ID:        g.State.ID,
		Constants: consts,
		Body:      b.lines,
	}, nil
}

func (b *builder) emit(indent int, format string, args ...any) {
	b.lines = append(b.lines, strings.Repeat("    ", indent)+fmt.Sprintf(format, args...))
}

func (b *builder) node(n tree.Node, sc scope) error {
	if n.LoopReference != nil {
		return b.loop(n, sc)
	}

	segs := append(append([]string(nil), sc.prefix...), n.Name)
	inner := sc
	inner.prefix = segs

	if n.NodeCondition != "" {
		cond, err := transform.Expr(n.NodeCondition, b.resolver(sc.loops, nil))
		if err != nil {
			return fmt.Errorf("node %s: condition: %w", b.target.FullPath(n.ID), err)
		}
		b.emit(sc.indent, "if %s:", cond)
		inner.indent++
	}
	start := len(b.lines)

	value, err := b.value(n, inner)
	if err != nil {
		return err
	}
	if value != "" {
		b.emit(inner.indent, "ms.put(%s, %s, %s)", sc.out, listLiteral(segs), value)
	}

	for _, child := range b.target.Children(n.ID) {
		if err := b.node(child, inner); err != nil {
			return err
		}
	}

	if n.NodeCondition != "" && len(b.lines) == start {
		b.emit(inner.indent, "pass")
	}
	return nil
}

// loop repeats a node once per element of its source collection. A loop node
// with children produces a list of dicts; a childless one a list of values.
func (b *builder) loop(n tree.Node, sc scope) error {
	lr := n.LoopReference
	srcPath := b.source.FullPath(lr.SourceNodeID)
	if srcPath == "" {
		srcPath = mapping.NormalizePath(lr.SourcePath)
	}

	iter := lr.Variable
	if n.LoopIterator != "" {
		iter = n.LoopIterator
	}
	if !isIdent(iter) || reserved[iter] {
		iter = fmt.Sprintf("it_%d", b.seq)
	}

	id := b.seq
	b.seq++
	list := fmt.Sprintf("list_%d", id)
	elem := fmt.Sprintf("elem_%d", id)

	b.emit(sc.indent, "%s = []", list)
	b.emit(sc.indent, "for %s in ms.each(%s):", iter, b.pathExpr(srcPath, sc.loops))

	inner := scope{
		indent: sc.indent + 1,
		out:    elem,
		loops:  append(append([]loopScope(nil), sc.loops...), loopScope{srcSegs: mapping.Segments(srcPath), variable: iter}),
	}

	if n.NodeCondition != "" {
		cond, err := transform.Expr(n.NodeCondition, b.resolver(inner.loops, nil))
		if err != nil {
			return fmt.Errorf("node %s: condition: %w", b.target.FullPath(n.ID), err)
		}
		b.emit(inner.indent, "if not (%s):", cond)
		b.emit(inner.indent+1, "continue")
	}

	children := b.target.Children(n.ID)
	if len(children) == 0 {
		value, err := b.value(n, inner)
		if err != nil {
			return err
		}
		if value == "" {
			value = iter
		}
		b.emit(inner.indent, "%s.append(%s)", list, value)
	} else {
		b.emit(inner.indent, "%s = {}", elem)
		for _, child := range children {
			if err := b.node(child, inner); err != nil {
				return err
			}
		}
		b.emit(inner.indent, "%s.append(%s)", list, elem)
	}

	b.emit(sc.indent, "ms.put(%s, %s, %s)", sc.out, listLiteral(append(append([]string(nil), sc.prefix...), n.Name)), list)
	return nil
}

// value returns the Starlark expression producing a node's value, or "" if
// the node has none. With several references the last non-None one wins.
func (b *builder) value(n tree.Node, sc scope) (string, error) {
	if len(n.SourceReferences) == 0 {
		if n.Value == "" {
			return "", nil
		}
		if n.IsExpression() {
			return b.expr(n, n.Value, sc.loops, nil)
		}
		return transform.FormatLiteral(n.Value), nil
	}

	if n.IsExpression() && n.Value != "" {
		bound := make(map[string]bool)
		for _, ref := range n.SourceReferences {
			if !isIdent(ref.Variable) || reserved[ref.Variable] {
				return "", fmt.Errorf("node %s: variable %q is not a valid identifier", b.target.FullPath(n.ID), ref.Variable)
			}
			expr, err := b.refExpr(n, ref, sc.loops)
			if err != nil {
				return "", err
			}
			b.emit(sc.indent, "%s = %s", ref.Variable, expr)
			bound[ref.Variable] = true
		}
		return b.expr(n, n.Value, sc.loops, bound)
	}

	exprs := make([]string, 0, len(n.SourceReferences))
	for _, ref := range n.SourceReferences {
		expr, err := b.refExpr(n, ref, sc.loops)
		if err != nil {
			return "", err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return "ms.coalesce(" + strings.Join(reversed(exprs), ", ") + ")", nil
}

func (b *builder) refExpr(n tree.Node, ref tree.SourceReference, loops []loopScope) (string, error) {
	var expr, srcPath string

	if table, src, ok := tree.ParseLookupPath(ref.CustomPath); ok {
		if _, found := b.state.Lookup(table); !found {
			return "", fmt.Errorf("target %s: lookup table %q is not defined", b.target.FullPath(n.ID), table)
		}
		srcPath = mapping.NormalizePath(src)
		id := lookupIdent(table)
		expr = fmt.Sprintf("%s.get(ms.text(%s), %s_default)", id, b.pathExpr(srcPath, loops), id)
	} else if p := b.source.FullPath(ref.SourceNodeID); p != "" {
		srcPath = p
		expr = b.pathExpr(p, loops)
	} else if ref.Text {
		expr = strconv.Quote(mapping.StripRoot(ref.CustomPath))
	} else {
		var err error
		if expr, err = b.expr(n, mapping.StripRoot(ref.CustomPath), loops, nil); err != nil {
			return "", err
		}
	}

	if t := ref.Transform; t != nil {
		expr = fmt.Sprintf("ms.apply(%s, %q, %s)", expr, string(t.Type), transform.FormatNumber(t.Value))
	}
	if c := ref.Condition; c != nil {
		field := b.pathExpr(conditionField(srcPath, c.Field), loops)
		expr = fmt.Sprintf("(%s if ms.cmp(%s, %q, %s) else None)", expr, field, string(c.Operator), strconv.Quote(c.Value))
	}
	if ref.Text && srcPath != "" {
		expr = "ms.text(" + expr + ")"
	}
	return expr, nil
}

func (b *builder) expr(n tree.Node, src string, loops []loopScope, bound map[string]bool) (string, error) {
	out, err := transform.Expr(src, b.resolver(loops, bound))
	if err != nil {
		return "", fmt.Errorf("node %s: expression: %w", b.target.FullPath(n.ID), err)
	}
	return out, nil
}

// resolver maps identifier paths in user expressions to reads from the
// innermost matching loop element, a bound name, or the input document.
func (b *builder) resolver(loops []loopScope, bound map[string]bool) transform.Resolver {
	return func(path string) string {
		segs := strings.Split(path, ".")
		if len(segs) == 1 && (bound[path] || b.names[path] || reserved[path]) {
			return path
		}
		for i := len(loops) - 1; i >= 0; i-- {
			if segs[0] == loops[i].variable {
				return readExpr(loops[i].variable, segs[1:])
			}
		}
		if segs[0] == mapping.RootSegment {
			segs = segs[1:]
		}
		return b.pathExpr(mapping.NormalizePath(strings.Join(segs, ".")), loops)
	}
}

// pathExpr reads a source path, relative to the innermost loop whose
// collection contains it.
func (b *builder) pathExpr(path string, loops []loopScope) string {
	segs := mapping.Segments(path)
	for i := len(loops) - 1; i >= 0; i-- {
		l := loops[i]
		if len(segs) > 0 && segs[0] == l.variable {
			return readExpr(l.variable, segs[1:])
		}
		if hasPrefix(segs, l.srcSegs) {
			return readExpr(l.variable, segs[len(l.srcSegs):])
		}
	}
	return readExpr("input", segs)
}

func readExpr(base string, segs []string) string {
	if len(segs) == 0 {
		return base
	}
	return fmt.Sprintf("ms.get(%s, %s)", base, listLiteral(segs))
}

// conditionField places a WHERE field next to the value it filters: a bare
// field name is read from the object holding the source value.
func conditionField(srcPath, field string) string {
	segs := mapping.Segments(srcPath)
	if len(segs) <= 1 {
		return mapping.NormalizePath(field)
	}
	return mapping.NormalizePath(strings.Join(segs[:len(segs)-1], ".") + "." + field)
}

func hasPrefix(segs, prefix []string) bool {
	if len(prefix) == 0 || len(segs) < len(prefix) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}

func listLiteral(segs []string) string {
	quoted := make([]string, len(segs))
	for i, s := range segs {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func dictLiteral(entries map[string]string) string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = strconv.Quote(k) + ": " + strconv.Quote(entries[k])
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func lookupIdent(name string) string {
	var sb strings.Builder
	sb.WriteString("lookup_")
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// reserved names are bound by the runtime or the generated program itself.
var reserved = map[string]bool{
	"ms": true, "input": true, "out": true, "json": true,
	"upper": true, "lower": true, "trim": true, "concat": true,
	"True": true, "False": true, "None": true,
}

func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !letter {
			return false
		}
		if !letter && (r < '0' || r > '9') {
			return false
		}
	}
	return !starlarkKeywords[name]
}

var starlarkKeywords = map[string]bool{
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true,
	"load": true, "not": true, "or": true, "pass": true, "return": true, "while": true,
}

var scriptTemplate = `# Generated by mapsmith from map {{ quote .Name }}{{ if .ID }} ({{ .ID }}){{ end }}.
# Entry point: transform(input) returns the target document.
{{- range .Constants }}
{{ . }}
{{- end }}

def transform(input):
    out = {}
{{- range .Body }}
{{ . }}
{{- end }}
    return out
`
