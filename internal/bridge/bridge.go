// Package bridge keeps DSL text and tree-annotated map state consistent.
//
// StateToDSL renders the annotations on a target tree as DSL lines, and
// ApplyDSL replaces those annotations with the ones a DSL document
// describes. Both are pure: the input state is never modified.
package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mapsmith/mapsmith/internal/mapping"
	"github.com/mapsmith/mapsmith/internal/state"
	"github.com/mapsmith/mapsmith/internal/tree"
)

// Result is the outcome of ApplyDSL. When Errors is non-empty, State is the
// input state, unchanged.
type Result struct {
	State    state.MapState       `json:"state"`
	Errors   []mapping.Diagnostic `json:"errors,omitempty"`
	Warnings []mapping.Diagnostic `json:"warnings,omitempty"`
}

// newID generates reference identifiers.
var newID = uuid.NewString

// StateToDSL renders a map state as DSL text: a header naming the map, one
// comment per global, then the target tree's annotations in pre-order.
func StateToDSL(s state.MapState) string {
	lines := []string{"# Map: " + s.Name}
	for _, g := range s.Globals {
		lines = append(lines, fmt.Sprintf("# Global: %s = %s", g.Name, g.Value))
	}

	loopVars := loopVariables(s.Target)
	s.Target.Walk(func(n tree.Node, _ int) {
		path := s.Target.FullPath(n.ID)

		if n.NodeCondition != "" {
			lines = append(lines, mapping.GenerateLine(mapping.Mapping{TargetID: path, NodeCondition: n.NodeCondition}))
		}

		if lr := n.LoopReference; lr != nil {
			if src := loopSourcePath(s.Source, lr); src != "" {
				lines = append(lines, mapping.GenerateLine(mapping.Mapping{
					SourceID:          src,
					TargetID:          path,
					IsLoopDeclaration: true,
					LoopName:          iteratorName(n),
				}))
			}
		}

		for _, sr := range n.SourceReferences {
			if m, ok := referenceMapping(s.Source, n, path, sr, loopVars); ok {
				lines = append(lines, mapping.GenerateLine(m))
			}
		}

		if len(n.SourceReferences) == 0 && n.Value != "" {
			lines = append(lines, mapping.GenerateLine(valueMapping(n, path)))
		}
	})

	return strings.Join(lines, "\n")
}

func loopVariables(target *tree.Tree) map[string]string {
	vars := make(map[string]string)
	target.Walk(func(n tree.Node, _ int) {
		if n.LoopReference != nil {
			vars[n.LoopReference.ID] = iteratorName(n)
		}
	})
	return vars
}

func iteratorName(n tree.Node) string {
	if n.LoopIterator != "" {
		return n.LoopIterator
	}
	return n.LoopReference.Variable
}

func loopSourcePath(source *tree.Tree, lr *tree.LoopReference) string {
	if p := source.FullPath(lr.SourceNodeID); p != "" {
		return p
	}
	if lr.SourcePath != "" {
		return mapping.NormalizePath(lr.SourcePath)
	}
	return ""
}

func referenceMapping(source *tree.Tree, n tree.Node, path string, sr tree.SourceReference, loopVars map[string]string) (mapping.Mapping, bool) {
	m := mapping.Mapping{
		TargetID:  path,
		Condition: sr.Condition,
		Transform: sr.Transform,
	}

	if p := source.FullPath(sr.SourceNodeID); p != "" {
		m.SourceID = p
	} else if table, src, ok := tree.ParseLookupPath(sr.CustomPath); ok {
		m.SourceID = mapping.NormalizePath(src)
		m.LookupTable = table
	} else if sr.CustomPath != "" {
		m.SourceID = mapping.NormalizePath(sr.CustomPath)
	} else {
		return mapping.Mapping{}, false
	}

	if sr.LoopScopeID != "" {
		if v, ok := loopVars[sr.LoopScopeID]; ok {
			m.UnderLoop = v
		}
	}

	switch {
	case n.IsExpression():
		m.ValueType = mapping.ValueExpr
	case sr.Text:
		m.ValueType = mapping.ValueLiteral
	}

	return m, true
}

// valueMapping renders a node's own value when nothing is mapped onto it.
func valueMapping(n tree.Node, path string) mapping.Mapping {
	if n.IsExpression() {
		return mapping.Mapping{SourceID: mapping.NormalizePath(n.Value), TargetID: path, ValueType: mapping.ValueExpr}
	}
	return mapping.Mapping{SourceID: mapping.NormalizePath(mapping.Quote(n.Value)), TargetID: path, ValueType: mapping.ValueLiteral}
}

// ApplyDSL parses text and rebuilds the target tree's annotations from it.
// Any diagnostic aborts the whole apply. Mappings whose target path matches
// no node are dropped and reported as warnings.
func ApplyDSL(text string, s state.MapState) Result {
	parsed := mapping.Parse(text)
	if parsed.HasErrors() {
		return Result{State: s, Errors: parsed.Errors}
	}

	a := &applier{
		source: s.Source,
		target: s.Target.UpdateAll(func(n *tree.Node) {
			n.SourceReferences = nil
			n.LoopReference = nil
			n.NodeCondition = ""
		}),
		loops:     make(map[string][]*loopInfo),
		byMapping: make(map[string]*loopInfo),
		byTarget:  make(map[string]*loopInfo),
	}

	// Loops are declared up front so UNDER may name a loop declared further down.
	for _, m := range parsed.Mappings {
		if m.IsLoopDeclaration {
			a.declare(m)
		}
	}
	for _, m := range parsed.Mappings {
		a.apply(m)
	}

	return Result{State: s.WithTarget(a.target), Warnings: a.warnings}
}

type loopInfo struct {
	id           string
	variable     string
	mappingID    string
	targetID     string
	sourceNodeID string
	sourcePath   string
}

type applier struct {
	source *tree.Tree
	target *tree.Tree
	// loops holds every declaration of an iterator name in document order.
	// byMapping and byTarget index the same declarations.
	loops     map[string][]*loopInfo
	byMapping map[string]*loopInfo
	byTarget  map[string]*loopInfo
	warnings  []mapping.Diagnostic
}

func (a *applier) warn(m mapping.Mapping, format string, args ...any) {
	a.warnings = append(a.warnings, mapping.Diagnostic{Line: lineOf(m.ID), Message: fmt.Sprintf(format, args...)})
}

func (a *applier) declare(m mapping.Mapping) {
	tn, ok := a.target.FindNodeByPath(m.TargetID)
	if !ok {
		return
	}
	if prev, dup := a.byTarget[tn.ID]; dup {
		a.warn(m, "%q already has loop %q from line %d; declaration ignored",
			mapping.StripRoot(m.TargetID), prev.variable, lineOf(prev.mappingID))
		return
	}
	info := &loopInfo{
		id:         newID(),
		variable:   m.LoopName,
		mappingID:  m.ID,
		targetID:   tn.ID,
		sourcePath: m.SourceID,
	}
	if sn, ok := a.source.FindNodeByPath(m.SourceID); ok {
		info.sourceNodeID = sn.ID
	}
	a.loops[m.LoopName] = append(a.loops[m.LoopName], info)
	a.byMapping[m.ID] = info
	a.byTarget[tn.ID] = info
}

// resolveLoop picks the declaration an UNDER clause on target node tn refers
// to: the one declared on tn or its nearest ancestor, else the first one
// declared under that name.
func (a *applier) resolveLoop(m mapping.Mapping, tn tree.Node) *loopInfo {
	decls := a.loops[m.UnderLoop]
	switch len(decls) {
	case 0:
		a.warn(m, "UNDER %q names no declared loop", m.UnderLoop)
		return nil
	case 1:
		return decls[0]
	}

	for id := tn.ID; id != ""; {
		for _, d := range decls {
			if d.targetID == id {
				return d
			}
		}
		parent, ok := a.target.Parent(id)
		if !ok {
			break
		}
		id = parent.ID
	}
	a.warn(m, "UNDER %q is ambiguous (%d loops, none enclosing %q); using line %d",
		m.UnderLoop, len(decls), mapping.StripRoot(m.TargetID), lineOf(decls[0].mappingID))
	return decls[0]
}

func (a *applier) apply(m mapping.Mapping) {
	tn, ok := a.target.FindNodeByPath(m.TargetID)
	if !ok {
		a.warn(m, "target %q matches no node; mapping dropped", mapping.StripRoot(m.TargetID))
		return
	}

	switch {
	case m.IsNodeCondition():
		a.target.Mutate(tn.ID, func(n *tree.Node) { n.NodeCondition = m.NodeCondition })
	case m.IsLoopDeclaration:
		a.applyLoop(m, tn)
	default:
		a.applyReference(m, tn)
	}
}

func (a *applier) applyLoop(m mapping.Mapping, tn tree.Node) {
	info, ok := a.byMapping[m.ID]
	if !ok {
		return
	}
	ref := &tree.LoopReference{ID: info.id, SourceNodeID: info.sourceNodeID, Variable: m.LoopName}
	if info.sourceNodeID == "" {
		ref.SourcePath = info.sourcePath
	}
	a.target.Mutate(tn.ID, func(n *tree.Node) {
		n.LoopReference = ref
		n.LoopIterator = m.LoopName
		if m.NodeCondition != "" {
			n.NodeCondition = m.NodeCondition
		}
	})
}

func (a *applier) applyReference(m mapping.Mapping, tn tree.Node) {
	// A quoted literal is the node's own value, not a reference to anything.
	raw := mapping.StripRoot(m.SourceID)
	if m.ValueType == mapping.ValueLiteral && m.LookupTable == "" && isQuoted(raw) {
		a.target.Mutate(tn.ID, func(n *tree.Node) {
			n.Value = mapping.Unquote(raw)
			n.ValueKind = tree.ValueLiteral
			if m.NodeCondition != "" {
				n.NodeCondition = m.NodeCondition
			}
		})
		return
	}

	ref := tree.SourceReference{
		ID:        newID(),
		Text:      m.ValueType == mapping.ValueLiteral,
		Condition: m.Condition,
		Transform: m.Transform,
	}

	var loop *loopInfo
	if m.UnderLoop != "" {
		if loop = a.resolveLoop(m, tn); loop != nil {
			ref.LoopScopeID = loop.id
		}
	}

	sourcePath := m.SourceID
	if sn, ok := a.resolveSource(m.SourceID, loop); ok {
		ref.SourceNodeID = sn.ID
		ref.Variable = sn.Name
		sourcePath = a.source.FullPath(sn.ID)
	} else {
		ref.CustomPath = m.SourceID
		ref.Variable = tn.Name
	}

	if m.LookupTable != "" {
		ref.SourceNodeID = ""
		ref.CustomPath = tree.LookupPath(m.LookupTable, sourcePath)
	}

	a.target.Mutate(tn.ID, func(n *tree.Node) {
		n.SourceReferences = append(n.SourceReferences, ref)
		switch m.ValueType {
		case mapping.ValueExpr:
			n.ValueKind = tree.ValueExpr
		case mapping.ValueLiteral:
			n.ValueKind = tree.ValueLiteral
		}
		if m.NodeCondition != "" {
			n.NodeCondition = m.NodeCondition
		}
	})
}

// resolveSource finds the source node for a mapping. Paths written relative
// to a loop iterator ("item.price") are first tried against the loop's
// source collection.
func (a *applier) resolveSource(path string, loop *loopInfo) (tree.Node, bool) {
	if loop != nil {
		segs := mapping.Segments(path)
		if len(segs) > 1 && segs[0] == loop.variable {
			base := loop.sourcePath
			if loop.sourceNodeID != "" {
				base = a.source.FullPath(loop.sourceNodeID)
			}
			if n, ok := a.source.FindNodeByPath(base + "." + strings.Join(segs[1:], ".")); ok {
				return n, true
			}
		}
	}
	return a.source.FindNodeByPath(path)
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

func lineOf(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "dsl-"))
	if err != nil {
		return 0
	}
	return n
}
