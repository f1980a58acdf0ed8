// Package tree holds the hierarchical documents a mapping state annotates.
//
// A Tree is an arena: nodes live in one slice and refer to their parent and
// children by index, and an id index gives constant-time lookup. Trees handed
// out by this package are treated as values; Update and UpdateAll return a
// modified copy and leave the receiver untouched.
package tree

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mapsmith/mapsmith/internal/mapping"
)

// ValueKind says whether a node's value is literal text or an expression.
type ValueKind string

const (
	ValueLiteral ValueKind = "literal"
	ValueExpr    ValueKind = "expr"
)

// LoopReference marks a target node as repeated once per element of a source collection.
type LoopReference struct {
	ID           string `yaml:"id" json:"id"`
	SourceNodeID string `yaml:"source_node_id,omitempty" json:"sourceNodeId,omitempty"`
	// SourcePath is kept for collections that have no node in the source tree.
	SourcePath string `yaml:"source_path,omitempty" json:"sourcePath,omitempty"`
	Variable   string `yaml:"variable" json:"variable"`
}

// SourceReference binds a source value to a variable usable by the target node.
type SourceReference struct {
	ID           string             `yaml:"id" json:"id"`
	SourceNodeID string             `yaml:"source_node_id,omitempty" json:"sourceNodeId,omitempty"`
	CustomPath   string             `yaml:"custom_path,omitempty" json:"customPath,omitempty"`
	Variable     string             `yaml:"variable" json:"variable"`
	Text         bool               `yaml:"text,omitempty" json:"text,omitempty"`
	LoopScopeID  string             `yaml:"loop_scope_id,omitempty" json:"loopScopeId,omitempty"`
	Condition    *mapping.Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Transform    *mapping.Transform `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Node is one element of a document tree.
type Node struct {
	ID               string            `yaml:"id" json:"id"`
	Name             string            `yaml:"name" json:"name"`
	Type             string            `yaml:"type,omitempty" json:"type,omitempty"`
	Value            string            `yaml:"value,omitempty" json:"value,omitempty"`
	ValueKind        ValueKind         `yaml:"value_kind,omitempty" json:"valueKind,omitempty"`
	LoopIterator     string            `yaml:"loop_iterator,omitempty" json:"loopIterator,omitempty"`
	LoopReference    *LoopReference    `yaml:"loop_reference,omitempty" json:"loopReference,omitempty"`
	NodeCondition    string            `yaml:"node_condition,omitempty" json:"nodeCondition,omitempty"`
	SourceReferences []SourceReference `yaml:"source_references,omitempty" json:"sourceReferences,omitempty"`

	parent   int
	children []int
}

// IsExpression reports whether the node's value is an expression rather than literal text.
func (n Node) IsExpression() bool {
	return n.ValueKind == ValueExpr
}

// Tree is an arena-backed document tree. The zero value is an empty tree.
type Tree struct {
	nodes []Node
	index map[string]int

	pathsOnce *sync.Once
	paths     map[string]int
}

// New creates a tree holding only the given root node.
func New(root Node) *Tree {
	root.parent = -1
	root.children = nil
	t := &Tree{
		nodes: []Node{root},
		index: map[string]int{root.ID: 0},
	}
	t.invalidate()
	return t
}

// Add appends n as the last child of parentID. It is meant for building
// trees; once a tree is shared, use Update.
func (t *Tree) Add(parentID string, n Node) error {
	p, ok := t.index[parentID]
	if !ok {
		return fmt.Errorf("parent node %q not found", parentID)
	}
	if n.ID == "" {
		return fmt.Errorf("node %q has no id", n.Name)
	}
	if _, dup := t.index[n.ID]; dup {
		return fmt.Errorf("duplicate node id %q", n.ID)
	}
	n.parent = p
	n.children = nil
	t.nodes = append(t.nodes, n)
	idx := len(t.nodes) - 1
	t.nodes[p].children = append(t.nodes[p].children, idx)
	t.index[n.ID] = idx
	t.invalidate()
	return nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Root returns the root node.
func (t *Tree) Root() (Node, bool) {
	if t.Len() == 0 {
		return Node{}, false
	}
	return t.nodes[0], true
}

// FindNodeByID returns the node with the given id.
func (t *Tree) FindNodeByID(id string) (Node, bool) {
	if t.Len() == 0 {
		return Node{}, false
	}
	idx, ok := t.index[id]
	if !ok {
		return Node{}, false
	}
	return t.nodes[idx], true
}

// FindNodeByPath returns the first node, in depth-first pre-order, whose full
// path equals path. The path may omit the root segment.
func (t *Tree) FindNodeByPath(path string) (Node, bool) {
	if t.Len() == 0 || path == "" {
		return Node{}, false
	}
	t.pathsOnce.Do(t.buildPaths)
	idx, ok := t.paths[mapping.NormalizePath(path)]
	if !ok {
		return Node{}, false
	}
	return t.nodes[idx], true
}

// FullPath returns the dotted path of the node with the given id, always
// starting with the root segment. Unknown ids yield "".
func (t *Tree) FullPath(id string) string {
	if t.Len() == 0 {
		return ""
	}
	idx, ok := t.index[id]
	if !ok {
		return ""
	}
	var names []string
	for i := idx; i > 0; i = t.nodes[i].parent {
		names = append(names, t.nodes[i].Name)
	}
	var b strings.Builder
	b.WriteString(mapping.RootSegment)
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('.')
		b.WriteString(names[i])
	}
	return b.String()
}

// Parent returns the parent of the node with the given id.
func (t *Tree) Parent(id string) (Node, bool) {
	if t.Len() == 0 {
		return Node{}, false
	}
	idx, ok := t.index[id]
	if !ok || t.nodes[idx].parent < 0 {
		return Node{}, false
	}
	return t.nodes[t.nodes[idx].parent], true
}

// Children returns the direct children of the node with the given id, in order.
func (t *Tree) Children(id string) []Node {
	if t.Len() == 0 {
		return nil
	}
	idx, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(t.nodes[idx].children))
	for _, c := range t.nodes[idx].children {
		out = append(out, t.nodes[c])
	}
	return out
}

// Walk visits every node in depth-first pre-order. The root has depth 0.
func (t *Tree) Walk(fn func(n Node, depth int)) {
	if t.Len() == 0 {
		return
	}
	type frame struct{ idx, depth int }
	stack := []frame{{0, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(t.nodes[f.idx], f.depth)
		kids := t.nodes[f.idx].children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], f.depth + 1})
		}
	}
}

// Clone returns a deep copy that shares no mutable state with t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	c := &Tree{
		nodes: make([]Node, len(t.nodes)),
		index: make(map[string]int, len(t.index)),
	}
	for i, n := range t.nodes {
		c.nodes[i] = n.clone()
	}
	for id, idx := range t.index {
		c.index[id] = idx
	}
	c.invalidate()
	return c
}

// Update returns a copy of t in which fn has been applied to the node with
// the given id. The second result is false if no such node exists.
func (t *Tree) Update(id string, fn func(n *Node)) (*Tree, bool) {
	if t.Len() == 0 {
		return t, false
	}
	if _, ok := t.index[id]; !ok {
		return t, false
	}
	c := t.Clone()
	c.Mutate(id, fn)
	return c, true
}

// UpdateAll returns a copy of t with fn applied to every node.
func (t *Tree) UpdateAll(fn func(n *Node)) *Tree {
	c := t.Clone()
	if c == nil {
		return nil
	}
	for i := range c.nodes {
		c.apply(i, fn)
	}
	c.invalidate()
	return c
}

// Mutate applies fn to the node in place. Only call it on a tree you own,
// such as a fresh Clone.
func (t *Tree) Mutate(id string, fn func(n *Node)) bool {
	if t.Len() == 0 {
		return false
	}
	idx, ok := t.index[id]
	if !ok {
		return false
	}
	t.apply(idx, fn)
	t.invalidate()
	return true
}

// apply runs fn on a node without letting it rewire the tree structure.
func (t *Tree) apply(idx int, fn func(n *Node)) {
	n := &t.nodes[idx]
	id, parent, children := n.ID, n.parent, n.children
	fn(n)
	n.ID, n.parent, n.children = id, parent, children
}

func (t *Tree) invalidate() {
	t.pathsOnce = &sync.Once{}
	t.paths = nil
}

func (t *Tree) buildPaths() {
	paths := make(map[string]int, len(t.nodes))
	t.Walk(func(n Node, _ int) {
		p := t.FullPath(n.ID)
		if _, seen := paths[p]; !seen {
			paths[p] = t.index[n.ID]
		}
	})
	t.paths = paths
}

func (n Node) clone() Node {
	c := n
	if n.children != nil {
		c.children = append([]int(nil), n.children...)
	}
	if n.LoopReference != nil {
		lr := *n.LoopReference
		c.LoopReference = &lr
	}
	if n.SourceReferences != nil {
		c.SourceReferences = make([]SourceReference, len(n.SourceReferences))
		for i, r := range n.SourceReferences {
			c.SourceReferences[i] = r.clone()
		}
	}
	return c
}

func (r SourceReference) clone() SourceReference {
	c := r
	if r.Condition != nil {
		cond := *r.Condition
		c.Condition = &cond
	}
	if r.Transform != nil {
		tr := *r.Transform
		c.Transform = &tr
	}
	return c
}
