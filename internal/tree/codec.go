package tree

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// wireNode is the nested form trees take in JSON and YAML documents.
type wireNode struct {
	Node     `yaml:",inline"`
	Children []wireNode `yaml:"children,omitempty" json:"children,omitempty"`
}

func (t *Tree) toWire() *wireNode {
	if t.Len() == 0 {
		return nil
	}
	wires := make([]wireNode, len(t.nodes))
	// Children always have higher indices than their parent, so filling
	// from the back completes every subtree before it is copied upward.
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		w := wireNode{Node: n}
		w.Node.parent, w.Node.children = 0, nil
		for _, c := range n.children {
			w.Children = append(w.Children, wires[c])
		}
		wires[i] = w
	}
	return &wires[0]
}

func fromWire(root wireNode) (*Tree, error) {
	type item struct {
		parentID string
		node     wireNode
	}

	rootNode := root.Node
	if rootNode.ID == "" {
		rootNode.ID = "root"
	}
	t := New(rootNode)

	var queue []item
	for _, c := range root.Children {
		queue = append(queue, item{rootNode.ID, c})
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		n := it.node.Node
		if n.ID == "" {
			n.ID = t.FullPath(it.parentID) + "." + n.Name
		}
		if err := t.Add(it.parentID, n); err != nil {
			return nil, err
		}
		for _, c := range it.node.Children {
			queue = append(queue, item{n.ID, c})
		}
	}
	return t, nil
}

// MarshalJSON encodes the tree as nested nodes.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toWire())
}

// UnmarshalJSON decodes nested nodes. Nodes without an id get their full path as id.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var w *wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding tree: %w", err)
	}
	if w == nil {
		*t = Tree{}
		return nil
	}
	built, err := fromWire(*w)
	if err != nil {
		return fmt.Errorf("building tree: %w", err)
	}
	*t = *built
	return nil
}

// MarshalYAML encodes the tree as nested nodes.
func (t *Tree) MarshalYAML() (interface{}, error) {
	return t.toWire(), nil
}

// UnmarshalYAML decodes nested nodes.
func (t *Tree) UnmarshalYAML(value *yaml.Node) error {
	var w wireNode
	if err := value.Decode(&w); err != nil {
		return fmt.Errorf("decoding tree: %w", err)
	}
	built, err := fromWire(w)
	if err != nil {
		return fmt.Errorf("building tree: %w", err)
	}
	*t = *built
	return nil
}
