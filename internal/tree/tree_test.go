package tree

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func buildOrderTree(t *testing.T) *Tree {
	t.Helper()
	tr := New(Node{ID: "t-root", Name: "root"})
	adds := []struct {
		parent string
		node   Node
	}{
		{"t-root", Node{ID: "t-customer", Name: "customer"}},
		{"t-customer", Node{ID: "t-name", Name: "name"}},
		{"t-customer", Node{ID: "t-email", Name: "email"}},
		{"t-root", Node{ID: "t-lines", Name: "lines", Type: "array"}},
		{"t-lines", Node{ID: "t-amount", Name: "amount"}},
	}
	for _, a := range adds {
		if err := tr.Add(a.parent, a.node); err != nil {
			t.Fatal(err)
		}
	}
	return tr
}

func TestFullPath(t *testing.T) {
	tr := buildOrderTree(t)
	tests := map[string]string{
		"t-root":   "root",
		"t-name":   "root.customer.name",
		"t-amount": "root.lines.amount",
		"missing":  "",
	}
	for id, want := range tests {
		if got := tr.FullPath(id); got != want {
			t.Errorf("FullPath(%s): expected %q, got %q", id, want, got)
		}
	}
}

func TestFindNodeByPath(t *testing.T) {
	tr := buildOrderTree(t)

	n, ok := tr.FindNodeByPath("root.customer.email")
	if !ok || n.ID != "t-email" {
		t.Errorf("expected t-email, got %v %v", n.ID, ok)
	}
	n, ok = tr.FindNodeByPath("customer.email")
	if !ok || n.ID != "t-email" {
		t.Errorf("unrooted path should resolve, got %v %v", n.ID, ok)
	}
	if _, ok := tr.FindNodeByPath("customer.phone"); ok {
		t.Error("expected no match for unknown path")
	}
}

func TestFindNodeByPath_FirstMatchWins(t *testing.T) {
	tr := New(Node{ID: "r", Name: "root"})
	_ = tr.Add("r", Node{ID: "a1", Name: "a"})
	_ = tr.Add("r", Node{ID: "a2", Name: "a"})
	n, ok := tr.FindNodeByPath("a")
	if !ok || n.ID != "a1" {
		t.Errorf("expected first pre-order match a1, got %s", n.ID)
	}
}

func TestFindNodeByPath_RootNameIgnored(t *testing.T) {
	tr := New(Node{ID: "r", Name: "Order"})
	_ = tr.Add("r", Node{ID: "x", Name: "total"})
	if _, ok := tr.FindNodeByPath("root.total"); !ok {
		t.Error("paths are addressed from the root segment regardless of root name")
	}
}

func TestAdd_Errors(t *testing.T) {
	tr := buildOrderTree(t)
	if err := tr.Add("nope", Node{ID: "x", Name: "x"}); err == nil {
		t.Error("expected error for unknown parent")
	}
	if err := tr.Add("t-root", Node{ID: "t-name", Name: "dup"}); err == nil {
		t.Error("expected error for duplicate id")
	}
	if err := tr.Add("t-root", Node{Name: "noid"}); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestWalk_PreOrder(t *testing.T) {
	tr := buildOrderTree(t)
	var ids []string
	var depths []int
	tr.Walk(func(n Node, depth int) {
		ids = append(ids, n.ID)
		depths = append(depths, depth)
	})
	want := "t-root,t-customer,t-name,t-email,t-lines,t-amount"
	if got := strings.Join(ids, ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if depths[2] != 2 || depths[4] != 1 {
		t.Errorf("unexpected depths %v", depths)
	}
}

func TestUpdate_DoesNotTouchOriginal(t *testing.T) {
	tr := buildOrderTree(t)
	updated, ok := tr.Update("t-name", func(n *Node) {
		n.SourceReferences = append(n.SourceReferences, SourceReference{ID: "ref1", Variable: "name"})
		n.NodeCondition = "x > 1"
	})
	if !ok {
		t.Fatal("expected update to find node")
	}

	orig, _ := tr.FindNodeByID("t-name")
	if len(orig.SourceReferences) != 0 || orig.NodeCondition != "" {
		t.Error("original tree was mutated")
	}
	got, _ := updated.FindNodeByID("t-name")
	if len(got.SourceReferences) != 1 || got.NodeCondition != "x > 1" {
		t.Error("update not applied to copy")
	}
}

func TestUpdate_CannotRewireStructure(t *testing.T) {
	tr := buildOrderTree(t)
	updated, _ := tr.Update("t-customer", func(n *Node) {
		n.ID = "changed"
		n.children = nil
	})
	if _, ok := updated.FindNodeByID("t-customer"); !ok {
		t.Error("id should be preserved")
	}
	if len(updated.Children("t-customer")) != 2 {
		t.Error("children should be preserved")
	}
}

func TestUpdate_RenameRefreshesPaths(t *testing.T) {
	tr := buildOrderTree(t)
	_, _ = tr.FindNodeByPath("customer.name")
	updated, _ := tr.Update("t-name", func(n *Node) { n.Name = "fullName" })
	if _, ok := updated.FindNodeByPath("customer.fullName"); !ok {
		t.Error("renamed node should resolve by new path")
	}
	if _, ok := tr.FindNodeByPath("customer.name"); !ok {
		t.Error("original should still resolve by old path")
	}
}

func TestUpdateAll(t *testing.T) {
	tr := buildOrderTree(t)
	withCond := tr.UpdateAll(func(n *Node) { n.NodeCondition = "c" })
	cleared := withCond.UpdateAll(func(n *Node) { n.NodeCondition = "" })
	count := 0
	withCond.Walk(func(n Node, _ int) {
		if n.NodeCondition == "c" {
			count++
		}
	})
	if count != tr.Len() {
		t.Errorf("expected %d nodes updated, got %d", tr.Len(), count)
	}
	cleared.Walk(func(n Node, _ int) {
		if n.NodeCondition != "" {
			t.Errorf("node %s not cleared", n.ID)
		}
	})
}

func TestParentAndChildren(t *testing.T) {
	tr := buildOrderTree(t)
	p, ok := tr.Parent("t-amount")
	if !ok || p.ID != "t-lines" {
		t.Errorf("expected parent t-lines, got %s", p.ID)
	}
	if _, ok := tr.Parent("t-root"); ok {
		t.Error("root has no parent")
	}
	kids := tr.Children("t-customer")
	if len(kids) != 2 || kids[0].ID != "t-name" || kids[1].ID != "t-email" {
		t.Errorf("unexpected children %v", kids)
	}
}

func TestNilTree(t *testing.T) {
	var tr *Tree
	if tr.Len() != 0 {
		t.Error("nil tree should be empty")
	}
	if _, ok := tr.FindNodeByPath("a"); ok {
		t.Error("nil tree should not resolve paths")
	}
	if tr.FullPath("a") != "" {
		t.Error("nil tree has no paths")
	}
	tr.Walk(func(Node, int) { t.Error("nil tree should not walk") })
}

func TestJSONRoundTrip(t *testing.T) {
	tr := buildOrderTree(t)
	tr, _ = tr.Update("t-name", func(n *Node) {
		n.SourceReferences = []SourceReference{{ID: "r1", SourceNodeID: "s-name", Variable: "name"}}
		n.LoopReference = &LoopReference{ID: "l1", SourceNodeID: "s-items", Variable: "item"}
	})

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatal(err)
	}
	var back Tree
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Len() != tr.Len() {
		t.Fatalf("expected %d nodes, got %d", tr.Len(), back.Len())
	}
	n, ok := back.FindNodeByPath("customer.name")
	if !ok {
		t.Fatal("path lost in round trip")
	}
	if len(n.SourceReferences) != 1 || n.SourceReferences[0].SourceNodeID != "s-name" {
		t.Errorf("source references lost: %+v", n.SourceReferences)
	}
	if n.LoopReference == nil || n.LoopReference.Variable != "item" {
		t.Errorf("loop reference lost: %+v", n.LoopReference)
	}
	kids := back.Children("t-customer")
	if len(kids) != 2 || kids[0].Name != "name" {
		t.Errorf("child order lost: %v", kids)
	}
}

func TestYAMLDecode_AssignsMissingIDs(t *testing.T) {
	doc := `
name: root
children:
  - name: customer
    children:
      - name: email
        value: "n/a"
        value_kind: literal
`
	var tr Tree
	if err := yaml.Unmarshal([]byte(doc), &tr); err != nil {
		t.Fatal(err)
	}
	n, ok := tr.FindNodeByPath("customer.email")
	if !ok {
		t.Fatal("expected email node")
	}
	if n.ID != "root.customer.email" {
		t.Errorf("expected path-derived id, got %s", n.ID)
	}
	if n.Value != "n/a" || n.IsExpression() {
		t.Errorf("unexpected value %q kind %q", n.Value, n.ValueKind)
	}

	out, err := yaml.Marshal(&tr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "email") {
		t.Errorf("marshaled yaml missing nodes:\n%s", out)
	}
}
