package codegen

import (
	"strings"
	"testing"

	"github.com/mapsmith/mapsmith/internal/mapping"
	"github.com/mapsmith/mapsmith/internal/state"
	"github.com/mapsmith/mapsmith/internal/tree"
)

func buildTree(t *testing.T, rootID string, adds [][3]string) *tree.Tree {
	t.Helper()
	tr := tree.New(tree.Node{ID: rootID, Name: "root"})
	for _, a := range adds {
		if err := tr.Add(a[0], tree.Node{ID: a[1], Name: a[2]}); err != nil {
			t.Fatal(err)
		}
	}
	return tr
}

func userState(t *testing.T) state.MapState {
	t.Helper()
	return state.MapState{
		ID:   "u1",
		Name: "Users",
		Source: buildTree(t, "s", [][3]string{
			{"s", "s-user", "user"},
			{"s-user", "s-name", "name"},
			{"s-user", "s-age", "age"},
			{"s", "s-tags", "tags"},
		}),
		Target: buildTree(t, "t", [][3]string{
			{"t", "t-customer", "customer"},
			{"t-customer", "t-name", "name"},
			{"t-customer", "t-age", "age"},
			{"t", "t-labels", "labels"},
			{"t", "t-kind", "kind"},
		}),
	}
}

func mutate(t *testing.T, s state.MapState, id string, fn func(n *tree.Node)) state.MapState {
	t.Helper()
	target, ok := s.Target.Update(id, fn)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	return s.WithTarget(target)
}

func TestGenerate_DirectMapping(t *testing.T) {
	s := mutate(t, userState(t), "t-name", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{ID: "r1", SourceNodeID: "s-name", Variable: "name"}}
	})

	got, err := Generate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `# Generated by mapsmith from map "Users" (u1).
# Entry point: transform(input) returns the target document.

def transform(input):
    out = {}
    ms.put(out, ["customer", "name"], ms.get(input, ["user", "name"]))
    return out
`
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerate_ConditionAndTransform(t *testing.T) {
	s := mutate(t, userState(t), "t-age", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{
			ID:           "r1",
			SourceNodeID: "s-age",
			Variable:     "age",
			Condition:    &mapping.Condition{Field: "name", Operator: mapping.OpNe, Value: "root"},
			Transform:    &mapping.Transform{Type: mapping.TransformMultiply, Value: 12},
		}}
	})

	got, err := Generate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `ms.put(out, ["customer", "age"], (ms.apply(ms.get(input, ["user", "age"]), "multiply", 12) if ms.cmp(ms.get(input, ["user", "name"]), "!=", "root") else None))`
	if !strings.Contains(got, want) {
		t.Errorf("expected output to contain\n%s\ngot:\n%s", want, got)
	}
}

func TestGenerate_NodeConditionWrapsChildren(t *testing.T) {
	s := mutate(t, userState(t), "t-customer", func(n *tree.Node) {
		n.NodeCondition = "user.age >= 18 && !user.blocked"
	})

	got, err := Generate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "    if ms.get(input, [\"user\", \"age\"]) >= 18 and not ms.get(input, [\"user\", \"blocked\"]):\n        pass\n"
	if !strings.Contains(got, want) {
		t.Errorf("expected output to contain\n%s\ngot:\n%s", want, got)
	}
}

func TestGenerate_ScalarLoop(t *testing.T) {
	s := mutate(t, userState(t), "t-labels", func(n *tree.Node) {
		n.LoopReference = &tree.LoopReference{ID: "l1", SourceNodeID: "s-tags", Variable: "tag"}
		n.LoopIterator = "tag"
		n.ValueKind = tree.ValueExpr
		n.Value = "upper(tag)"
	})

	got, err := Generate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"    list_0 = []\n",
		"    for tag in ms.each(ms.get(input, [\"tags\"])):\n",
		"        list_0.append(upper(tag))\n",
		"    ms.put(out, [\"labels\"], list_0)\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestGenerate_ValuesGlobalsAndLookups(t *testing.T) {
	s := mutate(t, userState(t), "t-kind", func(n *tree.Node) {
		n.Value = "person"
		n.ValueKind = tree.ValueLiteral
	})
	s = mutate(t, s, "t-name", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{ID: "r1", CustomPath: tree.LookupPath("names", "root.user.name"), Variable: "name"}}
	})
	s = mutate(t, s, "t-age", func(n *tree.Node) {
		n.ValueKind = tree.ValueExpr
		n.Value = "age * factor"
		n.SourceReferences = []tree.SourceReference{{ID: "r2", SourceNodeID: "s-age", Variable: "age"}}
	})
	s.Globals = []state.GlobalVariable{{Name: "factor", Value: "2"}, {Name: "bad name", Value: "x"}}
	s.LookupTables = []state.LookupTable{{Name: "names", Entries: map[string]string{"b": "B", "a": "A"}}}

	got, err := Generate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"factor = 2\n",
		`# global "bad name" skipped`,
		`lookup_names = {"a": "A", "b": "B"}` + "\n",
		"lookup_names_default = None\n",
		`ms.put(out, ["customer", "name"], lookup_names.get(ms.text(ms.get(input, ["user", "name"])), lookup_names_default))`,
		"    age = ms.get(input, [\"user\", \"age\"])\n    ms.put(out, [\"customer\", \"age\"], age * factor)\n",
		`ms.put(out, ["kind"], "person")`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestGenerate_UndefinedLookupTable(t *testing.T) {
	s := mutate(t, userState(t), "t-name", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{ID: "r1", CustomPath: tree.LookupPath("missing", "root.user.name"), Variable: "name"}}
	})
	s.LookupTables = []state.LookupTable{{Name: "names"}}

	_, err := Generate(s)
	if err == nil {
		t.Fatal("expected an error for an undefined lookup table")
	}
	if !strings.Contains(err.Error(), `"missing"`) || !strings.Contains(err.Error(), "customer.name") {
		t.Errorf("expected error naming table and target, got %v", err)
	}
}

func TestGenerate_MultipleReferencesCoalesce(t *testing.T) {
	s := mutate(t, userState(t), "t-name", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{
			{ID: "r1", SourceNodeID: "s-name", Variable: "name"},
			{ID: "r2", CustomPath: "root.fallback", Text: true, Variable: "name"},
		}
	})
	got, err := Generate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `ms.put(out, ["customer", "name"], ms.coalesce("fallback", ms.get(input, ["user", "name"])))`
	if !strings.Contains(got, want) {
		t.Errorf("expected output to contain\n%s\ngot:\n%s", want, got)
	}
}

func TestGenerate_Errors(t *testing.T) {
	s := userState(t)
	s.SourceFormat = "xml"
	if _, err := Generate(s); err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("expected unsupported format error, got %v", err)
	}

	s = mutate(t, userState(t), "t-kind", func(n *tree.Node) {
		n.NodeCondition = `name == "open`
	})
	if _, err := Generate(s); err == nil || !strings.Contains(err.Error(), "root.kind") {
		t.Errorf("expected condition error naming the node, got %v", err)
	}
}
