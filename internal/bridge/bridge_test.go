package bridge

import (
	"strings"
	"testing"

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

func newOrderState(t *testing.T) state.MapState {
	t.Helper()
	source := buildTree(t, "s-root", [][3]string{
		{"s-root", "s-user", "user"},
		{"s-user", "s-name", "name"},
		{"s-user", "s-active", "active"},
		{"s-root", "s-orders", "orders"},
		{"s-orders", "s-price", "price"},
	})
	target := buildTree(t, "t-root", [][3]string{
		{"t-root", "t-customer", "customer"},
		{"t-customer", "t-fullName", "fullName"},
		{"t-root", "t-items", "items"},
		{"t-items", "t-cost", "cost"},
		{"t-root", "t-status", "status"},
	})
	return state.MapState{ID: "map-1", Name: "Orders", Source: source, Target: target}
}

func node(t *testing.T, s state.MapState, id string) tree.Node {
	t.Helper()
	n, ok := s.Target.FindNodeByID(id)
	if !ok {
		t.Fatalf("target node %s not found", id)
	}
	return n
}

func TestApplyDSLSimpleMapping(t *testing.T) {
	res := ApplyDSL("user.name -> customer.fullName", newOrderState(t))
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected diagnostics: %v %v", res.Errors, res.Warnings)
	}

	n := node(t, res.State, "t-fullName")
	if len(n.SourceReferences) != 1 {
		t.Fatalf("expected 1 source reference, got %d", len(n.SourceReferences))
	}
	ref := n.SourceReferences[0]
	if ref.SourceNodeID != "s-name" {
		t.Errorf("expected source node s-name, got %q", ref.SourceNodeID)
	}
	if ref.Variable != "name" {
		t.Errorf("expected variable name, got %q", ref.Variable)
	}
	if ref.ID == "" {
		t.Error("expected reference id to be assigned")
	}
	if len(res.State.References) != 1 || res.State.References[0].TargetPath != "root.customer.fullName" {
		t.Errorf("expected flat reference list to be recomputed, got %+v", res.State.References)
	}
}

func TestApplyDSLIsAtomic(t *testing.T) {
	s := newOrderState(t)
	s.Target.Mutate("t-status", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{ID: "keep", SourceNodeID: "s-active", Variable: "active"}}
	})

	text := "user.name -> customer.fullName\na -> b WHERE invalid\norders[*] -> items LOOP item"
	res := ApplyDSL(text, s)

	if len(res.Errors) != 1 || res.Errors[0].Line != 2 {
		t.Fatalf("expected one error on line 2, got %v", res.Errors)
	}
	if res.State.Target != s.Target {
		t.Error("expected the original target tree to be returned")
	}
	if n := node(t, res.State, "t-fullName"); len(n.SourceReferences) != 0 {
		t.Errorf("expected no partial application, got %+v", n.SourceReferences)
	}
	if n := node(t, res.State, "t-status"); len(n.SourceReferences) != 1 {
		t.Errorf("expected existing reference to survive, got %+v", n.SourceReferences)
	}
}

func TestApplyDSLLeavesInputUntouched(t *testing.T) {
	s := newOrderState(t)
	s.Target.Mutate("t-status", func(n *tree.Node) {
		n.NodeCondition = "user.active"
		n.SourceReferences = []tree.SourceReference{{ID: "old", SourceNodeID: "s-active", Variable: "active"}}
	})

	res := ApplyDSL("user.name -> customer.fullName", s)

	if n := node(t, res.State, "t-status"); n.NodeCondition != "" || len(n.SourceReferences) != 0 {
		t.Errorf("expected annotations to be cleared in the new state, got %+v", n)
	}
	if n := node(t, s, "t-status"); n.NodeCondition != "user.active" || len(n.SourceReferences) != 1 {
		t.Errorf("expected input state to be unchanged, got %+v", n)
	}
}

func TestApplyDSLUnderResolvesRegardlessOfOrder(t *testing.T) {
	docs := map[string]string{
		"declared first": "orders[*] -> items LOOP item\nitem.price -> items.cost UNDER item",
		"declared last":  "item.price -> items.cost UNDER item\norders[*] -> items LOOP item",
	}
	for name, text := range docs {
		t.Run(name, func(t *testing.T) {
			res := ApplyDSL(text, newOrderState(t))
			if len(res.Errors) != 0 || len(res.Warnings) != 0 {
				t.Fatalf("unexpected diagnostics: %v %v", res.Errors, res.Warnings)
			}

			items := node(t, res.State, "t-items")
			if items.LoopReference == nil {
				t.Fatal("expected loop reference on items")
			}
			if items.LoopReference.SourceNodeID != "s-orders" || items.LoopIterator != "item" {
				t.Errorf("unexpected loop reference %+v (iterator %q)", items.LoopReference, items.LoopIterator)
			}

			cost := node(t, res.State, "t-cost")
			if len(cost.SourceReferences) != 1 {
				t.Fatalf("expected 1 reference on cost, got %d", len(cost.SourceReferences))
			}
			ref := cost.SourceReferences[0]
			if ref.LoopScopeID != items.LoopReference.ID {
				t.Errorf("expected loop scope %q, got %q", items.LoopReference.ID, ref.LoopScopeID)
			}
			if ref.SourceNodeID != "s-price" {
				t.Errorf("expected iterator-relative source to resolve to s-price, got %q", ref.SourceNodeID)
			}
		})
	}
}

func TestApplyDSLLoopIdsAreFresh(t *testing.T) {
	s := newOrderState(t)
	first := ApplyDSL("orders[*] -> items LOOP item", s)
	second := ApplyDSL("orders[*] -> items LOOP item", first.State)

	a := node(t, first.State, "t-items").LoopReference
	b := node(t, second.State, "t-items").LoopReference
	if a == nil || b == nil {
		t.Fatal("expected loop references")
	}
	if a.ID == b.ID {
		t.Errorf("expected a new loop id per apply, both were %q", a.ID)
	}
}

func TestApplyDSLWarnings(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
		want string
	}{
		{"dropped target", "user.name -> customer.nickname", 1, "customer.nickname"},
		{"undeclared loop", "item.price -> items.cost UNDER item", 1, "UNDER \"item\""},
		{"second loop on one target", "orders[*] -> items LOOP item\nuser[*] -> items LOOP row", 2, "already has loop"},
		{"ambiguous iterator", "orders[*] -> items LOOP item\nuser[*] -> customer LOOP item\nuser.name -> status UNDER item", 3, "ambiguous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ApplyDSL(tt.text, newOrderState(t))
			if len(res.Errors) != 0 {
				t.Fatalf("unexpected errors: %v", res.Errors)
			}
			if len(res.Warnings) != 1 {
				t.Fatalf("expected 1 warning, got %v", res.Warnings)
			}
			w := res.Warnings[0]
			if w.Line != tt.line || !strings.Contains(w.Message, tt.want) {
				t.Errorf("expected warning on line %d containing %q, got %v", tt.line, tt.want, w)
			}
		})
	}
}

func TestApplyDSLDroppedTargetKeepsOtherLines(t *testing.T) {
	res := ApplyDSL("user.name -> customer.nickname\nuser.name -> customer.fullName", newOrderState(t))
	if len(res.State.References) != 1 {
		t.Errorf("expected the resolvable line to apply, got %+v", res.State.References)
	}
}

func TestApplyDSLLookup(t *testing.T) {
	res := ApplyDSL("user.name -> status LOOKUP codes", newOrderState(t))
	refs := node(t, res.State, "t-status").SourceReferences
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(refs))
	}
	if refs[0].CustomPath != "lookup:codes:root.user.name" {
		t.Errorf("unexpected lookup path %q", refs[0].CustomPath)
	}
	if refs[0].SourceNodeID != "" {
		t.Errorf("expected lookup reference to carry no source node, got %q", refs[0].SourceNodeID)
	}
}

func TestApplyDSLExpressionSource(t *testing.T) {
	res := ApplyDSL("upper(user.name) -> customer.fullName AS EXPR", newOrderState(t))
	n := node(t, res.State, "t-fullName")
	if !n.IsExpression() {
		t.Error("expected node to be flagged as expression")
	}
	if len(n.SourceReferences) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(n.SourceReferences))
	}
	ref := n.SourceReferences[0]
	if ref.CustomPath != "root.upper(user.name)" || ref.SourceNodeID != "" {
		t.Errorf("expected opaque custom path, got %+v", ref)
	}
	if ref.Variable != "fullName" {
		t.Errorf("expected variable named after target, got %q", ref.Variable)
	}
}

func TestApplyDSLQuotedLiteral(t *testing.T) {
	res := ApplyDSL(`"active" -> status AS LITERAL`, newOrderState(t))
	n := node(t, res.State, "t-status")
	if n.Value != "active" || n.ValueKind != tree.ValueLiteral {
		t.Errorf("expected literal value active, got %q (%s)", n.Value, n.ValueKind)
	}
	if len(n.SourceReferences) != 0 {
		t.Errorf("expected no references for a quoted literal, got %+v", n.SourceReferences)
	}
}

func TestApplyDSLNodeCondition(t *testing.T) {
	res := ApplyDSL("customer IF user.active == true", newOrderState(t))
	if got := node(t, res.State, "t-customer").NodeCondition; got != "user.active == true" {
		t.Errorf("expected node condition, got %q", got)
	}
}

func TestStateToDSLRoundTrip(t *testing.T) {
	text := strings.Join([]string{
		"# Map: Orders",
		"customer IF user.active == true",
		`user.name -> customer.fullName WHERE name startsWith "A"`,
		"orders[*] -> items LOOP item",
		"item.price -> items.cost UNDER item THEN +5%",
		"user.name -> status LOOKUP codes",
	}, "\n")

	res := ApplyDSL(text, newOrderState(t))
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected diagnostics: %v %v", res.Errors, res.Warnings)
	}

	got := StateToDSL(res.State)
	if got != text {
		t.Errorf("expected\n%s\ngot\n%s", text, got)
	}

	again := ApplyDSL(got, res.State)
	if StateToDSL(again.State) != got {
		t.Error("expected re-applying generated DSL to be stable")
	}
}

func TestStateToDSLHeaderAndGlobals(t *testing.T) {
	s := newOrderState(t)
	s.Globals = []state.GlobalVariable{{Name: "rate", Value: "0.2"}, {Name: "region", Value: "eu"}}

	lines := strings.Split(StateToDSL(s), "\n")
	want := []string{"# Map: Orders", "# Global: rate = 0.2", "# Global: region = eu"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i+1, want[i], lines[i])
		}
	}
}

func TestStateToDSLValueFallback(t *testing.T) {
	s := newOrderState(t)
	target, _ := s.Target.Update("t-status", func(n *tree.Node) {
		n.Value = "active"
		n.ValueKind = tree.ValueLiteral
	})
	target, _ = target.Update("t-cost", func(n *tree.Node) {
		n.Value = "now()"
		n.ValueKind = tree.ValueExpr
	})
	target, _ = target.Update("t-fullName", func(n *tree.Node) {
		n.Value = "ignored"
		n.SourceReferences = []tree.SourceReference{{ID: "r1", SourceNodeID: "s-name", Variable: "name"}}
	})

	got := StateToDSL(s.WithTarget(target))
	for _, want := range []string{
		"now() -> items.cost AS EXPR",
		`"active" -> status AS LITERAL`,
		"user.name -> customer.fullName",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got\n%s", want, got)
		}
	}
	if strings.Contains(got, "ignored") {
		t.Errorf("value should not be emitted when references exist, got\n%s", got)
	}

	res := ApplyDSL(got, s)
	if n := node(t, res.State, "t-status"); n.Value != "active" {
		t.Errorf("expected literal fallback to re-apply, got %q", n.Value)
	}
}

func TestStateToDSLCustomPathVerbatim(t *testing.T) {
	s := newOrderState(t)
	target, _ := s.Target.Update("t-fullName", func(n *tree.Node) {
		n.ValueKind = tree.ValueExpr
		n.SourceReferences = []tree.SourceReference{{ID: "r1", CustomPath: "concat(user.first,user.last)", Variable: "fullName"}}
	})

	got := StateToDSL(s.WithTarget(target))
	if !strings.Contains(got, "concat(user.first,user.last) -> customer.fullName AS EXPR") {
		t.Errorf("expected custom path line, got\n%s", got)
	}
}

func TestApplyDSLSiblingLoopsShareIterator(t *testing.T) {
	source := buildTree(t, "s-root", [][3]string{
		{"s-root", "s-orders", "orders"},
		{"s-orders", "s-price", "price"},
		{"s-root", "s-returns", "returns"},
		{"s-returns", "s-amount", "amount"},
	})
	target := buildTree(t, "t-root", [][3]string{
		{"t-root", "t-lines", "lines"},
		{"t-lines", "t-cost", "cost"},
		{"t-root", "t-refunds", "refunds"},
		{"t-refunds", "t-refund", "amount"},
	})
	target.Mutate("t-lines", func(n *tree.Node) {
		n.LoopReference = &tree.LoopReference{ID: "loop-a", SourceNodeID: "s-orders", Variable: "item"}
	})
	target.Mutate("t-refunds", func(n *tree.Node) {
		n.LoopReference = &tree.LoopReference{ID: "loop-b", SourceNodeID: "s-returns", Variable: "item"}
	})
	target.Mutate("t-cost", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{ID: "r1", SourceNodeID: "s-price", Variable: "price", LoopScopeID: "loop-a"}}
	})
	target.Mutate("t-refund", func(n *tree.Node) {
		n.SourceReferences = []tree.SourceReference{{ID: "r2", SourceNodeID: "s-amount", Variable: "amount", LoopScopeID: "loop-b"}}
	})
	s := state.MapState{ID: "map-2", Name: "Returns", Source: source, Target: target}

	text := StateToDSL(s)
	res := ApplyDSL(text, s)
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected diagnostics for\n%s\n%v %v", text, res.Errors, res.Warnings)
	}

	lines := node(t, res.State, "t-lines").LoopReference
	refunds := node(t, res.State, "t-refunds").LoopReference
	if lines == nil || refunds == nil {
		t.Fatalf("expected both loops to survive, got lines=%v refunds=%v", lines, refunds)
	}
	if lines.SourceNodeID != "s-orders" || refunds.SourceNodeID != "s-returns" {
		t.Errorf("unexpected loop sources %q and %q", lines.SourceNodeID, refunds.SourceNodeID)
	}
	if lines.ID == refunds.ID {
		t.Errorf("expected distinct loop ids, both were %q", lines.ID)
	}
	if got := node(t, res.State, "t-cost").SourceReferences[0].LoopScopeID; got != lines.ID {
		t.Errorf("expected cost scoped to the lines loop, got %q", got)
	}
	if got := node(t, res.State, "t-refund").SourceReferences[0].LoopScopeID; got != refunds.ID {
		t.Errorf("expected refund scoped to the refunds loop, got %q", got)
	}
	if again := StateToDSL(res.State); again != text {
		t.Errorf("expected stable DSL, got\n%s\nwant\n%s", again, text)
	}
}

func TestStateToDSLMultiLineLiteral(t *testing.T) {
	s := newOrderState(t)
	value := "line one\nline \"two\"\tend\r"
	target, _ := s.Target.Update("t-status", func(n *tree.Node) {
		n.Value = value
		n.ValueKind = tree.ValueLiteral
	})
	s = s.WithTarget(target)

	text := StateToDSL(s)
	if want := `"line one\nline \"two\"\tend\r" -> status AS LITERAL`; !strings.Contains(text, want) {
		t.Fatalf("expected escaped literal line %q, got\n%s", want, text)
	}

	res := ApplyDSL(text, s)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if got := node(t, res.State, "t-status").Value; got != value {
		t.Errorf("expected %q, got %q", value, got)
	}
}
