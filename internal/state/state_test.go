package state

import (
	"path/filepath"
	"testing"

	"github.com/mapsmith/mapsmith/internal/tree"
)

func sampleState(t *testing.T) MapState {
	t.Helper()
	src := tree.New(tree.Node{ID: "s-root", Name: "root"})
	if err := src.Add("s-root", tree.Node{ID: "s-name", Name: "name"}); err != nil {
		t.Fatal(err)
	}
	tgt := tree.New(tree.Node{ID: "t-root", Name: "root"})
	if err := tgt.Add("t-root", tree.Node{ID: "t-full", Name: "fullName",
		SourceReferences: []tree.SourceReference{{ID: "r1", SourceNodeID: "s-name", Variable: "name"}}}); err != nil {
		t.Fatal(err)
	}
	return MapState{ID: "m1", Name: "Customers", Source: src}.WithTarget(tgt)
}

func TestWithTarget_RecomputesReferences(t *testing.T) {
	s := sampleState(t)
	if len(s.References) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(s.References))
	}
	ref := s.References[0]
	if ref.TargetPath != "root.fullName" || ref.Source.SourceNodeID != "s-name" {
		t.Errorf("unexpected reference %+v", ref)
	}

	cleared := s.WithTarget(s.Target.UpdateAll(func(n *tree.Node) { n.SourceReferences = nil }))
	if len(cleared.References) != 0 {
		t.Errorf("expected no references, got %d", len(cleared.References))
	}
	if len(s.References) != 1 {
		t.Error("original state should be unchanged")
	}
}

func TestScriptLanguageDefault(t *testing.T) {
	if (MapState{}).ScriptLanguage() != DefaultLanguage {
		t.Errorf("expected default language %s", DefaultLanguage)
	}
	if (MapState{Language: "jq"}).ScriptLanguage() != "jq" {
		t.Error("expected configured language")
	}
}

func TestLookup(t *testing.T) {
	s := MapState{LookupTables: []LookupTable{{Name: "countries", Entries: map[string]string{"NL": "Netherlands"}}}}
	lt, ok := s.Lookup("countries")
	if !ok || lt.Entries["NL"] != "Netherlands" {
		t.Errorf("expected countries table, got %+v", lt)
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Error("expected missing table to be absent")
	}
}

func TestSaveLoad(t *testing.T) {
	for _, name := range []string{"map.yaml", "map.json"} {
		t.Run(name, func(t *testing.T) {
			s := sampleState(t)
			path := filepath.Join(t.TempDir(), "maps", name)
			if err := s.Save(path); err != nil {
				t.Fatal(err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Name != "Customers" {
				t.Errorf("expected name Customers, got %s", loaded.Name)
			}
			if loaded.Target.Len() != 2 || loaded.Source.Len() != 2 {
				t.Errorf("trees not restored: %d/%d nodes", loaded.Source.Len(), loaded.Target.Len())
			}
			if len(loaded.References) != 1 {
				t.Errorf("expected 1 reference, got %d", len(loaded.References))
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
