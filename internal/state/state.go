package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mapsmith/mapsmith/internal/tree"
)

// DefaultLanguage is the scripting language used when a map does not name one.
const DefaultLanguage = "starlark"

// GlobalVariable is a map-wide named value available to every mapping.
type GlobalVariable struct {
	Name  string         `yaml:"name" json:"name"`
	Value string         `yaml:"value" json:"value"`
	Kind  tree.ValueKind `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// LookupTable translates source values to target values.
type LookupTable struct {
	Name    string            `yaml:"name" json:"name"`
	Entries map[string]string `yaml:"entries" json:"entries"`
	Default string            `yaml:"default,omitempty" json:"default,omitempty"`
}

// Reference is one entry of the flat reference list derived from the target tree.
type Reference struct {
	TargetNodeID string               `yaml:"target_node_id" json:"targetNodeId"`
	TargetPath   string               `yaml:"target_path" json:"targetPath"`
	Source       tree.SourceReference `yaml:"source" json:"source"`
}

// MapState is a complete tree-annotated mapping between two documents.
// Values are never modified in place; With* helpers return updated copies.
type MapState struct {
	ID           string           `yaml:"id" json:"id"`
	Name         string           `yaml:"name" json:"name"`
	Language     string           `yaml:"language,omitempty" json:"language,omitempty"`
	SourceFormat string           `yaml:"source_format,omitempty" json:"sourceFormat,omitempty"`
	TargetFormat string           `yaml:"target_format,omitempty" json:"targetFormat,omitempty"`
	Globals      []GlobalVariable `yaml:"globals,omitempty" json:"globals,omitempty"`
	LookupTables []LookupTable    `yaml:"lookup_tables,omitempty" json:"lookupTables,omitempty"`
	Source       *tree.Tree       `yaml:"source" json:"source"`
	Target       *tree.Tree       `yaml:"target" json:"target"`
	References   []Reference      `yaml:"references,omitempty" json:"references,omitempty"`
	UpdatedAt    time.Time        `yaml:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// ScriptLanguage returns the map's language, falling back to DefaultLanguage.
func (s MapState) ScriptLanguage() string {
	if s.Language == "" {
		return DefaultLanguage
	}
	return s.Language
}

// Lookup returns the lookup table with the given name.
func (s MapState) Lookup(name string) (LookupTable, bool) {
	for _, lt := range s.LookupTables {
		if lt.Name == name {
			return lt, true
		}
	}
	return LookupTable{}, false
}

// WithTarget returns a copy of s using target as its target tree, with the
// flat reference list recomputed from it.
func (s MapState) WithTarget(target *tree.Tree) MapState {
	s.Target = target
	s.References = CollectReferences(target)
	return s
}

// CollectReferences flattens every source reference in the target tree, in
// pre-order.
func CollectReferences(target *tree.Tree) []Reference {
	var refs []Reference
	target.Walk(func(n tree.Node, _ int) {
		if len(n.SourceReferences) == 0 {
			return
		}
		path := target.FullPath(n.ID)
		for _, sr := range n.SourceReferences {
			refs = append(refs, Reference{TargetNodeID: n.ID, TargetPath: path, Source: sr})
		}
	})
	return refs
}

// Load reads a map state from a YAML or JSON file, chosen by extension.
func Load(path string) (*MapState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map state: %w", err)
	}

	s := &MapState{}
	if isJSON(path) {
		err = json.Unmarshal(data, s)
	} else {
		err = yaml.Unmarshal(data, s)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing map state: %w", err)
	}
	if s.References == nil && s.Target != nil {
		s.References = CollectReferences(s.Target)
	}

	return s, nil
}

// Save writes the map state to disk as YAML or JSON, chosen by extension.
func (s *MapState) Save(path string) error {
	s.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating map directory: %w", err)
	}

	var data []byte
	var err error
	if isJSON(path) {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("marshaling map state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
