// Package chain runs ordered lists of map and script steps over a payload.
package chain

import (
	"strings"
	"time"
)

// LinkType says what a chain link does.
type LinkType string

const (
	// LinkMap runs a saved map against the payload.
	LinkMap LinkType = "MAP"
	// LinkScript runs inline script code against the payload.
	LinkScript LinkType = "SCRIPT"
)

// Status is the state of one step in a run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether a step in this status has finished.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusSkipped
}

// Link is one step of a chain.
type Link struct {
	ID             string   `yaml:"id" json:"id"`
	Type           LinkType `yaml:"type" json:"type"`
	Name           string   `yaml:"name" json:"name"`
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	MapID          string   `yaml:"map_id,omitempty" json:"mapId,omitempty"`
	MapName        string   `yaml:"map_name,omitempty" json:"mapName,omitempty"`
	ScriptCode     string   `yaml:"script_code,omitempty" json:"scriptCode,omitempty"`
	ScriptName     string   `yaml:"script_name,omitempty" json:"scriptName,omitempty"`
	ScriptLanguage string   `yaml:"script_language,omitempty" json:"scriptLanguage,omitempty"`
}

// Configured reports whether the link has what it needs to run: a map id for
// map links, non-blank code for script links.
func (l Link) Configured() bool {
	switch l.Type {
	case LinkMap:
		return l.MapID != ""
	case LinkScript:
		return strings.TrimSpace(l.ScriptCode) != ""
	default:
		return false
	}
}

// DisplayName returns the most descriptive name available for the link.
func (l Link) DisplayName() string {
	for _, n := range []string{l.Name, l.MapName, l.ScriptName} {
		if n != "" {
			return n
		}
	}
	return l.ID
}

// MapChain is a named, ordered list of links.
type MapChain struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Links     []Link    `yaml:"links" json:"links"`
	TestInput string    `yaml:"test_input,omitempty" json:"testInput,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// StepResult is the outcome of one link in a run.
type StepResult struct {
	LinkID     string `json:"linkId"`
	Status     Status `json:"status"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// IsExecutable reports whether a chain can run: it must have at least one
// link, and every enabled link must be configured. Disabled links are ignored.
func IsExecutable(links []Link) bool {
	if len(links) == 0 {
		return false
	}
	for _, l := range links {
		if l.Enabled && !l.Configured() {
			return false
		}
	}
	return true
}

// Unconfigured returns the enabled links that are missing their map id or script code.
func Unconfigured(links []Link) []Link {
	var out []Link
	for _, l := range links {
		if l.Enabled && !l.Configured() {
			out = append(out, l)
		}
	}
	return out
}
