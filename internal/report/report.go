// Package report summarizes chain runs.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mapsmith/mapsmith/internal/chain"
)

// Run outcomes.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunReport is the summary of one chain run.
type RunReport struct {
	Version         string        `json:"version"`
	GeneratedAt     time.Time     `json:"generated_at"`
	ChainID         string        `json:"chain_id,omitempty"`
	ChainName       string        `json:"chain_name,omitempty"`
	Status          string        `json:"status"`
	Steps           []StepSummary `json:"steps"`
	Output          string        `json:"output,omitempty"`
	FailedLink      string        `json:"failed_link,omitempty"`
	Error           string        `json:"error,omitempty"`
	TotalDurationMs int64         `json:"total_duration_ms"`
}

// StepSummary describes one link of the run.
type StepSummary struct {
	LinkID     string         `json:"link_id"`
	Name       string         `json:"name"`
	Type       chain.LinkType `json:"type"`
	Status     chain.Status   `json:"status"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Recorder collects executor callbacks into a RunReport.
type Recorder struct {
	mu      sync.Mutex
	c       chain.MapChain
	results []chain.StepResult
	output  string
	failed  string
	errMsg  string
}

// NewRecorder starts recording a run of c.
func NewRecorder(c chain.MapChain) *Recorder {
	return &Recorder{c: c}
}

// Callbacks returns executor callbacks that feed the recorder. Calls are
// forwarded to next when its fields are set.
func (r *Recorder) Callbacks(next chain.Callbacks) chain.Callbacks {
	return chain.Callbacks{
		OnStepStart: next.OnStepStart,
		OnStepComplete: func(res chain.StepResult) {
			r.mu.Lock()
			r.results = append(r.results, res)
			r.mu.Unlock()
			if next.OnStepComplete != nil {
				next.OnStepComplete(res)
			}
		},
		OnChainComplete: func(output string) {
			r.mu.Lock()
			r.output = output
			r.mu.Unlock()
			if next.OnChainComplete != nil {
				next.OnChainComplete(output)
			}
		},
		OnChainError: func(linkID, message string) {
			r.mu.Lock()
			r.failed, r.errMsg = linkID, message
			r.mu.Unlock()
			if next.OnChainError != nil {
				next.OnChainError(linkID, message)
			}
		},
	}
}

// Observe feeds one streamed event to the recorder.
func (r *Recorder) Observe(ev chain.Event) {
	cb := r.Callbacks(chain.Callbacks{})
	switch ev.Kind {
	case chain.EventStepComplete:
		if ev.Result != nil {
			cb.OnStepComplete(*ev.Result)
		}
	case chain.EventChainComplete:
		cb.OnChainComplete(ev.Output)
	case chain.EventChainError:
		cb.OnChainError(ev.LinkID, ev.Error)
	}
}

// Report builds the report from what has been recorded so far.
func (r *Recorder) Report() *RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return FromResults(r.c, r.results, r.output, r.failed, r.errMsg)
}

// FromResults builds a report from the step results of a finished run.
// Links that never reported a result are listed as pending.
func FromResults(c chain.MapChain, results []chain.StepResult, output, failedLink, errMsg string) *RunReport {
	byID := make(map[string]chain.StepResult, len(results))
	for _, res := range results {
		byID[res.LinkID] = res
	}

	rep := &RunReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		ChainID:     c.ID,
		ChainName:   c.Name,
		Status:      StatusCompleted,
		Output:      output,
		FailedLink:  failedLink,
		Error:       errMsg,
	}
	if failedLink != "" || errMsg != "" {
		rep.Status = StatusFailed
		rep.Output = ""
	}

	for _, l := range c.Links {
		s := StepSummary{LinkID: l.ID, Name: l.DisplayName(), Type: l.Type, Status: chain.StatusPending}
		if res, ok := byID[l.ID]; ok {
			s.Status = res.Status
			s.DurationMs = res.DurationMs
			s.Error = res.Error
			rep.TotalDurationMs += res.DurationMs
		}
		rep.Steps = append(rep.Steps, s)
	}
	return rep
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// FormatText renders the report as human-readable text.
func FormatText(report *RunReport) string {
	var b strings.Builder

	name := report.ChainName
	if name == "" {
		name = "(unnamed chain)"
	}
	fmt.Fprintf(&b, "=== Chain Run: %s ===\n", name)
	fmt.Fprintf(&b, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Status:    %s (%d ms)\n\n", strings.ToUpper(report.Status), report.TotalDurationMs)

	b.WriteString("Steps:\n")
	for i, s := range report.Steps {
		fmt.Fprintf(&b, "  %d. [%s] %s (%s, %d ms)\n", i+1, strings.ToUpper(string(s.Status)), s.Name, s.Type, s.DurationMs)
		if s.Error != "" {
			fmt.Fprintf(&b, "     error: %s\n", s.Error)
		}
	}

	if report.Status == StatusFailed {
		fmt.Fprintf(&b, "\nFailed at %s: %s\n", report.FailedLink, report.Error)
	} else {
		fmt.Fprintf(&b, "\nOutput:\n%s\n", report.Output)
	}
	return b.String()
}
