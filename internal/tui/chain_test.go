package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/report"
)

func testChain() chain.MapChain {
	return chain.MapChain{
		ID:   "c1",
		Name: "people",
		Links: []chain.Link{
			{ID: "a", Type: chain.LinkMap, Name: "rename", Enabled: true, MapID: "m1"},
			{ID: "b", Type: chain.LinkScript, Name: "extract", Enabled: true, ScriptCode: "."},
		},
	}
}

func feed(t *testing.T, m ChainModel, events ...chain.Event) ChainModel {
	t.Helper()
	for _, ev := range events {
		next, _ := m.Update(eventMsg{ev: ev, ok: true})
		m = next.(ChainModel)
	}
	return m
}

func TestNewChainModel(t *testing.T) {
	m := NewChainModel(testChain(), nil, nil)
	if m.Finished() || m.Cancelled() {
		t.Error("should not be finished or cancelled initially")
	}
	v := m.View()
	if !strings.Contains(v, "people") || !strings.Contains(v, "rename") || !strings.Contains(v, "extract") {
		t.Errorf("view should list the chain and its links:\n%s", v)
	}
}

func TestChainModel_Completes(t *testing.T) {
	m := feed(t, NewChainModel(testChain(), nil, nil),
		chain.Event{Kind: chain.EventStepStart, LinkID: "a"},
		chain.Event{Kind: chain.EventStepComplete, LinkID: "a", Result: &chain.StepResult{LinkID: "a", Status: chain.StatusDone, DurationMs: 3}},
		chain.Event{Kind: chain.EventStepStart, LinkID: "b"},
		chain.Event{Kind: chain.EventStepComplete, LinkID: "b", Result: &chain.StepResult{LinkID: "b", Status: chain.StatusDone, DurationMs: 4}},
		chain.Event{Kind: chain.EventChainComplete, Output: "Ada"},
	)

	if !m.Finished() {
		t.Fatal("expected model to be finished")
	}
	v := m.View()
	if !strings.Contains(v, "Chain completed") || !strings.Contains(v, "Ada") {
		t.Errorf("view should show completion and output:\n%s", v)
	}

	rep := m.Report()
	if rep.Status != report.StatusCompleted || rep.Output != "Ada" || rep.TotalDurationMs != 7 {
		t.Errorf("unexpected report %+v", rep)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Error("enter should quit once finished")
	}
}

func TestChainModel_Failure(t *testing.T) {
	m := feed(t, NewChainModel(testChain(), nil, nil),
		chain.Event{Kind: chain.EventStepStart, LinkID: "a"},
		chain.Event{Kind: chain.EventStepComplete, LinkID: "a", Result: &chain.StepResult{LinkID: "a", Status: chain.StatusError, Error: "boom"}},
		chain.Event{Kind: chain.EventChainError, LinkID: "a", Error: "boom"},
	)

	v := m.View()
	if !strings.Contains(v, "Failed at a: boom") {
		t.Errorf("view should show the failure:\n%s", v)
	}
	rep := m.Report()
	if rep.Status != report.StatusFailed || rep.FailedLink != "a" {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.Steps[1].Status != chain.StatusPending {
		t.Errorf("expected unreached link to stay pending, got %s", rep.Steps[1].Status)
	}
}

func TestChainModel_CancelStopsRun(t *testing.T) {
	called := false
	m := NewChainModel(testChain(), nil, func() { called = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	rm := next.(ChainModel)
	if !rm.Cancelled() || !called {
		t.Error("q should cancel the run")
	}
	if cmd == nil {
		t.Error("q should quit")
	}
}

func TestChainModel_ClosedStreamFinishes(t *testing.T) {
	m := NewChainModel(testChain(), nil, nil)
	next, _ := m.Update(eventMsg{ok: false})
	if !next.(ChainModel).Finished() {
		t.Error("a closed stream should finish the model")
	}
}

func TestWaitForEvent(t *testing.T) {
	ch := make(chan chain.Event, 1)
	ch <- chain.Event{Kind: chain.EventStepStart, LinkID: "a"}
	close(ch)

	msg := waitForEvent(ch)().(eventMsg)
	if !msg.ok || msg.ev.LinkID != "a" {
		t.Errorf("unexpected first message %+v", msg)
	}
	if msg := waitForEvent(ch)().(eventMsg); msg.ok {
		t.Error("expected closed stream")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}
