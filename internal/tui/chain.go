// Package tui renders chain runs in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/report"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// eventMsg carries the next streamed event. ok is false once the stream closes.
type eventMsg struct {
	ev chain.Event
	ok bool
}

func waitForEvent(events <-chan chain.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{ev: ev, ok: ok}
	}
}

// ChainModel is the bubbletea model for a live chain run.
type ChainModel struct {
	chain    chain.MapChain
	events   <-chan chain.Event
	cancel   context.CancelFunc
	rec      *report.Recorder
	statuses map[string]chain.Status
	errors   map[string]string
	spinner  spinner.Model

	output    string
	failed    string
	errMsg    string
	finished  bool
	cancelled bool
	width     int
}

// NewChainModel creates a model that follows events from a run of c. cancel
// stops the run when the user quits early; it may be nil.
func NewChainModel(c chain.MapChain, events <-chan chain.Event, cancel context.CancelFunc) ChainModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = highlightStyle

	statuses := make(map[string]chain.Status, len(c.Links))
	for _, l := range c.Links {
		statuses[l.ID] = chain.StatusPending
	}
	return ChainModel{
		chain:    c,
		events:   events,
		cancel:   cancel,
		rec:      report.NewRecorder(c),
		statuses: statuses,
		errors:   make(map[string]string),
		spinner:  s,
		width:    80,
	}
}

func (m ChainModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m ChainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.finished {
				m.cancelled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, tea.Quit
		case "enter":
			if m.finished {
				return m, tea.Quit
			}
		}
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if !msg.ok {
			m.finished = true
			return m, nil
		}
		m.apply(msg.ev)
		if msg.ev.Terminal() {
			m.finished = true
			return m, nil
		}
		return m, waitForEvent(m.events)
	}

	return m, nil
}

// apply folds one event into the model.
func (m *ChainModel) apply(ev chain.Event) {
	m.rec.Observe(ev)
	switch ev.Kind {
	case chain.EventStepStart:
		m.statuses[ev.LinkID] = chain.StatusRunning
	case chain.EventStepComplete:
		if ev.Result != nil {
			m.statuses[ev.Result.LinkID] = ev.Result.Status
			if ev.Result.Error != "" {
				m.errors[ev.Result.LinkID] = ev.Result.Error
			}
		}
	case chain.EventChainComplete:
		m.output = ev.Output
	case chain.EventChainError:
		m.failed, m.errMsg = ev.LinkID, ev.Error
		if ev.LinkID != "" {
			m.statuses[ev.LinkID] = chain.StatusError
		}
	}
}

func (m ChainModel) View() string {
	var b strings.Builder

	name := m.chain.Name
	if name == "" {
		name = m.chain.ID
	}
	b.WriteString(titleStyle.Render("Chain: " + name))
	b.WriteString("\n\n")

	for i, l := range m.chain.Links {
		status := m.statuses[l.ID]
		var icon string
		switch status {
		case chain.StatusRunning:
			icon = m.spinner.View()
		case chain.StatusDone:
			icon = successStyle.Render("OK")
		case chain.StatusError:
			icon = errStyle.Render("XX")
		case chain.StatusSkipped:
			icon = dimStyle.Render("--")
		default:
			icon = dimStyle.Render("..")
		}
		line := fmt.Sprintf("  %s %d. %-30s %s", icon, i+1, l.DisplayName(), dimStyle.Render(string(l.Type)))
		if msg, ok := m.errors[l.ID]; ok {
			line += " " + errStyle.Render(msg)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.cancelled:
		b.WriteString(errStyle.Render("  Cancelled"))
		b.WriteString("\n")
	case m.failed != "" || m.errMsg != "":
		b.WriteString(errStyle.Render(fmt.Sprintf("  Failed at %s: %s", m.failed, m.errMsg)))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Press enter to exit"))
	case m.finished:
		b.WriteString(successStyle.Render("  Chain completed"))
		b.WriteString("\n\n")
		b.WriteString(truncate(m.output, m.width*10))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("  Press enter to exit"))
	default:
		b.WriteString(dimStyle.Render("  q: cancel run"))
	}

	return b.String()
}

// Finished reports whether the run has ended.
func (m ChainModel) Finished() bool {
	return m.finished
}

// Cancelled reports whether the user stopped the run.
func (m ChainModel) Cancelled() bool {
	return m.cancelled
}

// Report returns the run report built from the events seen so far.
func (m ChainModel) Report() *report.RunReport {
	return m.rec.Report()
}

// Run shows a live view of a streamed run until the user exits, and returns
// the resulting report.
func Run(c chain.MapChain, events <-chan chain.Event, cancel context.CancelFunc) (*report.RunReport, error) {
	final, err := tea.NewProgram(NewChainModel(c, events, cancel)).Run()
	if err != nil {
		return nil, fmt.Errorf("running terminal view: %w", err)
	}
	m := final.(ChainModel)
	if m.Cancelled() {
		return m.Report(), context.Canceled
	}
	return m.Report(), nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
