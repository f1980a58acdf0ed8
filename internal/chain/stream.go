package chain

import "context"

// EventKind identifies a run event.
type EventKind string

const (
	EventStepStart     EventKind = "step_start"
	EventStepComplete  EventKind = "step_complete"
	EventChainComplete EventKind = "chain_complete"
	EventChainError    EventKind = "chain_error"
)

// Event is one notification from a streamed run.
type Event struct {
	Kind   EventKind   `json:"kind"`
	LinkID string      `json:"linkId,omitempty"`
	Result *StepResult `json:"result,omitempty"`
	Output string      `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Terminal reports whether the event ends the run.
func (ev Event) Terminal() bool {
	return ev.Kind == EventChainComplete || ev.Kind == EventChainError
}

// Stream runs the chain in the background and returns its events in order.
// The channel ends with exactly one terminal event and is then closed. It is
// buffered for the whole run, so an abandoned reader never blocks the run.
func (e *Executor) Stream(ctx context.Context, links []Link, input string) <-chan Event {
	ch := make(chan Event, 2*len(links)+1)
	go func() {
		defer close(ch)
		e.Execute(ctx, links, input, Callbacks{
			OnStepStart: func(id string) {
				ch <- Event{Kind: EventStepStart, LinkID: id}
			},
			OnStepComplete: func(res StepResult) {
				ch <- Event{Kind: EventStepComplete, LinkID: res.LinkID, Result: &res}
			},
			OnChainComplete: func(output string) {
				ch <- Event{Kind: EventChainComplete, Output: output}
			},
			OnChainError: func(id, msg string) {
				ch <- Event{Kind: EventChainError, LinkID: id, Error: msg}
			},
		})
	}()
	return ch
}
