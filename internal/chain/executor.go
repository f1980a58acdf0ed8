package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mapsmith/mapsmith/internal/state"
)

// MapLoader loads saved maps for map links.
type MapLoader interface {
	LoadMap(ctx context.Context, id string) (*state.MapState, error)
}

// Runner generates and executes step code.
type Runner interface {
	Generate(ctx context.Context, s state.MapState, language string) (string, error)
	Execute(ctx context.Context, language, code, payload string) (string, error)
}

// Callbacks receive the progress of a run. Any of them may be nil. Exactly
// one of OnChainComplete and OnChainError is called per run.
type Callbacks struct {
	OnStepStart     func(linkID string)
	OnStepComplete  func(result StepResult)
	OnChainComplete func(output string)
	OnChainError    func(linkID, message string)
}

// Executor runs chains one step at a time.
type Executor struct {
	loader MapLoader
	runner Runner
	logger *slog.Logger
}

// NewExecutor creates an executor. A nil logger discards log output.
func NewExecutor(loader MapLoader, runner Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{loader: loader, runner: runner, logger: logger}
}

// Execute runs links in order over input. Each step's output feeds the next;
// disabled links pass their input through untouched. The first failing step
// ends the run. Execute blocks until the run ends and reports every outcome
// through cb, never through a return value or panic.
func (e *Executor) Execute(ctx context.Context, links []Link, input string, cb Callbacks) {
	payload := input

	for _, link := range links {
		if !link.Enabled {
			res := StepResult{LinkID: link.ID, Status: StatusSkipped, Output: payload}
			e.logger.Debug("chain step skipped", "link_id", link.ID)
			cb.stepComplete(res)
			continue
		}

		if err := ctx.Err(); err != nil {
			res := StepResult{LinkID: link.ID, Status: StatusError, Error: err.Error()}
			cb.stepComplete(res)
			e.fail(cb, link.ID, res.Error)
			return
		}

		e.logger.Debug("chain step started", "link_id", link.ID, "type", link.Type, "name", link.DisplayName())
		cb.stepStart(link.ID)

		start := time.Now()
		output, err := e.runStep(ctx, link, payload)
		res := StepResult{
			LinkID:     link.ID,
			Status:     StatusDone,
			Output:     output,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			res.Status = StatusError
			res.Output = ""
			res.Error = err.Error()
		}

		e.logger.Info("chain step completed", "link_id", link.ID, "status", res.Status, "duration_ms", res.DurationMs)
		cb.stepComplete(res)

		if err != nil {
			e.fail(cb, link.ID, res.Error)
			return
		}
		payload = output
	}

	if cb.OnChainComplete != nil {
		cb.OnChainComplete(payload)
	}
}

func (e *Executor) fail(cb Callbacks, linkID, message string) {
	e.logger.Warn("chain failed", "link_id", linkID, "error", message)
	if cb.OnChainError != nil {
		cb.OnChainError(linkID, message)
	}
}

// runStep does one link's work. Panics are converted to errors.
func (e *Executor) runStep(ctx context.Context, link Link, payload string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in step %s: %v", link.ID, r)
		}
	}()

	switch link.Type {
	case LinkMap:
		return e.runMap(ctx, link, payload)
	case LinkScript:
		if link.ScriptCode == "" {
			return "", fmt.Errorf("script link %s has no code", link.ID)
		}
		return e.runner.Execute(ctx, link.ScriptLanguage, link.ScriptCode, payload)
	default:
		return "", fmt.Errorf("unknown link type %q", link.Type)
	}
}

func (e *Executor) runMap(ctx context.Context, link Link, payload string) (string, error) {
	if link.MapID == "" {
		return "", fmt.Errorf("map link %s has no map", link.ID)
	}
	m, err := e.loader.LoadMap(ctx, link.MapID)
	if err != nil {
		return "", fmt.Errorf("loading map %s: %w", link.MapID, err)
	}

	lang := m.ScriptLanguage()
	code, err := e.runner.Generate(ctx, *m, lang)
	if err != nil {
		return "", fmt.Errorf("generating %s for map %s: %w", lang, link.MapID, err)
	}
	return e.runner.Execute(ctx, lang, code, payload)
}

func (cb Callbacks) stepStart(linkID string) {
	if cb.OnStepStart != nil {
		cb.OnStepStart(linkID)
	}
}

func (cb Callbacks) stepComplete(res StepResult) {
	if cb.OnStepComplete != nil {
		cb.OnStepComplete(res)
	}
}
