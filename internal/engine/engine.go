package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mapsmith/mapsmith/internal/bridge"
	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/config"
	"github.com/mapsmith/mapsmith/internal/mapping"
	"github.com/mapsmith/mapsmith/internal/report"
	"github.com/mapsmith/mapsmith/internal/script"
	"github.com/mapsmith/mapsmith/internal/state"
	"github.com/mapsmith/mapsmith/internal/store"
)

// ErrNotExecutable is returned when a chain has no links or an enabled link
// is missing its configuration.
var ErrNotExecutable = errors.New("chain is not executable")

// Engine is the core shared by the CLI and the API.
type Engine struct {
	Config  *config.Config
	Store   store.Store
	Scripts script.Runner
	Logger  *slog.Logger

	executor *chain.Executor

	mu      sync.Mutex
	running map[string]*activeRun
}

// activeRun is one in-flight run of a chain. Its address identifies the run
// so a finished run never unregisters a newer one.
type activeRun struct {
	cancel context.CancelFunc
}

// New creates an engine over an open store. Script backends are built from
// the runtime section of cfg.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rt := cfg.Runtime
	local := script.NewLocal(rt.MaxSteps, rt.Timeout, logger)
	var remote *script.Remote
	if rt.RemoteURL != "" {
		remote = script.NewRemote(rt.RemoteURL, rt.RemoteToken, rt.RetryMax, rt.Timeout, logger)
	}
	return NewWithRunner(cfg, st, script.NewRegistry(local, remote), logger)
}

// NewWithRunner creates an engine with an explicit script runner.
func NewWithRunner(cfg *config.Config, st store.Store, runner script.Runner, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		Config:   cfg,
		Store:    st,
		Scripts:  runner,
		Logger:   logger,
		executor: chain.NewExecutor(st, runner, logger),
		running:  make(map[string]*activeRun),
	}
}

// Close releases the store.
func (e *Engine) Close() error {
	if e.Store == nil {
		return nil
	}
	return e.Store.Close()
}

// ParseDSL parses DSL text into mappings and per-line diagnostics.
func (e *Engine) ParseDSL(text string) mapping.Result {
	return mapping.Parse(text)
}

// GenerateDSL renders mappings back to DSL text.
func (e *Engine) GenerateDSL(mappings []mapping.Mapping) string {
	return mapping.Generate(mappings)
}

// MapToDSL renders a stored map as DSL text.
func (e *Engine) MapToDSL(ctx context.Context, mapID string) (string, error) {
	m, err := e.Store.LoadMap(ctx, mapID)
	if err != nil {
		return "", err
	}
	return bridge.StateToDSL(*m), nil
}

// ApplyDSLToMap applies DSL text to a stored map. The map is saved only when
// the text parses cleanly; warnings are logged and returned either way.
func (e *Engine) ApplyDSLToMap(ctx context.Context, mapID, text string) (*bridge.Result, error) {
	m, err := e.Store.LoadMap(ctx, mapID)
	if err != nil {
		return nil, err
	}

	res := bridge.ApplyDSL(text, *m)
	for _, w := range res.Warnings {
		e.Logger.Warn("dsl mapping warning", "map_id", mapID, "line", w.Line, "warning", w.Message)
	}
	if len(res.Errors) > 0 {
		e.Logger.Info("dsl rejected", "map_id", mapID, "errors", len(res.Errors))
		return &res, nil
	}

	updated := res.State
	if err := e.Store.SaveMap(ctx, &updated); err != nil {
		return nil, fmt.Errorf("saving map %s: %w", mapID, err)
	}
	res.State = updated
	e.Logger.Info("dsl applied", "map_id", mapID, "references", len(updated.References))
	return &res, nil
}

// GenerateScript produces executable code for a stored map. An empty
// language means the map's own language.
func (e *Engine) GenerateScript(ctx context.Context, mapID, language string) (string, error) {
	m, err := e.Store.LoadMap(ctx, mapID)
	if err != nil {
		return "", err
	}
	if language == "" {
		language = m.ScriptLanguage()
	}
	return e.Scripts.Generate(ctx, *m, language)
}

// CheckResult says whether a chain can run and which links block it.
type CheckResult struct {
	Executable   bool     `json:"executable"`
	Unconfigured []string `json:"unconfigured,omitempty"`
}

// CheckChain reports whether links form an executable chain.
func (e *Engine) CheckChain(links []chain.Link) CheckResult {
	res := CheckResult{Executable: chain.IsExecutable(links)}
	for _, l := range chain.Unconfigured(links) {
		res.Unconfigured = append(res.Unconfigured, l.ID)
	}
	return res
}

// RunChain runs links over input and reports progress through cb.
func (e *Engine) RunChain(ctx context.Context, links []chain.Link, input string, cb chain.Callbacks) {
	e.executor.Execute(ctx, e.withDefaults(links), input, cb)
}

// StreamChain runs links in the background and returns their events.
func (e *Engine) StreamChain(ctx context.Context, links []chain.Link, input string) <-chan chain.Event {
	return e.executor.Stream(ctx, e.withDefaults(links), input)
}

// RunChainByID loads a stored chain and runs it to completion. An empty
// input falls back to the chain's test input. Progress is forwarded to cb;
// the returned report covers the whole run.
func (e *Engine) RunChainByID(ctx context.Context, chainID, input string, cb chain.Callbacks) (*report.RunReport, error) {
	c, err := e.LoadChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if !chain.IsExecutable(c.Links) {
		return nil, fmt.Errorf("chain %s: %w", chainID, ErrNotExecutable)
	}
	if input == "" {
		input = c.TestInput
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{cancel: cancel}
	e.mu.Lock()
	if prev, ok := e.running[chainID]; ok {
		prev.cancel()
	}
	e.running[chainID] = run
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		if e.running[chainID] == run {
			delete(e.running, chainID)
		}
		e.mu.Unlock()
	}()

	rec := report.NewRecorder(*c)
	e.Logger.Info("chain run started", "chain_id", chainID, "links", len(c.Links))
	e.RunChain(runCtx, c.Links, input, rec.Callbacks(cb))
	rep := rec.Report()
	e.Logger.Info("chain run finished", "chain_id", chainID, "status", rep.Status, "duration_ms", rep.TotalDurationMs)
	return rep, nil
}

// CancelChain stops a running chain before its next step. It reports whether
// a run was found.
func (e *Engine) CancelChain(chainID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.running[chainID]
	if ok {
		run.cancel()
	}
	return ok
}

// LoadMap returns a stored map.
func (e *Engine) LoadMap(ctx context.Context, id string) (*state.MapState, error) {
	return e.Store.LoadMap(ctx, id)
}

// SaveMap stores a map, assigning an id when it has none.
func (e *Engine) SaveMap(ctx context.Context, m *state.MapState) error {
	return e.Store.SaveMap(ctx, m)
}

// LoadChain returns a stored chain.
func (e *Engine) LoadChain(ctx context.Context, id string) (*chain.MapChain, error) {
	return e.Store.LoadChain(ctx, id)
}

// SaveChain stores a chain, assigning ids where missing.
func (e *Engine) SaveChain(ctx context.Context, c *chain.MapChain) error {
	return e.Store.SaveChain(ctx, c)
}

// ListChains returns every stored chain.
func (e *Engine) ListChains(ctx context.Context) ([]chain.MapChain, error) {
	return e.Store.ListChains(ctx)
}

// withDefaults fills in the configured language for script links without one.
func (e *Engine) withDefaults(links []chain.Link) []chain.Link {
	lang := e.Config.Runtime.DefaultLanguage
	if lang == "" {
		return links
	}
	out := make([]chain.Link, len(links))
	for i, l := range links {
		if l.Type == chain.LinkScript && l.ScriptLanguage == "" {
			l.ScriptLanguage = lang
		}
		out[i] = l
	}
	return out
}
