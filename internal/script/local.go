package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itchyny/gojq"
	"go.starlark.net/starlark"
	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/syntax"

	"github.com/mapsmith/mapsmith/internal/codegen"
	"github.com/mapsmith/mapsmith/internal/state"
)

const (
	DefaultMaxSteps = uint64(1_000_000)
	DefaultTimeout  = 5 * time.Second

	maxScriptBytes = 1 << 20
	entryPoint     = "transform"
)

// Local runs Starlark and jq in process. Starlark programs must define
// transform(input); jq programs are filters over the payload.
type Local struct {
	MaxSteps uint64
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewLocal creates a local backend. Zero limits select the defaults.
func NewLocal(maxSteps uint64, timeout time.Duration, logger *slog.Logger) *Local {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Local{MaxSteps: maxSteps, Timeout: timeout, Logger: logger}
}

// CanGenerate reports whether Generate supports lang.
func (l *Local) CanGenerate(lang string) bool {
	return lang == LangStarlark
}

// CanExecute reports whether Execute supports lang.
func (l *Local) CanExecute(lang string) bool {
	return lang == LangStarlark || lang == LangJQ
}

func (l *Local) Generate(_ context.Context, s state.MapState, language string) (string, error) {
	lang := NormalizeLanguage(language)
	if !l.CanGenerate(lang) {
		return "", fmt.Errorf("generating %s locally: %w", lang, ErrUnsupportedLanguage)
	}
	code, err := codegen.Generate(s)
	if err != nil {
		return "", fmt.Errorf("generating starlark for map %q: %w", s.Name, err)
	}
	return code, nil
}

func (l *Local) Execute(ctx context.Context, language, code, payload string) (string, error) {
	if len(code) > maxScriptBytes {
		return "", fmt.Errorf("script exceeds %d bytes", maxScriptBytes)
	}
	switch lang := NormalizeLanguage(language); lang {
	case LangStarlark:
		return l.runStarlark(ctx, code, payload)
	case LangJQ:
		return l.runJQ(ctx, code, payload)
	default:
		return "", fmt.Errorf("executing %s locally: %w", lang, ErrUnsupportedLanguage)
	}
}

func (l *Local) runStarlark(ctx context.Context, code, payload string) (string, error) {
	thread := &starlark.Thread{
		Name: "mapsmith-script",
		Print: func(_ *starlark.Thread, msg string) {
			l.Logger.Debug("script print", "msg", msg)
		},
	}
	thread.SetMaxExecutionSteps(l.MaxSteps)

	var output string
	err := l.runWithDeadline(ctx, thread, func() error {
		globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "script.star", code, predeclared)
		if err != nil {
			return err
		}
		fn, ok := globals[entryPoint].(starlark.Callable)
		if !ok {
			return fmt.Errorf("script must define %s(input)", entryPoint)
		}

		input, err := decodePayload(thread, payload)
		if err != nil {
			return err
		}
		result, err := starlark.Call(thread, fn, starlark.Tuple{input}, nil)
		if err != nil {
			return err
		}
		output, err = encodeResult(thread, result)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("running starlark: %w", err)
	}
	return output, nil
}

// runWithDeadline cancels the thread when the timeout elapses or ctx ends.
func (l *Local) runWithDeadline(ctx context.Context, thread *starlark.Thread, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(l.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("execution timed out")
		<-done
		return fmt.Errorf("execution timed out after %s", l.Timeout)
	case <-ctx.Done():
		thread.Cancel("context canceled")
		<-done
		return ctx.Err()
	}
}

// decodePayload hands JSON payloads to scripts as Starlark values and
// anything else as a plain string.
func decodePayload(thread *starlark.Thread, payload string) (starlark.Value, error) {
	if !json.Valid([]byte(payload)) {
		return starlark.String(payload), nil
	}
	v, err := starlark.Call(thread, starlarkjson.Module.Members["decode"], starlark.Tuple{starlark.String(payload)}, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	return v, nil
}

// encodeResult returns string results verbatim and JSON-encodes the rest.
func encodeResult(thread *starlark.Thread, v starlark.Value) (string, error) {
	if s, ok := v.(starlark.String); ok {
		return string(s), nil
	}
	out, err := starlark.Call(thread, starlarkjson.Module.Members["encode"], starlark.Tuple{v}, nil)
	if err != nil {
		return "", fmt.Errorf("encoding output: %w", err)
	}
	s, _ := starlark.AsString(out)
	return s, nil
}

func (l *Local) runJQ(ctx context.Context, code, payload string) (string, error) {
	query, err := gojq.Parse(code)
	if err != nil {
		return "", fmt.Errorf("parsing jq: %w", err)
	}
	compiled, err := gojq.Compile(query)
	if err != nil {
		return "", fmt.Errorf("compiling jq: %w", err)
	}

	var input any
	if err := json.Unmarshal([]byte(payload), &input); err != nil {
		input = payload
	}

	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	var results []any
	iter := compiled.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return "", fmt.Errorf("running jq: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return "", nil
	case 1:
		if s, ok := results[0].(string); ok {
			return s, nil
		}
		out, err := json.Marshal(results[0])
		if err != nil {
			return "", fmt.Errorf("encoding jq output: %w", err)
		}
		return string(out), nil
	default:
		out, err := json.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("encoding jq output: %w", err)
		}
		return string(out), nil
	}
}
