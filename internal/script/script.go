// Package script generates and executes transformation scripts. Two
// interchangeable backends implement Runner: Local runs Starlark and jq in
// process, Remote delegates to an HTTP script runtime. Registry picks one per
// language.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mapsmith/mapsmith/internal/state"
)

// Languages understood by the in-process backend.
const (
	LangStarlark = "starlark"
	LangJQ       = "jq"
)

// ErrUnsupportedLanguage is returned when no backend handles a language.
var ErrUnsupportedLanguage = errors.New("unsupported script language")

// Runner generates code for a map and executes code against a payload.
type Runner interface {
	Generate(ctx context.Context, s state.MapState, language string) (string, error)
	Execute(ctx context.Context, language, code, payload string) (string, error)
}

// NormalizeLanguage lower-cases a language name and applies the default.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return LangStarlark
	}
	return lang
}

// Registry routes each call to the local backend when it handles the
// language and to the remote backend otherwise.
type Registry struct {
	Local  *Local
	Remote *Remote
}

// NewRegistry builds a registry. remote may be nil.
func NewRegistry(local *Local, remote *Remote) *Registry {
	return &Registry{Local: local, Remote: remote}
}

func (r *Registry) Generate(ctx context.Context, s state.MapState, language string) (string, error) {
	lang := NormalizeLanguage(language)
	if r.Local != nil && r.Local.CanGenerate(lang) {
		return r.Local.Generate(ctx, s, lang)
	}
	if r.Remote != nil {
		return r.Remote.Generate(ctx, s, lang)
	}
	return "", fmt.Errorf("generating %s: %w", lang, ErrUnsupportedLanguage)
}

func (r *Registry) Execute(ctx context.Context, language, code, payload string) (string, error) {
	lang := NormalizeLanguage(language)
	if r.Local != nil && r.Local.CanExecute(lang) {
		return r.Local.Execute(ctx, lang, code, payload)
	}
	if r.Remote != nil {
		return r.Remote.Execute(ctx, lang, code, payload)
	}
	return "", fmt.Errorf("executing %s: %w", lang, ErrUnsupportedLanguage)
}
