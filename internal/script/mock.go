package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/mapsmith/mapsmith/internal/state"
)

// MockRunner is a test double for the Runner interface.
type MockRunner struct {
	// Code is returned by Generate, keyed by map id.
	Code        map[string]string
	GenerateErr error

	// Outputs maps code to the output Execute returns for it. Without an
	// entry, Execute echoes its payload.
	Outputs    map[string]string
	ExecuteErr map[string]error
	ExecuteFn  func(ctx context.Context, language, code, payload string) (string, error)

	mu        sync.Mutex
	Generated []string
	Executed  []ExecuteCall
}

// ExecuteCall records one Execute invocation.
type ExecuteCall struct {
	Language string
	Code     string
	Payload  string
}

func (m *MockRunner) Generate(_ context.Context, s state.MapState, _ string) (string, error) {
	m.mu.Lock()
	m.Generated = append(m.Generated, s.ID)
	m.mu.Unlock()

	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	if code, ok := m.Code[s.ID]; ok {
		return code, nil
	}
	return fmt.Sprintf("code:%s", s.ID), nil
}

func (m *MockRunner) Execute(ctx context.Context, language, code, payload string) (string, error) {
	m.mu.Lock()
	m.Executed = append(m.Executed, ExecuteCall{Language: language, Code: code, Payload: payload})
	m.mu.Unlock()

	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, language, code, payload)
	}
	if err, ok := m.ExecuteErr[code]; ok {
		return "", err
	}
	if out, ok := m.Outputs[code]; ok {
		return out, nil
	}
	return payload, nil
}

// Calls returns a snapshot of recorded Execute calls.
func (m *MockRunner) Calls() []ExecuteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecuteCall(nil), m.Executed...)
}
