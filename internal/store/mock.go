package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/state"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	Maps   map[string]*state.MapState
	Chains map[string]*chain.MapChain

	LoadErr  error
	SaveErr  error
	ListErr  error
	CloseErr error

	mu         sync.Mutex
	SavedMaps  []string
	SavedChain []string
	Closed     bool
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Maps:   make(map[string]*state.MapState),
		Chains: make(map[string]*chain.MapChain),
	}
}

func (m *MockStore) LoadMap(_ context.Context, id string) (*state.MapState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	s, ok := m.Maps[id]
	if !ok {
		return nil, fmt.Errorf("map %s: %w", id, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MockStore) SaveMap(_ context.Context, s *state.MapState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	prepareMap(s)
	cp := *s
	m.Maps[s.ID] = &cp
	m.SavedMaps = append(m.SavedMaps, s.ID)
	return nil
}

func (m *MockStore) LoadChain(_ context.Context, id string) (*chain.MapChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	c, ok := m.Chains[id]
	if !ok {
		return nil, fmt.Errorf("chain %s: %w", id, ErrNotFound)
	}
	cp := *c
	cp.Links = append([]chain.Link(nil), c.Links...)
	return &cp, nil
}

func (m *MockStore) SaveChain(_ context.Context, c *chain.MapChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	prepareChain(c)
	cp := *c
	cp.Links = append([]chain.Link(nil), c.Links...)
	m.Chains[c.ID] = &cp
	m.SavedChain = append(m.SavedChain, c.ID)
	return nil
}

func (m *MockStore) ListChains(_ context.Context) ([]chain.MapChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]chain.MapChain, 0, len(m.Chains))
	for _, c := range m.Chains {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseErr
}
