package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/state"
)

// FileStore keeps one YAML file per map and per chain under a directory:
// <dir>/maps/<id>.yaml and <dir>/chains/<id>.yaml.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the directory layout if needed.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"maps", "chains"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadMap(_ context.Context, id string) (*state.MapState, error) {
	path, err := s.path("maps", id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := state.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("map %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

func (s *FileStore) SaveMap(_ context.Context, m *state.MapState) error {
	prepareMap(m)
	path, err := s.path("maps", m.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.Save(path)
}

func (s *FileStore) LoadChain(_ context.Context, id string) (*chain.MapChain, error) {
	path, err := s.path("chains", id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readChain(path, id)
}

func (s *FileStore) SaveChain(_ context.Context, c *chain.MapChain) error {
	prepareChain(c)
	path, err := s.path("chains", c.ID)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling chain: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing chain: %w", err)
	}
	return nil
}

// ListChains returns every chain ordered by name.
func (s *FileStore) ListChains(_ context.Context) ([]chain.MapChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "chains"))
	if err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}

	var chains []chain.MapChain
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".yaml")
		c, err := readChain(filepath.Join(s.dir, "chains", e.Name()), id)
		if err != nil {
			return nil, err
		}
		chains = append(chains, *c)
	}
	sort.Slice(chains, func(i, j int) bool {
		if chains[i].Name != chains[j].Name {
			return chains[i].Name < chains[j].Name
		}
		return chains[i].ID < chains[j].ID
	})
	return chains, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(kind, id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return filepath.Join(s.dir, kind, id+".yaml"), nil
}

func readChain(path, id string) (*chain.MapChain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("chain %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading chain: %w", err)
	}
	c := &chain.MapChain{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing chain %s: %w", id, err)
	}
	return c, nil
}
