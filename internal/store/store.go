// Package store persists maps and chains.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/config"
	"github.com/mapsmith/mapsmith/internal/state"
)

// ErrNotFound is returned when a map or chain does not exist.
var ErrNotFound = errors.New("not found")

// Store loads and saves maps and chains. Implementations are safe for
// concurrent use.
type Store interface {
	LoadMap(ctx context.Context, id string) (*state.MapState, error)
	SaveMap(ctx context.Context, m *state.MapState) error
	LoadChain(ctx context.Context, id string) (*chain.MapChain, error)
	SaveChain(ctx context.Context, c *chain.MapChain) error
	ListChains(ctx context.Context) ([]chain.MapChain, error)
	Close() error
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", config.StoreFile:
		return NewFileStore(config.ExpandHome(cfg.Directory))
	case config.StorePostgres:
		s, err := NewPostgresStore(ctx, cfg.ConnectionString, cfg.MaxConnections)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.StoreMongo:
		return NewMongoStore(ctx, cfg.ConnectionString, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// prepareMap gives a new map an id and stamps the update time.
func prepareMap(m *state.MapState) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.UpdatedAt = time.Now().UTC()
	if m.Target != nil {
		m.References = state.CollectReferences(m.Target)
	}
}

// prepareChain gives a new chain and its links ids and stamps the update time.
func prepareChain(c *chain.MapChain) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for i := range c.Links {
		if c.Links[i].ID == "" {
			c.Links[i].ID = uuid.NewString()
		}
	}
	c.UpdatedAt = time.Now().UTC()
}

// Database backends keep each record as a JSON body. Trees marshal through
// their own JSON codec, so the body is the same document the API serves.

func encodeBody(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	return string(data), nil
}

func decodeMap(body []byte) (*state.MapState, error) {
	m := &state.MapState{}
	if err := json.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("decoding map: %w", err)
	}
	return m, nil
}

func decodeChain(body []byte) (*chain.MapChain, error) {
	c := &chain.MapChain{}
	if err := json.Unmarshal(body, c); err != nil {
		return nil, fmt.Errorf("decoding chain: %w", err)
	}
	return c, nil
}
