package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/state"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS mapsmith_maps (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		body       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mapsmith_chains (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		body       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// PostgresStore keeps maps and chains as JSONB rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool of at most maxConns connections.
func NewPostgresStore(ctx context.Context, connStr string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the store tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating store tables: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadMap(ctx context.Context, id string) (*state.MapState, error) {
	body, err := s.body(ctx, "SELECT body FROM mapsmith_maps WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", id, err)
	}
	return decodeMap(body)
}

func (s *PostgresStore) SaveMap(ctx context.Context, m *state.MapState) error {
	prepareMap(m)
	body, err := encodeBody(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO mapsmith_maps (id, name, body, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		m.ID, m.Name, body, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving map %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) LoadChain(ctx context.Context, id string) (*chain.MapChain, error) {
	body, err := s.body(ctx, "SELECT body FROM mapsmith_chains WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", id, err)
	}
	return decodeChain(body)
}

func (s *PostgresStore) SaveChain(ctx context.Context, c *chain.MapChain) error {
	prepareChain(c)
	body, err := encodeBody(c)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO mapsmith_chains (id, name, body, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, body, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving chain %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListChains(ctx context.Context) ([]chain.MapChain, error) {
	rows, err := s.pool.Query(ctx, "SELECT body FROM mapsmith_chains ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}
	defer rows.Close()

	var chains []chain.MapChain
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning chain: %w", err)
		}
		c, err := decodeChain(body)
		if err != nil {
			return nil, err
		}
		chains = append(chains, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chains: %w", err)
	}
	return chains, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) body(ctx context.Context, sql, id string) ([]byte, error) {
	var body []byte
	if err := s.pool.QueryRow(ctx, sql, id).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return body, nil
}
