package state

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chescofire/cadwatch/internal/cad"
	"github.com/chescofire/cadwatch/internal/dedup"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool used for state snapshots.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore keeps one row per remembered incident. Each save replaces
// the whole table inside a transaction; the state is a snapshot, not a log,
// and stays small because entries expire with the retention horizon.
type PostgresStore struct {
	pool  pgxPool
	table string
}

// NewPostgresStore connects a pool and ensures the state table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "cad_incidents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &PostgresStore{pool: pool, table: table}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing). The schema is not touched.
func NewPostgresStoreWithPool(pool pgxPool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cad_incidents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the state table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identity_key TEXT PRIMARY KEY,
	snapshot JSONB NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads every remembered incident.
func (s *PostgresStore) Load(ctx context.Context) (dedup.State, error) {
	query := fmt.Sprintf("SELECT identity_key, snapshot, first_seen, last_seen FROM %s", s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	st := dedup.State{}
	for rows.Next() {
		var (
			key      string
			snapshot []byte
			known    dedup.Known
		)
		if err := rows.Scan(&key, &snapshot, &known.FirstSeen, &known.LastSeen); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		var rec cad.Incident
		if err := json.Unmarshal(snapshot, &rec); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
		}
		known.Record = rec
		st[key] = known
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state rows: %w", err)
	}
	return st.Normalize(), nil
}

// Save replaces the stored snapshot with st.
func (s *PostgresStore) Save(ctx context.Context, st dedup.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin state save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (identity_key, snapshot, first_seen, last_seen) VALUES ($1,$2,$3,$4)",
		s.table,
	)
	for key, known := range st {
		snapshot, err := json.Marshal(known.Record)
		if err != nil {
			return fmt.Errorf("encode snapshot %s: %w", key, err)
		}
		if _, err := tx.Exec(ctx, insert, key, snapshot, known.FirstSeen, known.LastSeen); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit state save: %w", err)
	}
	return nil
}
