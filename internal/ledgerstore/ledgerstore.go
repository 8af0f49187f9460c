// Package ledgerstore is an optional, non-authoritative Postgres projection
// of the promotion ledger, for audit queries across runs. The in-memory and
// filesystem-backed promotion ledger (internal/promotion) remains the only
// state consulted during a promotion's preflight check; this store is never
// read back into that decision, only written to after the fact.
package ledgerstore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/McElyea/orket-kernel/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a PostgreSQL connection pool holding the run_ledger mirror.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a connection pool against cfg and verifies connectivity.
func New(cfg config.DatabaseConfig) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse ledgerstore dsn: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open ledgerstore pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledgerstore: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations applies the run_ledger schema.
func (s *Store) RunMigrations(cfg config.DatabaseConfig) error {
	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledgerstore migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("ledgerstore migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run ledgerstore migrations: %w", err)
	}
	return nil
}

// Entry is one audit row of the run_ledger mirror.
type Entry struct {
	RunID       string
	TurnID      string
	OutcomeCode string
	CommittedAt time.Time
	Details     map[string]any
}

// RecordPromotion inserts (or, on a duplicate run_id+turn_id, ignores) one
// promotion outcome. Insertion is best-effort from the caller's perspective:
// the promotion itself has already committed against the filesystem ledger
// by the time this is called.
func (s *Store) RecordPromotion(ctx context.Context, runID, turnID, outcomeCode string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal ledger details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_ledger (run_id, turn_id, outcome_code, details)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, turn_id) DO NOTHING`,
		runID, turnID, outcomeCode, data)
	return err
}

// ListForRun returns every recorded promotion outcome for runID, oldest first.
func (s *Store) ListForRun(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, turn_id, outcome_code, committed_at, details
		 FROM run_ledger WHERE run_id = $1 ORDER BY committed_at ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.RunID, &e.TurnID, &e.OutcomeCode, &e.CommittedAt, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
