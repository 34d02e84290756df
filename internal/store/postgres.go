package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps agent state in a single key/value table, for
// deployments where the agent host has no durable local disk.
type PostgresStore struct {
	db         *sql.DB
	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewPostgresStore prepares statements against an existing connection.
// Call Migrate first on a fresh database.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}

	var err error
	s.getStmt, err = db.Prepare(`SELECT value FROM agent_state WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.setStmt, err = db.Prepare(`
		INSERT INTO agent_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare set statement: %w", err)
	}

	s.deleteStmt, err = db.Prepare(`DELETE FROM agent_state WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return s, nil
}

// Migrate creates the state table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS agent_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create agent_state table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.setStmt.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close releases the prepared statements. The connection itself belongs to
// the caller.
func (s *PostgresStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.setStmt, s.deleteStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
