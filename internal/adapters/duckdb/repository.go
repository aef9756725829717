// Package duckdb persists workflows, execution records and OAuth credentials
// in an embedded DuckDB database. Nested structures (steps, logs, tokens) are
// stored as JSON columns and upserted with ON CONFLICT.
package duckdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/pontoonhq/pontoon/internal/core/ports"
)

type Repository struct {
	db *sql.DB
}

var (
	_ ports.WorkflowRepository  = (*Repository)(nil)
	_ ports.ExecutionRepository = (*Repository)(nil)
	_ ports.CredentialStore     = (*Repository)(nil)
)

// NewRepository opens (or creates) the database at path and runs migrations.
// An empty path opens an in-memory database, used by tests.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb at %q: %w", path, err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id          VARCHAR PRIMARY KEY,
			name        VARCHAR NOT NULL,
			description VARCHAR,
			trigger     VARCHAR NOT NULL,
			agent       VARCHAR NOT NULL,
			steps       VARCHAR NOT NULL,
			status      VARCHAR NOT NULL,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id           VARCHAR PRIMARY KEY,
			workflow_id  VARCHAR NOT NULL,
			status       VARCHAR NOT NULL,
			started_at   TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			input        VARCHAR,
			output       VARCHAR,
			errors       VARCHAR,
			logs         VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id    VARCHAR NOT NULL,
			tool       VARCHAR NOT NULL,
			tokens     VARCHAR NOT NULL,
			PRIMARY KEY (user_id, tool)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
