// Package duckdb implements the alteration backend on DuckDB.
// Single rows are written with INSERT; bulk loads go through the Appender API
// inside one transaction.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

var _ alteration.Backend = (*Store)(nil)

// Store manages a DuckDB connection holding genes, case lists and
// alteration rows.
type Store struct {
	db *sql.DB
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS gene (
		entrez_gene_id BIGINT PRIMARY KEY,
		hugo_gene_symbol VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS genetic_profile_cases (
		genetic_profile_id BIGINT PRIMARY KEY,
		ordered_case_list VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS genetic_alteration (
		genetic_profile_id BIGINT NOT NULL,
		entrez_gene_id BIGINT NOT NULL,
		values_json VARCHAR NOT NULL,
		PRIMARY KEY (genetic_profile_id, entrez_gene_id)
	)`,
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes all genes, case lists and alteration rows.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"genetic_alteration", "genetic_profile_cases", "gene"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// isConstraintError reports whether err is a DuckDB primary key or unique
// constraint violation.
func isConstraintError(err error) bool {
	var dErr *goduckdb.Error
	if errors.As(err, &dErr) && dErr.Type == goduckdb.ErrorTypeConstraint {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") || strings.Contains(msg, "Constraint Error")
}
