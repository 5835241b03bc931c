// Package sqlite implements the alteration backend on SQLite using the pure Go
// modernc driver. Bulk loads run as one transaction with a prepared insert.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

var _ alteration.Backend = (*Store)(nil)

// Store is a SQLite-backed alteration backend.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// is private to the connection that created it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gene (
			entrez_gene_id INTEGER PRIMARY KEY,
			hugo_gene_symbol TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS gene_symbol_idx ON gene (hugo_gene_symbol)`,
		`CREATE TABLE IF NOT EXISTS genetic_profile_cases (
			genetic_profile_id INTEGER PRIMARY KEY,
			ordered_case_list TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS genetic_alteration (
			genetic_profile_id INTEGER NOT NULL,
			entrez_gene_id INTEGER NOT NULL,
			values_json TEXT NOT NULL,
			PRIMARY KEY (genetic_profile_id, entrez_gene_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes all genes, case lists and alteration rows.
func (s *Store) Reset(ctx context.Context) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range []string{"genetic_alteration", "genetic_profile_cases", "gene"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// AddCases stores the ordered case list of a profile.
func (s *Store) AddCases(ctx context.Context, profileID int64, caseIDs []string) (int, error) {
	if err := alteration.ValidateCaseList(caseIDs); err != nil {
		return 0, err
	}
	encoded, err := alteration.EncodeValues(caseIDs)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO genetic_profile_cases (genetic_profile_id, ordered_case_list) VALUES (?, ?)`,
		profileID, encoded)
	if err != nil {
		if isConstraintError(err) {
			return 0, fmt.Errorf("case list for profile %d: %w", profileID, alteration.ErrDuplicateKey)
		}
		return 0, fmt.Errorf("insert case list: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert case list: %w", err)
	}
	return int(n), nil
}

// OrderedCases returns the case list of a profile.
func (s *Store) OrderedCases(ctx context.Context, profileID int64) ([]string, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT ordered_case_list FROM genetic_profile_cases WHERE genetic_profile_id = ?`,
		profileID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case list for profile %d: %w", profileID, alteration.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query case list: %w", err)
	}
	return alteration.DecodeValues(encoded)
}

// AddGene inserts or replaces a gene record.
func (s *Store) AddGene(ctx context.Context, g alteration.Gene) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gene (entrez_gene_id, hugo_gene_symbol) VALUES (?, ?)
		ON CONFLICT(entrez_gene_id) DO UPDATE SET hugo_gene_symbol = excluded.hugo_gene_symbol
	`, g.EntrezGeneID, alteration.NormalizeSymbol(g.HugoSymbol))
	if err != nil {
		return fmt.Errorf("insert gene %d: %w", g.EntrezGeneID, err)
	}
	return nil
}

// ResolveGene looks up a gene by Entrez id.
func (s *Store) ResolveGene(ctx context.Context, entrezID int64) (alteration.Gene, error) {
	g := alteration.Gene{EntrezGeneID: entrezID}
	err := s.db.QueryRowContext(ctx,
		`SELECT hugo_gene_symbol FROM gene WHERE entrez_gene_id = ?`, entrezID).Scan(&g.HugoSymbol)
	if errors.Is(err, sql.ErrNoRows) {
		return alteration.Gene{}, fmt.Errorf("gene %d: %w", entrezID, alteration.ErrNotFound)
	}
	if err != nil {
		return alteration.Gene{}, fmt.Errorf("query gene: %w", err)
	}
	return g, nil
}

// GeneBySymbol looks up a gene by Hugo symbol, lowest Entrez id first.
func (s *Store) GeneBySymbol(ctx context.Context, symbol string) (alteration.Gene, error) {
	symbol = alteration.NormalizeSymbol(symbol)
	g := alteration.Gene{HugoSymbol: symbol}
	err := s.db.QueryRowContext(ctx,
		`SELECT entrez_gene_id FROM gene WHERE hugo_gene_symbol = ? ORDER BY entrez_gene_id LIMIT 1`,
		symbol).Scan(&g.EntrezGeneID)
	if errors.Is(err, sql.ErrNoRows) {
		return alteration.Gene{}, fmt.Errorf("gene %q: %w", symbol, alteration.ErrNotFound)
	}
	if err != nil {
		return alteration.Gene{}, fmt.Errorf("query gene by symbol: %w", err)
	}
	return g, nil
}

const insertAlteration = `INSERT INTO genetic_alteration (genetic_profile_id, entrez_gene_id, values_json) VALUES (?, ?, ?)`

// InsertAlteration writes a single row.
func (s *Store) InsertAlteration(ctx context.Context, row alteration.Row) error {
	encoded, err := alteration.EncodeValues(row.Values)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertAlteration, row.ProfileID, row.EntrezGeneID, encoded); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("profile %d gene %d: %w", row.ProfileID, row.EntrezGeneID, alteration.ErrDuplicateKey)
		}
		return fmt.Errorf("insert alteration: %w", err)
	}
	return nil
}

// LoadAlterations writes all rows in one transaction.
func (s *Store) LoadAlterations(ctx context.Context, rows []alteration.Row) (retErr error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk load: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertAlteration)
	if err != nil {
		return fmt.Errorf("prepare bulk load: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		encoded, err := alteration.EncodeValues(r.Values)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ProfileID, r.EntrezGeneID, encoded); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("bulk load profile %d gene %d: %w", r.ProfileID, r.EntrezGeneID, alteration.ErrDuplicateKey)
			}
			return fmt.Errorf("bulk load: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk load: %w", err)
	}
	return nil
}

// Alteration returns the row for (profileID, entrezID).
func (s *Store) Alteration(ctx context.Context, profileID, entrezID int64) (alteration.Row, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT values_json FROM genetic_alteration WHERE genetic_profile_id = ? AND entrez_gene_id = ?`,
		profileID, entrezID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return alteration.Row{}, fmt.Errorf("profile %d gene %d: %w", profileID, entrezID, alteration.ErrNotFound)
	}
	if err != nil {
		return alteration.Row{}, fmt.Errorf("query alteration: %w", err)
	}
	values, err := alteration.DecodeValues(encoded)
	if err != nil {
		return alteration.Row{}, err
	}
	return alteration.Row{ProfileID: profileID, EntrezGeneID: entrezID, Values: values}, nil
}

// HasAlteration reports whether a row exists for (profileID, entrezID).
func (s *Store) HasAlteration(ctx context.Context, profileID, entrezID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM genetic_alteration WHERE genetic_profile_id = ? AND entrez_gene_id = ?)`,
		profileID, entrezID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query alteration: %w", err)
	}
	return exists, nil
}

// ProfileGeneIDs returns the distinct Entrez ids with a row in the profile.
func (s *Store) ProfileGeneIDs(ctx context.Context, profileID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT entrez_gene_id FROM genetic_alteration WHERE genetic_profile_id = ? ORDER BY entrez_gene_id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("query profile genes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile gene: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of alteration rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM genetic_alteration`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alterations: %w", err)
	}
	return n, nil
}

func isConstraintError(err error) bool {
	var sErr *msqlite.Error
	if !errors.As(err, &sErr) {
		return false
	}
	return sErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
