// Package postgres implements the alteration backend on PostgreSQL via pgx.
// Bulk loads use COPY FROM inside a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

var _ alteration.Backend = (*Store)(nil)

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed alteration backend.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gene (
			entrez_gene_id BIGINT PRIMARY KEY,
			hugo_gene_symbol TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS gene_symbol_idx ON gene (hugo_gene_symbol)`,
		`CREATE TABLE IF NOT EXISTS genetic_profile_cases (
			genetic_profile_id BIGINT PRIMARY KEY,
			ordered_case_list TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS genetic_alteration (
			genetic_profile_id BIGINT NOT NULL,
			entrez_gene_id BIGINT NOT NULL,
			values_json TEXT NOT NULL,
			PRIMARY KEY (genetic_profile_id, entrez_gene_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reset truncates all tables.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE genetic_alteration, genetic_profile_cases, gene`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
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
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO genetic_profile_cases (genetic_profile_id, ordered_case_list) VALUES ($1, $2)`,
		profileID, encoded)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("case list for profile %d: %w", profileID, alteration.ErrDuplicateKey)
		}
		return 0, fmt.Errorf("insert case list: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// OrderedCases returns the case list of a profile.
func (s *Store) OrderedCases(ctx context.Context, profileID int64) ([]string, error) {
	var encoded string
	err := s.pool.QueryRow(ctx,
		`SELECT ordered_case_list FROM genetic_profile_cases WHERE genetic_profile_id = $1`,
		profileID).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("case list for profile %d: %w", profileID, alteration.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query case list: %w", err)
	}
	return alteration.DecodeValues(encoded)
}

// AddGene inserts or replaces a gene record.
func (s *Store) AddGene(ctx context.Context, g alteration.Gene) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gene (entrez_gene_id, hugo_gene_symbol) VALUES ($1, $2)
		ON CONFLICT (entrez_gene_id) DO UPDATE SET hugo_gene_symbol = EXCLUDED.hugo_gene_symbol
	`, g.EntrezGeneID, alteration.NormalizeSymbol(g.HugoSymbol))
	if err != nil {
		return fmt.Errorf("insert gene %d: %w", g.EntrezGeneID, err)
	}
	return nil
}

// ResolveGene looks up a gene by Entrez id.
func (s *Store) ResolveGene(ctx context.Context, entrezID int64) (alteration.Gene, error) {
	g := alteration.Gene{EntrezGeneID: entrezID}
	err := s.pool.QueryRow(ctx,
		`SELECT hugo_gene_symbol FROM gene WHERE entrez_gene_id = $1`, entrezID).Scan(&g.HugoSymbol)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.pool.QueryRow(ctx,
		`SELECT entrez_gene_id FROM gene WHERE hugo_gene_symbol = $1 ORDER BY entrez_gene_id LIMIT 1`,
		symbol).Scan(&g.EntrezGeneID)
	if errors.Is(err, pgx.ErrNoRows) {
		return alteration.Gene{}, fmt.Errorf("gene %q: %w", symbol, alteration.ErrNotFound)
	}
	if err != nil {
		return alteration.Gene{}, fmt.Errorf("query gene by symbol: %w", err)
	}
	return g, nil
}

// InsertAlteration writes a single row.
func (s *Store) InsertAlteration(ctx context.Context, row alteration.Row) error {
	encoded, err := alteration.EncodeValues(row.Values)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO genetic_alteration (genetic_profile_id, entrez_gene_id, values_json) VALUES ($1, $2, $3)`,
		row.ProfileID, row.EntrezGeneID, encoded)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile %d gene %d: %w", row.ProfileID, row.EntrezGeneID, alteration.ErrDuplicateKey)
		}
		return fmt.Errorf("insert alteration: %w", err)
	}
	return nil
}

// LoadAlterations copies all rows in one transaction.
func (s *Store) LoadAlterations(ctx context.Context, rows []alteration.Row) (retErr error) {
	if len(rows) == 0 {
		return nil
	}

	data := make([][]any, len(rows))
	for i, r := range rows {
		encoded, err := alteration.EncodeValues(r.Values)
		if err != nil {
			return err
		}
		data[i] = []any{r.ProfileID, r.EntrezGeneID, encoded}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk load: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback(context.Background())
		}
	}()

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"genetic_alteration"},
		[]string{"genetic_profile_id", "entrez_gene_id", "values_json"},
		pgx.CopyFromRows(data))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bulk load: %w: %w", alteration.ErrDuplicateKey, err)
		}
		return fmt.Errorf("copy alterations: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy alterations: wrote %d of %d rows", n, len(rows))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bulk load: %w", err)
	}
	return nil
}

// Alteration returns the row for (profileID, entrezID).
func (s *Store) Alteration(ctx context.Context, profileID, entrezID int64) (alteration.Row, error) {
	var encoded string
	err := s.pool.QueryRow(ctx,
		`SELECT values_json FROM genetic_alteration WHERE genetic_profile_id = $1 AND entrez_gene_id = $2`,
		profileID, entrezID).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM genetic_alteration WHERE genetic_profile_id = $1 AND entrez_gene_id = $2)`,
		profileID, entrezID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query alteration: %w", err)
	}
	return exists, nil
}

// ProfileGeneIDs returns the distinct Entrez ids with a row in the profile.
func (s *Store) ProfileGeneIDs(ctx context.Context, profileID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT entrez_gene_id FROM genetic_alteration WHERE genetic_profile_id = $1 ORDER BY entrez_gene_id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("query profile genes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan profile genes: %w", err)
	}
	return ids, nil
}

// Count returns the number of alteration rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM genetic_alteration`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alterations: %w", err)
	}
	return int(n), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
