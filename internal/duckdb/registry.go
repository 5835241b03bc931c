package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

// AddCases stores the ordered case list of a profile. A profile's list can
// only be set once.
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

// OrderedCases returns the case list of a profile in its stored order.
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
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO gene (entrez_gene_id, hugo_gene_symbol) VALUES (?, ?)`,
		g.EntrezGeneID, alteration.NormalizeSymbol(g.HugoSymbol))
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
