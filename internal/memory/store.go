// Package memory provides a process-local alteration backend. Nothing survives
// the process; it backs tests and dry runs of the importer.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

var _ alteration.Backend = (*Store)(nil)

type key struct {
	profileID, geneID int64
}

// Store keeps cases, genes and alteration rows in maps.
type Store struct {
	mu    sync.RWMutex
	cases map[int64][]string
	genes map[int64]alteration.Gene
	rows  map[key]alteration.Row
}

// NewStore creates an empty in-memory backend.
func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.cases = make(map[int64][]string)
	s.genes = make(map[int64]alteration.Gene)
	s.rows = make(map[key]alteration.Row)
}

// AddCases registers the ordered case list of a profile.
func (s *Store) AddCases(_ context.Context, profileID int64, caseIDs []string) (int, error) {
	if err := alteration.ValidateCaseList(caseIDs); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[profileID]; ok {
		return 0, fmt.Errorf("case list for profile %d: %w", profileID, alteration.ErrDuplicateKey)
	}
	s.cases[profileID] = slices.Clone(caseIDs)
	return 1, nil
}

// OrderedCases returns the case list of a profile.
func (s *Store) OrderedCases(_ context.Context, profileID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cases, ok := s.cases[profileID]
	if !ok {
		return nil, fmt.Errorf("case list for profile %d: %w", profileID, alteration.ErrNotFound)
	}
	return slices.Clone(cases), nil
}

// AddGene inserts or replaces a gene record.
func (s *Store) AddGene(_ context.Context, g alteration.Gene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.HugoSymbol = alteration.NormalizeSymbol(g.HugoSymbol)
	s.genes[g.EntrezGeneID] = g
	return nil
}

// ResolveGene looks up a gene by Entrez id.
func (s *Store) ResolveGene(_ context.Context, entrezID int64) (alteration.Gene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.genes[entrezID]
	if !ok {
		return alteration.Gene{}, fmt.Errorf("gene %d: %w", entrezID, alteration.ErrNotFound)
	}
	return g, nil
}

// GeneBySymbol looks up a gene by Hugo symbol. When several genes share a
// symbol the lowest Entrez id wins.
func (s *Store) GeneBySymbol(_ context.Context, symbol string) (alteration.Gene, error) {
	symbol = alteration.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found alteration.Gene
	ok := false
	for _, g := range s.genes {
		if g.HugoSymbol == symbol && (!ok || g.EntrezGeneID < found.EntrezGeneID) {
			found, ok = g, true
		}
	}
	if !ok {
		return alteration.Gene{}, fmt.Errorf("gene %q: %w", symbol, alteration.ErrNotFound)
	}
	return found, nil
}

// InsertAlteration stores a single row.
func (s *Store) InsertAlteration(_ context.Context, row alteration.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{row.ProfileID, row.EntrezGeneID}
	if _, ok := s.rows[k]; ok {
		return fmt.Errorf("profile %d gene %d: %w", row.ProfileID, row.EntrezGeneID, alteration.ErrDuplicateKey)
	}
	row.Values = slices.Clone(row.Values)
	s.rows[k] = row
	return nil
}

// LoadAlterations stores all rows or none of them.
func (s *Store) LoadAlterations(_ context.Context, rows []alteration.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[key]bool, len(rows))
	for _, r := range rows {
		k := key{r.ProfileID, r.EntrezGeneID}
		if _, ok := s.rows[k]; ok || batch[k] {
			return fmt.Errorf("profile %d gene %d: %w", r.ProfileID, r.EntrezGeneID, alteration.ErrDuplicateKey)
		}
		batch[k] = true
	}
	for _, r := range rows {
		r.Values = slices.Clone(r.Values)
		s.rows[key{r.ProfileID, r.EntrezGeneID}] = r
	}
	return nil
}

// Alteration returns the row for (profileID, entrezID).
func (s *Store) Alteration(_ context.Context, profileID, entrezID int64) (alteration.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[key{profileID, entrezID}]
	if !ok {
		return alteration.Row{}, fmt.Errorf("profile %d gene %d: %w", profileID, entrezID, alteration.ErrNotFound)
	}
	r.Values = slices.Clone(r.Values)
	return r, nil
}

// HasAlteration reports whether a row exists for (profileID, entrezID).
func (s *Store) HasAlteration(_ context.Context, profileID, entrezID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[key{profileID, entrezID}]
	return ok, nil
}

// ProfileGeneIDs returns the Entrez ids with a row in the profile, ascending.
func (s *Store) ProfileGeneIDs(_ context.Context, profileID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for k := range s.rows {
		if k.profileID == profileID {
			ids = append(ids, k.geneID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// Reset clears every table.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
