package alteration

import (
	"context"
	"errors"
	"fmt"
)

// GetGeneticAlterationMap returns the case→value map of one gene in a
// profile. Rows still pending in the buffer are not visible.
func (s *Store) GetGeneticAlterationMap(ctx context.Context, profileID, entrezID int64) (map[string]string, error) {
	cases, err := s.backend.OrderedCases(ctx, profileID)
	if err != nil {
		return nil, wrapBackend(fmt.Sprintf("cases of profile %d", profileID), err)
	}
	row, err := s.backend.Alteration(ctx, profileID, entrezID)
	if err != nil {
		return nil, wrapBackend(fmt.Sprintf("alteration profile %d gene %d", profileID, entrezID), err)
	}
	return zipCases(cases, row)
}

// GetGeneticAlterationMaps returns gene→case→value maps for the given genes
// of a profile. Genes without a row are left out of the result. An empty
// geneIDs selects every gene in the profile.
func (s *Store) GetGeneticAlterationMaps(ctx context.Context, profileID int64, geneIDs []int64) (map[int64]map[string]string, error) {
	cases, err := s.backend.OrderedCases(ctx, profileID)
	if err != nil {
		return nil, wrapBackend(fmt.Sprintf("cases of profile %d", profileID), err)
	}
	if len(geneIDs) == 0 {
		geneIDs, err = s.backend.ProfileGeneIDs(ctx, profileID)
		if err != nil {
			return nil, wrapBackend(fmt.Sprintf("genes of profile %d", profileID), err)
		}
	}

	result := make(map[int64]map[string]string, len(geneIDs))
	for _, id := range geneIDs {
		if _, done := result[id]; done {
			continue
		}
		row, err := s.backend.Alteration(ctx, profileID, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, wrapBackend(fmt.Sprintf("alteration profile %d gene %d", profileID, id), err)
		}
		m, err := zipCases(cases, row)
		if err != nil {
			return nil, err
		}
		result[id] = m
	}
	return result, nil
}

// GetGenesInProfile returns the distinct genes that have a row in the profile,
// resolved through the gene registry.
func (s *Store) GetGenesInProfile(ctx context.Context, profileID int64) (GeneSet, error) {
	ids, err := s.backend.ProfileGeneIDs(ctx, profileID)
	if err != nil {
		return nil, wrapBackend(fmt.Sprintf("genes of profile %d", profileID), err)
	}

	genes := make(GeneSet, len(ids))
	for _, id := range ids {
		if genes.Contains(id) {
			continue
		}
		g, err := s.backend.ResolveGene(ctx, id)
		if err != nil {
			return nil, wrapBackend(fmt.Sprintf("resolve gene %d", id), err)
		}
		genes.Add(g)
	}
	return genes, nil
}

// zipCases pairs the i-th case with the i-th value.
func zipCases(cases []string, row Row) (map[string]string, error) {
	if len(row.Values) != len(cases) {
		return nil, fmt.Errorf("profile %d gene %d: stored %d values for %d cases: %w",
			row.ProfileID, row.EntrezGeneID, len(row.Values), len(cases), ErrInvalidArity)
	}
	m := make(map[string]string, len(cases))
	for i, c := range cases {
		m[c] = row.Values[i]
	}
	return m, nil
}
