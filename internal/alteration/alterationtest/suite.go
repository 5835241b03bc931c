// Package alterationtest holds the contract tests every alteration.Backend
// must pass.
package alterationtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

// OpenFunc returns an empty backend. The caller owns cleanup.
type OpenFunc func(t *testing.T) alteration.Backend

// RunBackendSuite runs the backend contract tests against fresh backends
// produced by open.
func RunBackendSuite(t *testing.T, open OpenFunc) {
	t.Run("Cases", func(t *testing.T) { testCases(t, open(t)) })
	t.Run("Genes", func(t *testing.T) { testGenes(t, open(t)) })
	t.Run("InsertAndLookup", func(t *testing.T) { testInsertAndLookup(t, open(t)) })
	t.Run("LoadAlterations", func(t *testing.T) { testLoadAlterations(t, open(t)) })
	t.Run("LoadAlterationsAtomic", func(t *testing.T) { testLoadAlterationsAtomic(t, open(t)) })
	t.Run("ValuesWithDelimiters", func(t *testing.T) { testValuesWithDelimiters(t, open(t)) })
	t.Run("Reset", func(t *testing.T) { testReset(t, open(t)) })
	t.Run("StoreScenario", func(t *testing.T) { testStoreScenario(t, open) })
}

var tcgaCases = []string{"TCGA-1", "TCGA-2", "TCGA-3", "TCGA-4"}

func testCases(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	n, err := b.AddCases(ctx, 1, tcgaCases)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cases, err := b.OrderedCases(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tcgaCases, cases)

	_, err = b.AddCases(ctx, 1, []string{"TCGA-9"})
	assert.ErrorIs(t, err, alteration.ErrDuplicateKey)

	_, err = b.AddCases(ctx, 2, []string{"A", "B", "A"})
	assert.ErrorIs(t, err, alteration.ErrDuplicateKey)

	_, err = b.AddCases(ctx, 3, nil)
	assert.ErrorIs(t, err, alteration.ErrInvalidArity)

	_, err = b.OrderedCases(ctx, 2)
	assert.ErrorIs(t, err, alteration.ErrNotFound)
}

func testGenes(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "brca1"}))
	require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 7157, HugoSymbol: "TP53"}))

	g, err := b.ResolveGene(ctx, 672)
	require.NoError(t, err)
	assert.Equal(t, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "BRCA1"}, g)

	g, err = b.GeneBySymbol(ctx, "tp53")
	require.NoError(t, err)
	assert.Equal(t, int64(7157), g.EntrezGeneID)

	// re-adding replaces the symbol
	require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 7157, HugoSymbol: "P53"}))
	g, err = b.ResolveGene(ctx, 7157)
	require.NoError(t, err)
	assert.Equal(t, "P53", g.HugoSymbol)

	_, err = b.ResolveGene(ctx, 1)
	assert.ErrorIs(t, err, alteration.ErrNotFound)
	_, err = b.GeneBySymbol(ctx, "NOPE")
	assert.ErrorIs(t, err, alteration.ErrNotFound)
}

func testInsertAndLookup(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	row := alteration.Row{ProfileID: 1, EntrezGeneID: 672, Values: []string{"200", "400", "600", "800"}}
	require.NoError(t, b.InsertAlteration(ctx, row))

	got, err := b.Alteration(ctx, 1, 672)
	require.NoError(t, err)
	assert.Equal(t, row, got)

	ok, err := b.HasAlteration(ctx, 1, 672)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.HasAlteration(ctx, 2, 672)
	require.NoError(t, err)
	assert.False(t, ok)

	err = b.InsertAlteration(ctx, row)
	assert.ErrorIs(t, err, alteration.ErrDuplicateKey)

	_, err = b.Alteration(ctx, 1, 7157)
	assert.ErrorIs(t, err, alteration.ErrNotFound)

	ids, err := b.ProfileGeneIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{672}, ids)

	ids, err = b.ProfileGeneIDs(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testLoadAlterations(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	rows := []alteration.Row{
		{ProfileID: 1, EntrezGeneID: 7157, Values: []string{"1", "2"}},
		{ProfileID: 1, EntrezGeneID: 672, Values: []string{"3", "4"}},
		{ProfileID: 2, EntrezGeneID: 672, Values: []string{"5", "6"}},
	}
	require.NoError(t, b.LoadAlterations(ctx, rows))
	require.NoError(t, b.LoadAlterations(ctx, nil))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := b.ProfileGeneIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{672, 7157}, ids)

	got, err := b.Alteration(ctx, 2, 672)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, got.Values)
}

func testLoadAlterationsAtomic(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	require.NoError(t, b.InsertAlteration(ctx, alteration.Row{ProfileID: 1, EntrezGeneID: 672, Values: []string{"x"}}))

	err := b.LoadAlterations(ctx, []alteration.Row{
		{ProfileID: 1, EntrezGeneID: 7157, Values: []string{"a"}},
		{ProfileID: 1, EntrezGeneID: 672, Values: []string{"b"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, alteration.ErrDuplicateKey)

	ok, err := b.HasAlteration(ctx, 1, 7157)
	require.NoError(t, err)
	assert.False(t, ok, "failed load must not leave partial rows")

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testValuesWithDelimiters(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	values := []string{"1,5", "", "NA", "a\tb", `"quoted"`}
	require.NoError(t, b.InsertAlteration(ctx, alteration.Row{ProfileID: 3, EntrezGeneID: 1, Values: values}))

	got, err := b.Alteration(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, values, got.Values)
}

func testReset(t *testing.T, b alteration.Backend) {
	ctx := context.Background()

	_, err := b.AddCases(ctx, 1, tcgaCases)
	require.NoError(t, err)
	require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "BRCA1"}))
	require.NoError(t, b.InsertAlteration(ctx, alteration.Row{ProfileID: 1, EntrezGeneID: 672, Values: []string{"1", "2", "3", "4"}}))

	require.NoError(t, b.Reset(ctx))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = b.OrderedCases(ctx, 1)
	assert.ErrorIs(t, err, alteration.ErrNotFound)
	_, err = b.ResolveGene(ctx, 672)
	assert.ErrorIs(t, err, alteration.ErrNotFound)
}

// testStoreScenario runs the BRCA1 add/flush/query scenario through a Store
// in both modes against the same backend, resetting in between.
func testStoreScenario(t *testing.T, open OpenFunc) {
	for _, mode := range []alteration.Mode{alteration.Immediate, alteration.Buffered} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			b := open(t)
			require.NoError(t, b.Reset(ctx))
			require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "BRCA1"}))

			n, err := b.AddCases(ctx, 1, tcgaCases)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			s := alteration.NewStore(b, mode)
			n, err = s.AddGeneticAlterations(ctx, 1, 672, []string{"200", "400", "600", "800"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			if s.Mode() == alteration.Buffered {
				_, err := s.GetGeneticAlterationMap(ctx, 1, 672)
				assert.ErrorIs(t, err, alteration.ErrNotFound)

				flushed, err := s.FlushAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, flushed)
			}

			m, err := s.GetGeneticAlterationMap(ctx, 1, 672)
			require.NoError(t, err)
			assert.Equal(t, map[string]string{
				"TCGA-1": "200", "TCGA-2": "400", "TCGA-3": "600", "TCGA-4": "800",
			}, m)

			genes, err := s.GetGenesInProfile(ctx, 1)
			require.NoError(t, err)
			require.Len(t, genes, 1)
			g := genes.Sorted()[0]
			assert.Equal(t, "BRCA1", g.HugoSymbol)
			assert.Equal(t, int64(672), g.EntrezGeneID)

			_, err = s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
			assert.ErrorIs(t, err, alteration.ErrDuplicateKey)
		})
	}
}
