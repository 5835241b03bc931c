package alteration_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cgds/internal/alteration"
	"github.com/inodb/vibe-cgds/internal/memory"
)

var tcgaCases = []string{"TCGA-1", "TCGA-2", "TCGA-3", "TCGA-4"}

// flakyBackend fails bulk loads while failLoad is set.
type flakyBackend struct {
	*memory.Store
	mu       sync.Mutex
	failLoad bool
	loads    int
}

var errDiskFull = errors.New("disk full")

func (f *flakyBackend) LoadAlterations(ctx context.Context, rows []alteration.Row) error {
	f.mu.Lock()
	f.loads++
	fail := f.failLoad
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Store.LoadAlterations(ctx, rows)
}

func (f *flakyBackend) setFail(fail bool) {
	f.mu.Lock()
	f.failLoad = fail
	f.mu.Unlock()
}

func newBackend(t *testing.T) *flakyBackend {
	t.Helper()
	ctx := context.Background()
	b := &flakyBackend{Store: memory.NewStore()}
	require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "BRCA1"}))
	require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 7157, HugoSymbol: "TP53"}))
	_, err := b.AddCases(ctx, 1, tcgaCases)
	require.NoError(t, err)
	return b
}

func TestRoundTrip_BothModes(t *testing.T) {
	want := map[string]string{"TCGA-1": "200", "TCGA-2": "400", "TCGA-3": "600", "TCGA-4": "800"}

	results := make(map[alteration.Mode]map[string]string)
	for _, mode := range []alteration.Mode{alteration.Immediate, alteration.Buffered} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			s := alteration.NewStore(newBackend(t), mode)

			n, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"200", "400", "600", "800"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			if mode == alteration.Buffered {
				_, err := s.FlushAll(ctx)
				require.NoError(t, err)
			}

			m, err := s.GetGeneticAlterationMap(ctx, 1, 672)
			require.NoError(t, err)
			assert.Equal(t, want, m)
			results[mode] = m

			genes, err := s.GetGenesInProfile(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, alteration.GeneSet{672: {EntrezGeneID: 672, HugoSymbol: "BRCA1"}}, genes)
		})
	}
	assert.Equal(t, results[alteration.Immediate], results[alteration.Buffered])
}

func TestUnflushedInvisible(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(newBackend(t), alteration.Buffered)

	_, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pending())

	_, err = s.GetGeneticAlterationMap(ctx, 1, 672)
	assert.ErrorIs(t, err, alteration.ErrNotFound)

	genes, err := s.GetGenesInProfile(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, genes)

	n, err := s.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, s.Pending())

	_, err = s.GetGeneticAlterationMap(ctx, 1, 672)
	assert.NoError(t, err)
}

func TestDuplicateKey(t *testing.T) {
	values := []string{"1", "2", "3", "4"}

	tests := []struct {
		name   string
		first  alteration.Mode
		second alteration.Mode
		flush  bool
	}{
		{"immediate then immediate", alteration.Immediate, alteration.Immediate, false},
		{"buffered pending then buffered", alteration.Buffered, alteration.Buffered, false},
		{"buffered flushed then buffered", alteration.Buffered, alteration.Buffered, true},
		{"immediate then buffered", alteration.Immediate, alteration.Buffered, false},
		{"buffered then immediate", alteration.Buffered, alteration.Immediate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := alteration.NewStore(newBackend(t), tt.first)

			_, err := s.AddGeneticAlterations(ctx, 1, 672, values)
			require.NoError(t, err)
			if tt.flush {
				_, err := s.FlushAll(ctx)
				require.NoError(t, err)
			}

			require.NoError(t, s.SetMode(ctx, tt.second))
			n, err := s.AddGeneticAlterations(ctx, 1, 672, values)
			assert.ErrorIs(t, err, alteration.ErrDuplicateKey)
			assert.Zero(t, n)
		})
	}
}

func TestInvalidArity(t *testing.T) {
	for _, mode := range []alteration.Mode{alteration.Immediate, alteration.Buffered} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			b := newBackend(t)
			s := alteration.NewStore(b, mode)

			for _, values := range [][]string{{"1", "2", "3"}, {"1", "2", "3", "4", "5"}, nil} {
				n, err := s.AddGeneticAlterations(ctx, 1, 672, values)
				assert.ErrorIs(t, err, alteration.ErrInvalidArity)
				assert.Zero(t, n)
			}
			assert.Zero(t, s.Pending())

			count, err := b.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestUnknownProfile(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(newBackend(t), alteration.Immediate)

	_, err := s.AddGeneticAlterations(ctx, 42, 672, []string{"1"})
	assert.ErrorIs(t, err, alteration.ErrNotFound)

	_, err = s.GetGeneticAlterationMap(ctx, 42, 672)
	assert.ErrorIs(t, err, alteration.ErrNotFound)
}

func TestFlushFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := alteration.NewStore(b, alteration.Buffered)

	_, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	_, err = s.AddGeneticAlterations(ctx, 1, 7157, []string{"5", "6", "7", "8"})
	require.NoError(t, err)

	b.setFail(true)
	n, err := s.FlushAll(ctx)
	assert.ErrorIs(t, err, alteration.ErrStorageFailure)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Zero(t, n)
	assert.Equal(t, 2, s.Pending())

	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	b.setFail(false)
	n, err = s.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, s.Pending())

	count, err = b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFlushAll_ImmediateMode(t *testing.T) {
	s := alteration.NewStore(newBackend(t), alteration.Immediate)
	_, err := s.FlushAll(context.Background())
	assert.ErrorIs(t, err, alteration.ErrInvalidMode)
}

func TestFlushAll_Empty(t *testing.T) {
	b := newBackend(t)
	s := alteration.NewStore(b, alteration.Buffered)
	n, err := s.FlushAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, b.loads)
}

func TestSetMode_FlushesOnSwitchOut(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := alteration.NewStore(b, alteration.Buffered)

	_, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
	require.NoError(t, err)

	b.setFail(true)
	err = s.SetMode(ctx, alteration.Immediate)
	assert.ErrorIs(t, err, alteration.ErrStorageFailure)
	assert.Equal(t, alteration.Buffered, s.Mode())
	assert.Equal(t, 1, s.Pending())

	b.setFail(false)
	require.NoError(t, s.SetMode(ctx, alteration.Immediate))
	assert.Equal(t, alteration.Immediate, s.Mode())
	assert.Zero(t, s.Pending())

	m, err := s.GetGeneticAlterationMap(ctx, 1, 672)
	require.NoError(t, err)
	assert.Equal(t, "4", m["TCGA-4"])
}

func TestSetMode_Invalid(t *testing.T) {
	s := alteration.NewStore(newBackend(t), alteration.Immediate)
	err := s.SetMode(context.Background(), alteration.Mode(7))
	assert.ErrorIs(t, err, alteration.ErrInvalidMode)
}

func TestClose_FlushesPending(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := alteration.NewStore(b, alteration.Buffered)

	_, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBufferedValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(newBackend(t), alteration.Buffered)

	values := []string{"1", "2", "3", "4"}
	_, err := s.AddGeneticAlterations(ctx, 1, 672, values)
	require.NoError(t, err)
	values[0] = "changed"

	_, err = s.FlushAll(ctx)
	require.NoError(t, err)

	m, err := s.GetGeneticAlterationMap(ctx, 1, 672)
	require.NoError(t, err)
	assert.Equal(t, "1", m["TCGA-1"])
}

func TestGetGeneticAlterationMaps(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(newBackend(t), alteration.Immediate)

	_, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	_, err = s.AddGeneticAlterations(ctx, 1, 7157, []string{"5", "6", "7", "8"})
	require.NoError(t, err)

	all, err := s.GetGeneticAlterationMaps(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "7", all[7157]["TCGA-3"])

	some, err := s.GetGeneticAlterationMaps(ctx, 1, []int64{672, 999, 672})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "1", some[672]["TCGA-1"])
}

func TestGetGenesInProfile_UnresolvedGene(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(newBackend(t), alteration.Immediate)

	_, err := s.AddGeneticAlterations(ctx, 1, 12345, []string{"1", "2", "3", "4"})
	require.NoError(t, err)

	_, err = s.GetGenesInProfile(ctx, 1)
	assert.ErrorIs(t, err, alteration.ErrNotFound)
}

// skewedBackend returns repeated gene ids and truncated value vectors, as a
// lower layer with inconsistent data would.
type skewedBackend struct {
	*memory.Store
}

func (b *skewedBackend) ProfileGeneIDs(context.Context, int64) ([]int64, error) {
	return []int64{672, 672}, nil
}

func (b *skewedBackend) Alteration(_ context.Context, profileID, entrezID int64) (alteration.Row, error) {
	return alteration.Row{ProfileID: profileID, EntrezGeneID: entrezID, Values: []string{"1", "2", "3"}}, nil
}

func TestGetGenesInProfile_RepeatedIDs(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(&skewedBackend{Store: newBackend(t).Store}, alteration.Immediate)

	genes, err := s.GetGenesInProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []alteration.Gene{{EntrezGeneID: 672, HugoSymbol: "BRCA1"}}, genes.Sorted())
}

func TestGetGeneticAlterationMap_StoredArityMismatch(t *testing.T) {
	ctx := context.Background()
	s := alteration.NewStore(&skewedBackend{Store: newBackend(t).Store}, alteration.Immediate)

	_, err := s.GetGeneticAlterationMap(ctx, 1, 672)
	assert.ErrorIs(t, err, alteration.ErrInvalidArity)

	_, err = s.GetGeneticAlterationMaps(ctx, 1, nil)
	assert.ErrorIs(t, err, alteration.ErrInvalidArity)
}

func TestConcurrentAddsAndFlush(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := alteration.NewStore(b, alteration.Buffered)

	const genes = 200
	var wg sync.WaitGroup
	for i := 0; i < genes; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.AddGeneticAlterations(ctx, 1, id, []string{"a", "b", "c", "d"})
			assert.NoError(t, err)
			if id%25 == 0 {
				_, err := s.FlushAll(ctx)
				assert.NoError(t, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	_, err := s.FlushAll(ctx)
	require.NoError(t, err)

	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, genes, count)
	assert.Zero(t, s.Pending())
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := alteration.NewMetrics(reg)

	b := newBackend(t)
	s := alteration.NewStore(b, alteration.Buffered)
	s.SetMetrics(m)

	_, err := s.AddGeneticAlterations(ctx, 1, 672, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	_, err = s.AddGeneticAlterations(ctx, 1, 7157, []string{"1", "2", "3", "4"})
	require.NoError(t, err)

	b.setFail(true)
	_, err = s.FlushAll(ctx)
	require.Error(t, err)
	b.setFail(false)
	_, err = s.FlushAll(ctx)
	require.NoError(t, err)

	expected := `
# HELP cgds_alteration_flushed_rows_total Rows written by successful bulk load flushes.
# TYPE cgds_alteration_flushed_rows_total counter
cgds_alteration_flushed_rows_total 2
# HELP cgds_alteration_flushes_total Bulk load flushes, by result.
# TYPE cgds_alteration_flushes_total counter
cgds_alteration_flushes_total{result="error"} 1
cgds_alteration_flushes_total{result="ok"} 1
# HELP cgds_alteration_pending_rows Rows buffered and not yet flushed.
# TYPE cgds_alteration_pending_rows gauge
cgds_alteration_pending_rows 0
# HELP cgds_alteration_rows_accepted_total Alteration rows accepted by AddGeneticAlterations, by store mode.
# TYPE cgds_alteration_rows_accepted_total counter
cgds_alteration_rows_accepted_total{mode="buffered"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}
