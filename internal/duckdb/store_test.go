package duckdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cgds/internal/alteration"
	"github.com/inodb/vibe-cgds/internal/alteration/alterationtest"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
}

func TestBackendContract(t *testing.T) {
	alterationtest.RunBackendSuite(t, func(t *testing.T) alteration.Backend {
		return openInMemory(t)
	})
}

func TestLoadAlterations_LargeBatch(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	rows := make([]alteration.Row, 0, 5000)
	for i := 0; i < 5000; i++ {
		rows = append(rows, alteration.Row{
			ProfileID:    7,
			EntrezGeneID: int64(i + 1),
			Values:       []string{"0", "1", "-1", "2"},
		})
	}
	require.NoError(t, s.LoadAlterations(ctx, rows))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5000, n)

	ids, err := s.ProfileGeneIDs(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, ids, 5000)
	assert.Equal(t, int64(1), ids[0])
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "cgds.duckdb")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.AddCases(ctx, 1, []string{"TCGA-1", "TCGA-2"})
	require.NoError(t, err)
	require.NoError(t, s.LoadAlterations(ctx, []alteration.Row{
		{ProfileID: 1, EntrezGeneID: 672, Values: []string{"200", "400"}},
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	st := alteration.NewStore(s, alteration.Immediate)
	m, err := st.GetGeneticAlterationMap(ctx, 1, 672)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TCGA-1": "200", "TCGA-2": "400"}, m)
}
