package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		kind string
		path string
	}{
		{"", ""},
		{"memory", "ignored"},
		{"DuckDB", ""},
		{"duckdb", filepath.Join(dir, "cgds.duckdb")},
		{"sqlite", ""},
		{"sqlite", filepath.Join(dir, "cgds.sqlite")},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+filepath.Base(tt.path), func(t *testing.T) {
			b, err := Open(ctx, tt.kind, tt.path)
			require.NoError(t, err)
			defer b.Close()

			_, err = b.AddCases(ctx, 1, []string{"S1"})
			require.NoError(t, err)
			require.NoError(t, b.AddGene(ctx, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "BRCA1"}))

			store := alteration.NewStore(b, alteration.Immediate)
			_, err = store.AddGeneticAlterations(ctx, 1, 672, []string{"1"})
			require.NoError(t, err)
			n, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "oracle", "")
	assert.ErrorContains(t, err, "unsupported store backend")

	_, err = Open(ctx, "postgres", "")
	assert.Error(t, err)
}

func TestOpen_FailureReturnsNilBackend(t *testing.T) {
	ctx := context.Background()
	// A regular file where the database directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	for _, kind := range []string{"duckdb", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			b, err := Open(ctx, kind, filepath.Join(blocker, "cgds.db"))
			require.Error(t, err)
			assert.Nil(t, b)
		})
	}
}
