package sqlite

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
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBackendContract(t *testing.T) {
	alterationtest.RunBackendSuite(t, func(t *testing.T) alteration.Backend {
		return openInMemory(t)
	})
}

func TestFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cgds.sqlite")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddGene(ctx, alteration.Gene{EntrezGeneID: 672, HugoSymbol: "BRCA1"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	g, err := s.ResolveGene(ctx, 672)
	require.NoError(t, err)
	assert.Equal(t, "BRCA1", g.HugoSymbol)
}
