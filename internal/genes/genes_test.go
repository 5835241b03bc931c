package genes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-cgds/internal/alteration"
	"github.com/inodb/vibe-cgds/internal/memory"
)

const geneFile = `# genes used by the test study
Entrez_Gene_Id	Hugo_Symbol	Type
672	BRCA1	protein-coding
7157	tp53	protein-coding
not-a-number	FOO	protein-coding
3845		protein-coding
675	BRCA2
`

func TestReadGeneList(t *testing.T) {
	genes, err := ReadGeneList(strings.NewReader(geneFile))
	require.NoError(t, err)

	assert.Equal(t, []alteration.Gene{
		{EntrezGeneID: 672, HugoSymbol: "BRCA1"},
		{EntrezGeneID: 7157, HugoSymbol: "TP53"},
		{EntrezGeneID: 675, HugoSymbol: "BRCA2"},
	}, genes)
}

func TestReadGeneList_NCBIHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"gene_info commented header", "#tax_id\tGeneID\tSymbol\tLocusTag\n9606\t672\tBRCA1\t-\n9606\t7157\tTP53\t-\n"},
		{"comment before commented header", "# Homo sapiens\n#tax_id\tGeneID\tSymbol\n9606\t672\tBRCA1\n9606\t7157\ttp53\n"},
		{"plain header", "tax_id\tGeneID\tSymbol\n9606\t672\tBRCA1\n9606\t7157\tTP53\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			genes, err := ReadGeneList(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, []alteration.Gene{
				{EntrezGeneID: 672, HugoSymbol: "BRCA1"},
				{EntrezGeneID: 7157, HugoSymbol: "TP53"},
			}, genes)
		})
	}
}

func TestReadGeneList_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no entrez column", "Hugo_Symbol\nBRCA1\n"},
		{"no hugo column", "Entrez_Gene_Id\n672\n"},
		{"only comments", "# a\n#tax_id\tSymbol\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadGeneList(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadGeneList_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genes.txt")
	require.NoError(t, os.WriteFile(path, []byte(geneFile), 0644))

	genes, err := LoadGeneList(path)
	require.NoError(t, err)
	assert.Len(t, genes, 3)

	_, err = LoadGeneList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewStore()

	genes, err := ReadGeneList(strings.NewReader(geneFile))
	require.NoError(t, err)

	n, err := Register(ctx, reg, genes)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	g, err := reg.GeneBySymbol(ctx, "tp53")
	require.NoError(t, err)
	assert.Equal(t, int64(7157), g.EntrezGeneID)
}
