// Package genes loads gene lists into the gene registry.
package genes

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

// Accepted header names for the two required columns.
var (
	entrezColumns = []string{"Entrez_Gene_Id", "Entrez Gene Id", "Entrez Gene ID", "GeneID"}
	hugoColumns   = []string{"Hugo_Symbol", "Hugo Symbol", "Symbol"}
)

// LoadGeneList reads a tab-delimited gene file. The header must contain an
// Entrez id column and a Hugo symbol column (e.g. "Entrez_Gene_Id" and
// "Hugo_Symbol", or NCBI's "GeneID" and "Symbol").
func LoadGeneList(path string) ([]alteration.Gene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gene list: %w", err)
	}
	defer f.Close()
	return ReadGeneList(f)
}

// ReadGeneList parses a gene list from r. Lines starting with '#' are skipped,
// except a commented header such as NCBI gene_info's "#tax_id\tGeneID\tSymbol".
func ReadGeneList(r io.Reader) ([]alteration.Gene, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Read header to find column indices
	var header []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			cols := strings.Split(strings.TrimPrefix(line, "#"), "\t")
			if findColumn(cols, entrezColumns) < 0 || findColumn(cols, hugoColumns) < 0 {
				continue
			}
			header = cols
			break
		}
		header = strings.Split(line, "\t")
		break
	}
	if header == nil {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading gene list: %w", err)
		}
		return nil, fmt.Errorf("gene list: empty file")
	}

	entrezIdx := findColumn(header, entrezColumns)
	hugoIdx := findColumn(header, hugoColumns)
	if entrezIdx < 0 {
		return nil, fmt.Errorf("gene list: missing 'Entrez_Gene_Id' column")
	}
	if hugoIdx < 0 {
		return nil, fmt.Errorf("gene list: missing 'Hugo_Symbol' column")
	}

	var genes []alteration.Gene
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) <= entrezIdx || len(fields) <= hugoIdx {
			continue
		}
		hugo := strings.TrimSpace(fields[hugoIdx])
		id, err := strconv.ParseInt(strings.TrimSpace(fields[entrezIdx]), 10, 64)
		if err != nil || id <= 0 || hugo == "" {
			continue
		}
		genes = append(genes, alteration.Gene{
			EntrezGeneID: id,
			HugoSymbol:   alteration.NormalizeSymbol(hugo),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading gene list: %w", err)
	}

	return genes, nil
}

// Register adds genes to the registry and returns how many were added.
func Register(ctx context.Context, reg alteration.GeneRegistry, genes []alteration.Gene) (int, error) {
	for i, g := range genes {
		if err := reg.AddGene(ctx, g); err != nil {
			return i, fmt.Errorf("register gene %d (%s): %w", g.EntrezGeneID, g.HugoSymbol, err)
		}
	}
	return len(genes), nil
}

func findColumn(header []string, names []string) int {
	for i, col := range header {
		col = strings.TrimSpace(col)
		for _, n := range names {
			if strings.EqualFold(col, n) {
				return i
			}
		}
	}
	return -1
}
