package matrix

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

// ImportStats summarizes an import.
type ImportStats struct {
	Rows    int // gene rows written
	Skipped int // gene rows whose gene is not in the registry
	Flushed int // rows written by the final bulk load (buffered mode)
}

// Importer loads matrix files into an alteration store.
type Importer struct {
	store  *alteration.Store
	logger *zap.Logger
}

// NewImporter creates an importer writing to store.
func NewImporter(store *alteration.Store) *Importer {
	return &Importer{store: store, logger: zap.NewNop()}
}

// SetLogger sets the logger for skipped rows and progress messages.
func (im *Importer) SetLogger(l *zap.Logger) {
	im.logger = l
}

// Import reads every row of p into profileID.
//
// The header's case order becomes the profile's case list. If the profile
// already has a case list it must match the header exactly. Rows for genes
// unknown to the registry are skipped; a gene appearing twice in the file is
// an error. In buffered mode the pending rows are flushed before returning.
func (im *Importer) Import(ctx context.Context, profileID int64, p *Parser) (ImportStats, error) {
	var stats ImportStats
	start := time.Now()
	backend := im.store.Backend()

	if err := im.ensureCases(ctx, backend, profileID, p.Cases()); err != nil {
		return stats, err
	}

	seen := make(map[int64]int)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := p.Next()
		if err != nil {
			return stats, err
		}
		if rec == nil {
			break
		}

		gene, err := resolve(ctx, backend, rec)
		if errors.Is(err, alteration.ErrNotFound) {
			im.logger.Warn("skipping row for unknown gene",
				zap.Int("line", rec.Line),
				zap.String("hugo_symbol", rec.HugoSymbol),
				zap.Int64("entrez_gene_id", rec.EntrezGeneID))
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", rec.Line, err)
		}

		if prev, dup := seen[gene.EntrezGeneID]; dup {
			return stats, fmt.Errorf("line %d: gene %d (%s) already imported at line %d: %w",
				rec.Line, gene.EntrezGeneID, gene.HugoSymbol, prev, alteration.ErrDuplicateKey)
		}
		seen[gene.EntrezGeneID] = rec.Line

		n, err := im.store.AddGeneticAlterations(ctx, profileID, gene.EntrezGeneID, rec.Values)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", rec.Line, err)
		}
		stats.Rows += n
	}

	if im.store.Mode() == alteration.Buffered {
		n, err := im.store.FlushAll(ctx)
		if err != nil {
			return stats, err
		}
		stats.Flushed = n
	}

	im.logger.Info("import complete",
		zap.Int64("profile_id", profileID),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
		zap.Stringer("mode", im.store.Mode()),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}

func (im *Importer) ensureCases(ctx context.Context, reg alteration.CaseRegistry, profileID int64, cases []string) error {
	existing, err := reg.OrderedCases(ctx, profileID)
	if errors.Is(err, alteration.ErrNotFound) {
		if _, err := reg.AddCases(ctx, profileID, cases); err != nil {
			return fmt.Errorf("register cases of profile %d: %w", profileID, err)
		}
		im.logger.Debug("registered case list",
			zap.Int64("profile_id", profileID),
			zap.Int("cases", len(cases)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("cases of profile %d: %w", profileID, err)
	}
	if !slices.Equal(existing, cases) {
		return fmt.Errorf("profile %d: file header has %d cases that do not match the stored case list of %d: %w",
			profileID, len(cases), len(existing), alteration.ErrInvalidArity)
	}
	return nil
}

// resolve finds the registry gene for a record, preferring the Entrez id.
func resolve(ctx context.Context, reg alteration.GeneRegistry, rec *Record) (alteration.Gene, error) {
	if rec.EntrezGeneID > 0 {
		return reg.ResolveGene(ctx, rec.EntrezGeneID)
	}
	if rec.HugoSymbol == "" {
		return alteration.Gene{}, fmt.Errorf("row without gene identifier: %w", alteration.ErrNotFound)
	}
	return reg.GeneBySymbol(ctx, rec.HugoSymbol)
}
