// Package alteration stores per-gene, per-case values of a genetic profile.
//
// Rows are written either one at a time (Immediate mode) or accumulated in a
// Buffer and bulk loaded by FlushAll (Buffered mode). Both paths produce the
// same rows; reads only ever see flushed data.
package alteration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidArity is returned when a value vector does not match the
	// length of the profile's case list.
	ErrInvalidArity = errors.New("invalid arity")
	// ErrDuplicateKey is returned when a (profile, gene) row or a case list
	// already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned when a row, case list or gene does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorageFailure wraps any fault of the underlying backend.
	ErrStorageFailure = errors.New("storage failure")
	// ErrInvalidMode is returned by FlushAll outside of buffered mode.
	ErrInvalidMode = errors.New("invalid mode")
)

// Mode selects how AddGeneticAlterations persists rows.
type Mode int

const (
	// Immediate writes every row with its own insert.
	Immediate Mode = iota
	// Buffered holds rows in memory until FlushAll.
	Buffered
)

func (m Mode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case Buffered:
		return "buffered"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "immediate" or "buffered" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "immediate":
		return Immediate, nil
	case "buffered", "bulk":
		return Buffered, nil
	default:
		return Immediate, fmt.Errorf("unknown store mode %q: %w", s, ErrInvalidMode)
	}
}

// Row is one persisted value vector: the values of one gene for every case of
// a profile, in case-list order.
type Row struct {
	ProfileID    int64
	EntrezGeneID int64
	Values       []string
}

type rowKey struct {
	profileID, geneID int64
}

func (r Row) key() rowKey {
	return rowKey{r.ProfileID, r.EntrezGeneID}
}

// Gene is a Gene Registry record.
type Gene struct {
	EntrezGeneID int64
	HugoSymbol   string
}

// GeneSet holds distinct genes keyed by Entrez id.
type GeneSet map[int64]Gene

// Add inserts g, replacing any gene with the same Entrez id.
func (s GeneSet) Add(g Gene) {
	s[g.EntrezGeneID] = g
}

// Contains reports whether a gene with the given Entrez id is in the set.
func (s GeneSet) Contains(entrezID int64) bool {
	_, ok := s[entrezID]
	return ok
}

// Sorted returns the genes ordered by Entrez id.
func (s GeneSet) Sorted() []Gene {
	genes := make([]Gene, 0, len(s))
	for _, g := range s {
		genes = append(genes, g)
	}
	sort.Slice(genes, func(i, j int) bool {
		return genes[i].EntrezGeneID < genes[j].EntrezGeneID
	})
	return genes
}

// CaseRegistry owns the ordered case list of each profile.
type CaseRegistry interface {
	AddCases(ctx context.Context, profileID int64, caseIDs []string) (int, error)
	OrderedCases(ctx context.Context, profileID int64) ([]string, error)
}

// GeneRegistry resolves canonical gene identity.
type GeneRegistry interface {
	AddGene(ctx context.Context, g Gene) error
	ResolveGene(ctx context.Context, entrezID int64) (Gene, error)
	GeneBySymbol(ctx context.Context, symbol string) (Gene, error)
}

// BulkLoader writes a batch of rows as a single all-or-nothing operation.
type BulkLoader interface {
	LoadAlterations(ctx context.Context, rows []Row) error
}

// Backend is the durable store behind a Store.
//
// Implementations return errors wrapping ErrNotFound and ErrDuplicateKey for
// missing and colliding keys respectively.
type Backend interface {
	CaseRegistry
	GeneRegistry
	BulkLoader

	InsertAlteration(ctx context.Context, row Row) error
	Alteration(ctx context.Context, profileID, entrezID int64) (Row, error)
	HasAlteration(ctx context.Context, profileID, entrezID int64) (bool, error)
	ProfileGeneIDs(ctx context.Context, profileID int64) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// NormalizeSymbol returns the canonical (upper-case) form of a Hugo symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateCaseList checks that a case list is non-empty and has no repeats.
func ValidateCaseList(caseIDs []string) error {
	if len(caseIDs) == 0 {
		return fmt.Errorf("empty case list: %w", ErrInvalidArity)
	}
	seen := make(map[string]bool, len(caseIDs))
	for _, c := range caseIDs {
		if seen[c] {
			return fmt.Errorf("case %q listed twice: %w", c, ErrDuplicateKey)
		}
		seen[c] = true
	}
	return nil
}

// wrapBackend tags backend errors with ErrStorageFailure unless they already
// carry one of the domain sentinels.
func wrapBackend(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrInvalidArity) || errors.Is(err, ErrStorageFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
