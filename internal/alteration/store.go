package alteration

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the Alteration Store. It routes writes through the active Mode and
// reads values back from the backend.
//
// A single mutex guards the mode, the pending buffer and every write, so a
// mode switch never interleaves with an add or a flush.
type Store struct {
	backend Backend
	logger  *zap.Logger
	metrics *Metrics

	mu      sync.Mutex
	mode    Mode
	pending *Buffer
}

// NewStore creates a store over backend that starts in the given mode.
func NewStore(backend Backend, mode Mode) *Store {
	return &Store{
		backend: backend,
		logger:  zap.NewNop(),
		mode:    mode,
		pending: NewBuffer(),
	}
}

// SetLogger sets the logger for flush and mode-change messages.
func (s *Store) SetLogger(l *zap.Logger) {
	s.logger = l
}

// SetMetrics sets the collectors updated on writes and flushes.
func (s *Store) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Backend returns the underlying backend, which also serves as the case and
// gene registry.
func (s *Store) Backend() Backend {
	return s.backend
}

// Mode returns the active store mode.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Pending returns the number of buffered rows not yet flushed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// SetMode switches the store mode. Leaving buffered mode flushes the pending
// rows first; if that flush fails the store stays buffered and the error is
// returned.
func (s *Store) SetMode(ctx context.Context, mode Mode) error {
	if mode != Immediate && mode != Buffered {
		return fmt.Errorf("set mode %v: %w", mode, ErrInvalidMode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == mode {
		return nil
	}
	if s.mode == Buffered {
		if _, err := s.flushLocked(ctx); err != nil {
			return fmt.Errorf("switch to %s: %w", mode, err)
		}
	}
	s.logger.Debug("store mode changed",
		zap.Stringer("from", s.mode),
		zap.Stringer("to", mode))
	s.mode = mode
	return nil
}

// AddGeneticAlterations persists the values of one gene for every case of a
// profile. values must be in case-list order and have exactly one entry per
// case. It returns the number of logically written rows: 1 on success in both
// modes.
func (s *Store) AddGeneticAlterations(ctx context.Context, profileID, entrezID int64, values []string) (int, error) {
	cases, err := s.backend.OrderedCases(ctx, profileID)
	if err != nil {
		return 0, wrapBackend(fmt.Sprintf("cases of profile %d", profileID), err)
	}
	if len(values) != len(cases) {
		return 0, fmt.Errorf("profile %d gene %d: %d values for %d cases: %w",
			profileID, entrezID, len(values), len(cases), ErrInvalidArity)
	}

	row := Row{ProfileID: profileID, EntrezGeneID: entrezID, Values: slices.Clone(values)}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case Buffered:
		if s.pending.Contains(profileID, entrezID) {
			return 0, fmt.Errorf("profile %d gene %d already pending: %w", profileID, entrezID, ErrDuplicateKey)
		}
		exists, err := s.backend.HasAlteration(ctx, profileID, entrezID)
		if err != nil {
			return 0, wrapBackend("check alteration", err)
		}
		if exists {
			return 0, fmt.Errorf("profile %d gene %d already stored: %w", profileID, entrezID, ErrDuplicateKey)
		}
		if err := s.pending.Enqueue(row); err != nil {
			return 0, err
		}
		s.metrics.setPending(s.pending.Len())
	default:
		if err := s.backend.InsertAlteration(ctx, row); err != nil {
			return 0, wrapBackend(fmt.Sprintf("insert profile %d gene %d", profileID, entrezID), err)
		}
	}

	s.metrics.accepted(s.mode)
	return 1, nil
}

// FlushAll bulk loads every pending row in one atomic operation and clears
// the pending set. On failure nothing is written and the pending rows are
// kept for a later attempt. It is only valid in buffered mode.
func (s *Store) FlushAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Buffered {
		return 0, fmt.Errorf("flush in %s mode: %w", s.mode, ErrInvalidMode)
	}
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) (int, error) {
	pending := s.pending.Len()
	if pending == 0 {
		return 0, nil
	}

	start := time.Now()
	n, err := s.pending.Flush(ctx, s.backend)
	s.metrics.flushed(n, err)
	if err != nil {
		s.logger.Warn("bulk load failed",
			zap.Int("pending", pending),
			zap.Error(err))
		return 0, fmt.Errorf("flush %d rows: %w: %w", pending, ErrStorageFailure, err)
	}
	s.metrics.setPending(0)
	s.logger.Info("bulk load complete",
		zap.Int("rows", n),
		zap.Duration("elapsed", time.Since(start)))
	return n, nil
}

// Close flushes any pending rows. The backend is left open.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.flushLocked(ctx)
	return err
}

// Count returns the number of durable alteration rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return 0, wrapBackend("count alterations", err)
	}
	return n, nil
}
