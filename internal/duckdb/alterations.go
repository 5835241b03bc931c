package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

// InsertAlteration writes a single alteration row.
func (s *Store) InsertAlteration(ctx context.Context, row alteration.Row) error {
	encoded, err := alteration.EncodeValues(row.Values)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO genetic_alteration (genetic_profile_id, entrez_gene_id, values_json) VALUES (?, ?, ?)`,
		row.ProfileID, row.EntrezGeneID, encoded)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("profile %d gene %d: %w", row.ProfileID, row.EntrezGeneID, alteration.ErrDuplicateKey)
		}
		return fmt.Errorf("insert alteration: %w", err)
	}
	return nil
}

// LoadAlterations bulk loads rows using the Appender API. The appender runs
// inside an explicit transaction on a pinned connection, so either every row
// is committed or none is.
func (s *Store) LoadAlterations(ctx context.Context, rows []alteration.Row) (retErr error) {
	if len(rows) == 0 {
		return nil
	}

	encoded := make([]string, len(rows))
	for i, r := range rows {
		e, err := alteration.EncodeValues(r.Values)
		if err != nil {
			return err
		}
		encoded[i] = e
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin bulk load: %w", err)
	}
	defer func() {
		if retErr != nil {
			// the transaction may already be aborted by a failed flush
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "genetic_alteration")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}

	for i, r := range rows {
		if err := appender.AppendRow(r.ProfileID, r.EntrezGeneID, encoded[i]); err != nil {
			appender.Close()
			return fmt.Errorf("append alteration: %w", err)
		}
	}
	// Close flushes the remaining rows into the transaction.
	if err := appender.Close(); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("bulk load: %w: %w", alteration.ErrDuplicateKey, err)
		}
		return fmt.Errorf("flush appender: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("commit bulk load: %w: %w", alteration.ErrDuplicateKey, err)
		}
		return fmt.Errorf("commit bulk load: %w", err)
	}
	return nil
}

// Alteration returns the row for (profileID, entrezID).
func (s *Store) Alteration(ctx context.Context, profileID, entrezID int64) (alteration.Row, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT values_json FROM genetic_alteration WHERE genetic_profile_id = ? AND entrez_gene_id = ?`,
		profileID, entrezID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return alteration.Row{}, fmt.Errorf("profile %d gene %d: %w", profileID, entrezID, alteration.ErrNotFound)
	}
	if err != nil {
		return alteration.Row{}, fmt.Errorf("query alteration: %w", err)
	}
	values, err := alteration.DecodeValues(encoded)
	if err != nil {
		return alteration.Row{}, err
	}
	return alteration.Row{ProfileID: profileID, EntrezGeneID: entrezID, Values: values}, nil
}

// HasAlteration reports whether a row exists for (profileID, entrezID).
func (s *Store) HasAlteration(ctx context.Context, profileID, entrezID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM genetic_alteration WHERE genetic_profile_id = ? AND entrez_gene_id = ?`,
		profileID, entrezID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query alteration: %w", err)
	}
	return n > 0, nil
}

// ProfileGeneIDs returns the distinct Entrez ids with a row in the profile.
func (s *Store) ProfileGeneIDs(ctx context.Context, profileID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT entrez_gene_id FROM genetic_alteration WHERE genetic_profile_id = ? ORDER BY entrez_gene_id`,
		profileID)
	if err != nil {
		return nil, fmt.Errorf("query profile genes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile gene: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile genes: %w", err)
	}
	return ids, nil
}

// Count returns the number of alteration rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM genetic_alteration`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alterations: %w", err)
	}
	return n, nil
}
