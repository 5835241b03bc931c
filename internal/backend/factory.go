// Package backend opens an alteration backend by name.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/inodb/vibe-cgds/internal/alteration"
	"github.com/inodb/vibe-cgds/internal/duckdb"
	"github.com/inodb/vibe-cgds/internal/memory"
	"github.com/inodb/vibe-cgds/internal/postgres"
	"github.com/inodb/vibe-cgds/internal/sqlite"
)

// Kinds lists the supported backend names.
var Kinds = []string{"memory", "duckdb", "sqlite", "postgres"}

// Open opens the backend named kind. path is a database file for duckdb and
// sqlite (empty means in-memory) and a connection string for postgres. The
// memory backend ignores it.
func Open(ctx context.Context, kind, path string) (alteration.Backend, error) {
	switch strings.ToLower(kind) {
	case "", "memory":
		return memory.NewStore(), nil
	case "duckdb":
		s, err := duckdb.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		if path == "" {
			return nil, fmt.Errorf("postgres backend needs a connection string")
		}
		s, err := postgres.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (want one of %s)", kind, strings.Join(Kinds, ", "))
	}
}
