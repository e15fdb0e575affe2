// Package cmd provides the shared service wiring used by the command-line
// entry points.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/persistence/file"
	"github.com/enroutehq/enroute/pkg/persistence/postgresql"
)

// NewPersistence creates the storage backend from a database URL:
// postgres:// runs PostgreSQL, anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}
