package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/persistence/file"
	"github.com/dirigent-dev/dirigent/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence provider from the database URL
// scheme: postgres for "postgres://" or "postgresql://", the JSON-file
// store for everything else.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgres persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
