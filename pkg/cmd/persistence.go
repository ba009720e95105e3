// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/persistence/file"
	"github.com/dukex/runledger/pkg/persistence/memory"
	"github.com/dukex/runledger/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL: memory://, file://path
// or postgres://...
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	store, err := OpenPersistence(ctx, logger, databaseURL)
	if err != nil {
		panic(err)
	}

	return store
}

// OpenPersistence is NewPersistence returning the error instead of panicking.
func OpenPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, location := parsePersistenceProvider(databaseURL)

	switch provider {
	case "memory":
		store, err := memory.NewPersistence()
		if err != nil {
			return nil, err
		}

		return store, nil
	case "file":
		if location == "" {
			return nil, fmt.Errorf("file persistence requires a path: %q", databaseURL)
		}

		return file.NewPersistence(location), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q", provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	if databaseURL == "" {
		return "memory", ""
	}

	provider, location, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, location
}
