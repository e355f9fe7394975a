// Package graphutils builds the configured graph driver.
package graphutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/mnemo/pkg/graph"
	"github.com/papercomputeco/mnemo/pkg/graph/inmemory"
	"github.com/papercomputeco/mnemo/pkg/graph/postgres"
	"github.com/papercomputeco/mnemo/pkg/graph/sqlite"
)

type NewGraphDriverOpts struct {
	ProviderType string

	// Target is a file path for sqlite and a DSN for postgres.
	Target string
	Logger *slog.Logger
}

func NewGraphDriver(ctx context.Context, o *NewGraphDriverOpts) (graph.Driver, error) {
	switch o.ProviderType {
	case "", "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlite":
		if o.Target == "" {
			return nil, fmt.Errorf("sqlite graph store requires a path")
		}
		return sqlite.NewDriver(ctx, o.Target, o.Logger)
	case "postgres":
		if o.Target == "" {
			return nil, fmt.Errorf("postgres graph store requires a connection string")
		}
		return postgres.NewDriver(ctx, o.Target, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported graph store provider: %s", o.ProviderType)
	}
}
