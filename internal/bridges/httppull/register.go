package httppull

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// Register declares every configured resource as a read-only pulled
// resource, creating providers and services as needed. All declarations
// run as one command: either every resource is registered or none is.
//
// Parameters:
//   - ctx: Context for the command
//   - gw: Gateway owning the twin
//   - resources: Pull declarations from config
//   - client: HTTP client for fetches (nil uses http.DefaultClient)
//
// Returns:
//   - int: Number of resources registered
//   - error: First source or twin error
func Register(ctx context.Context, gw *gateway.Gateway, resources []config.PullResourceConfig, client *http.Client) (int, error) {
	if len(resources) == 0 {
		return 0, nil
	}

	sources := make([]*Source, 0, len(resources))
	for _, rc := range resources {
		src, err := NewSource(rc, client)
		if err != nil {
			return 0, err
		}
		sources = append(sources, src)
	}

	return gateway.Execute(ctx, gw, "httppull.register", func(ctx context.Context, tx *gateway.Tx) (int, error) {
		for _, src := range sources {
			if err := declare(ctx, tx, src); err != nil {
				return 0, fmt.Errorf("pull %s/%s/%s: %w", src.cfg.Provider, src.cfg.Service, src.cfg.Resource, err)
			}
		}
		return len(sources), nil
	}).Wait(ctx)
}

func declare(ctx context.Context, tx *gateway.Tx, src *Source) error {
	ph, err := tx.Twin().Provider(ctx, src.cfg.Provider)
	if errors.Is(err, twin.ErrProviderNotFound) {
		ph, err = tx.Models().Provider(src.cfg.Provider).Build(ctx)
	}
	if err != nil {
		return err
	}

	sh, err := ph.NewService(src.cfg.Service).Build(ctx)
	if err != nil {
		return err
	}

	_, err = sh.NewResource(src.cfg.Resource).
		Kind(src.Kind()).
		Access(twin.ReadOnly).
		Pulled(src.Fetch, src.CacheThreshold()).
		Build(ctx)
	return err
}
