package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/world"
	"github.com/MrWong99/parley/pkg/cache"
)

// Migrate opens the configured database and cache backend, creates their
// tables and closes them again. No providers are needed.
func Migrate(ctx context.Context, cfg *config.Config) error {
	a := &App{cfg: cfg}
	defer a.closeAll()

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("app: migrate database: %w", err)
	}
	if err := a.initCache(ctx); err != nil {
		return fmt.Errorf("app: migrate cache: %w", err)
	}
	slog.Info("migrations applied", "driver", cfg.Database.Driver, "cache", cfg.Cache.Backend)
	return nil
}

// SeedReport counts what [App.Seed] wrote.
type SeedReport struct {
	Records   int
	Examples  int
	Knowledge int
}

// Seed imports NPCs and scenes into the store, writes conversation examples
// to the example cache and embeds the knowledge entries. Knowledge is
// skipped with a warning when no embeddings provider is configured.
func (a *App) Seed(ctx context.Context, sf *world.SeedFile) (SeedReport, error) {
	var rep SeedReport

	n, err := world.Import(ctx, a.store, sf)
	rep.Records = n
	if err != nil {
		return rep, err
	}

	examples := a.caches.Cache(cache.NamespaceConvExample)
	for sceneID, text := range sf.ConversationExamples {
		if err := cache.Set(ctx, examples, sceneID, text); err != nil {
			return rep, fmt.Errorf("app: seed example %q: %w", sceneID, err)
		}
		rep.Examples++
	}

	if len(sf.Knowledge) == 0 {
		return rep, nil
	}
	if a.knowledge == nil {
		slog.Warn("no embeddings provider configured; skipping knowledge", "entries", len(sf.Knowledge))
		return rep, nil
	}
	for _, l := range sf.Knowledge {
		if _, err := a.knowledge.Ingest(ctx, l.Text, l.LoreLevel); err != nil {
			return rep, fmt.Errorf("app: seed knowledge: %w", err)
		}
		rep.Knowledge++
	}
	return rep, nil
}
