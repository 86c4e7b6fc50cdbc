package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/world"
)

func newSeedCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load NPCs, scenes, conversation examples and lore from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := world.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdown(a)

			rep, err := a.Seed(ctx, sf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d records, %d conversation examples, %d knowledge entries\n",
				rep.Records, rep.Examples, rep.Knowledge)
			return nil
		},
	}
}

// newApp builds providers from cfg and wires an App without serving it.
func newApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, providers)
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Shutdown(ctx)
}
