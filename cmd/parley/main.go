// Command parley runs the NPC scene dialogue server and its maintenance
// commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		return 1
	}
	return 0
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	level      slog.LevelVar
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Multi-NPC scene dialogue server",
		Long:          "parley orchestrates LLM-driven conversations between players and the non-player characters of a scene.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newSeedCmd(g),
		newChatCmd(g),
	)
	return root
}

// loadConfig reads the config file and installs the JSON logger at the
// configured level.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", g.configPath)
		}
		return nil, err
	}
	g.level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&g.level))
	return cfg, nil
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
