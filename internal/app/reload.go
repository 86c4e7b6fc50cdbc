package app

import (
	"log/slog"

	"github.com/MrWong99/parley/internal/config"
)

// Reload applies the hot-reloadable parts of updated to the running app
// and returns the diff against old. Changes that need a restart are logged
// and otherwise ignored. level, when non-nil, receives log level changes.
//
// Reload is intended as the [config.Watcher] callback.
func (a *App) Reload(old, updated *config.Config, level *slog.LevelVar) config.ConfigDiff {
	d := config.Diff(old, updated)

	if d.LogLevelChanged && level != nil {
		level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TemplatesChanged {
		a.orch.SetTemplates(updated.Scene.Templates)
		slog.Info("scene templates reloaded")
	}
	// Every applied revision re-reads the example file, even when its path
	// is unchanged.
	a.orch.SetExampleFile(updated.Scene.ExampleFile)
	if d.ExampleFileChanged {
		slog.Info("conversation example file changed", "path", updated.Scene.ExampleFile)
	}
	if d.PlayerCharacterChanged {
		a.orch.SetPlayerCharacter(updated.Server.PlayerCharacter)
		slog.Info("player character changed", "player_character", updated.Server.PlayerCharacter)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
	return d
}

// SlogLevel converts a config log level. Unknown values map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
