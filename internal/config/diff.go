package config

import "reflect"

// ConfigDiff describes what changed between two configs. Fields that can be
// applied at runtime get a flag; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TemplatesChanged is true when any scene prompt template changed.
	TemplatesChanged bool

	ExampleFileChanged     bool
	PlayerCharacterChanged bool

	// RestartRequired names the top-level keys whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// HotReloadable reports whether d contains any change that can be applied
// without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.TemplatesChanged || d.ExampleFileChanged || d.PlayerCharacterChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.TemplatesChanged = old.Scene.Templates != new.Scene.Templates
	d.ExampleFileChanged = old.Scene.ExampleFile != new.Scene.ExampleFile
	d.PlayerCharacterChanged = old.Server.PlayerCharacter != new.Server.PlayerCharacter

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.APIKey != new.Server.APIKey ||
		old.Server.RequestTimeout != new.Server.RequestTimeout {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.Database != new.Database {
		d.RestartRequired = append(d.RestartRequired, "database")
	}
	if old.Memory != new.Memory {
		d.RestartRequired = append(d.RestartRequired, "memory")
	}
	if old.Generation != new.Generation {
		d.RestartRequired = append(d.RestartRequired, "generation")
	}
	if !sameBreaker(old, new) {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	return d
}

func sameBreaker(a, b *Config) bool {
	x, y := a.Resilience, b.Resilience
	return x.MaxFailures == y.MaxFailures && x.ResetTimeout == y.ResetTimeout && x.HalfOpenMax == y.HalfOpenMax
}
