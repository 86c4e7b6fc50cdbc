package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"gemini", "openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %s must not be negative", cfg.Server.RequestTimeout))
	}

	// Providers
	llms := cfg.Providers.LLM
	if llms.Flash.IsZero() && llms.Pro.IsZero() && llms.Text.IsZero() {
		errs = append(errs, errors.New("providers.llm: at least one of flash, pro or text must be configured"))
	}
	validateProviderName("llm", llms.Flash.Name)
	validateProviderName("llm", llms.Pro.Name)
	validateProviderName("llm", llms.Text.Name)
	for i, fb := range llms.Fallbacks {
		if fb.IsZero() {
			errs = append(errs, fmt.Errorf("providers.llm.fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, fb := range cfg.Providers.EmbeddingsFallbacks {
		if fb.IsZero() {
			errs = append(errs, fmt.Errorf("providers.embeddings_fallbacks[%d].name is required", i))
		}
	}
	if cfg.Providers.Embeddings.IsZero() {
		slog.Warn("providers.embeddings is not configured; knowledge search will not be available")
	}

	// Cache
	switch {
	case !cfg.Cache.Backend.IsValid():
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, redis, postgres", cfg.Cache.Backend))
	case cfg.Cache.Backend == CacheRedis && cfg.Cache.RedisAddr == "":
		errs = append(errs, errors.New("cache.redis_addr is required when cache.backend is redis"))
	case cfg.Cache.Backend == CachePostgres && cfg.Cache.DSN == "":
		errs = append(errs, errors.New("cache.dsn is required when cache.backend is postgres and database.driver is not postgres"))
	}
	if cfg.Cache.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("cache.redis_db %d must not be negative", cfg.Cache.RedisDB))
	}

	// Database
	if !cfg.Database.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("database.driver %q is invalid; valid values: postgres, sqlite", cfg.Database.Driver))
	}
	if cfg.Database.Driver == DriverPostgres && cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required when database.driver is postgres"))
	}
	if cfg.Database.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("database.embedding_dimensions %d must be positive", cfg.Database.EmbeddingDimensions))
	}

	// Scene
	if err := cfg.Scene.Templates.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scene: %w", err))
	}
	if cfg.Scene.ExampleFile != "" {
		if _, err := os.Stat(cfg.Scene.ExampleFile); err != nil {
			slog.Warn("scene.example_file is not readable; prompts will carry no conversation example",
				"path", cfg.Scene.ExampleFile, "err", err)
		}
	}

	// Memory
	if cfg.Memory.ConsolidationInterval < 0 {
		errs = append(errs, fmt.Errorf("memory.consolidation_interval %s must not be negative", cfg.Memory.ConsolidationInterval))
	}
	if cfg.Memory.MinTurns < 0 {
		errs = append(errs, fmt.Errorf("memory.min_turns %d must not be negative", cfg.Memory.MinTurns))
	}

	// Generation
	if g := cfg.Generation; g.MaxTokens < 0 || g.Temperature < 0 || g.TopP < 0 || g.TopP > 1 || g.TopK < 0 {
		errs = append(errs, fmt.Errorf("generation: invalid sampling parameters %+v", g))
	}

	// Resilience
	if r := cfg.Resilience; r.MaxFailures < 0 || r.ResetTimeout < 0 || r.HalfOpenMax < 0 {
		errs = append(errs, errors.New("resilience: max_failures, reset_timeout and half_open_max must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
