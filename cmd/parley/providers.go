package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
	gemembed "github.com/MrWong99/parley/pkg/provider/embeddings/gemini"
	oaembed "github.com/MrWong99/parley/pkg/provider/embeddings/openai"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/anyllm"
	"github.com/MrWong99/parley/pkg/provider/llm/gemini"
	"github.com/MrWong99/parley/pkg/provider/llm/openai"
)

// defaultOllamaURL is the OpenAI-compatible endpoint of a local Ollama.
const defaultOllamaURL = "http://localhost:11434/v1"

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("gemini", func(ctx context.Context, entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if project := optString(entry.Options, "project"); project != "" {
			opts = append(opts, gemini.WithVertexAI(project, optString(entry.Options, "location")))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern through any-llm:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(_ context.Context, entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("gemini", func(ctx context.Context, entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []gemembed.Option
		if project := optString(entry.Options, "project"); project != "" {
			opts = append(opts, gemembed.WithVertexAI(project, optString(entry.Options, "location")))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, gemembed.WithDimensions(n))
		}
		return gemembed.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	newOpenAIEmbeddings := func(entry config.ProviderEntry, baseURL string) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if baseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(baseURL))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	}
	reg.RegisterEmbeddings("openai", func(_ context.Context, entry config.ProviderEntry) (embeddings.Provider, error) {
		return newOpenAIEmbeddings(entry, entry.BaseURL)
	})
	// Ollama serves embeddings through its OpenAI-compatible API.
	reg.RegisterEmbeddings("ollama", func(_ context.Context, entry config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		if entry.APIKey == "" {
			entry.APIKey = "ollama"
		}
		return newOpenAIEmbeddings(entry, baseURL)
	})

	slog.Debug("registered providers", "llm", reg.LLMNames(), "embeddings", reg.EmbeddingsNames())
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Pro and Text left empty fall back to Flash inside the generator.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	tiers := []struct {
		kind  string
		entry config.ProviderEntry
		slot  *llm.Provider
	}{
		{"flash", cfg.Providers.LLM.Flash, &ps.Flash},
		{"pro", cfg.Providers.LLM.Pro, &ps.Pro},
		{"text", cfg.Providers.LLM.Text, &ps.Text},
	}
	for _, t := range tiers {
		if t.entry.IsZero() {
			continue
		}
		p, err := createLLM(ctx, reg, "llm_"+t.kind, t.entry)
		if err != nil {
			return nil, err
		}
		*t.slot = p
	}
	for _, e := range cfg.Providers.LLM.Fallbacks {
		p, err := createLLM(ctx, reg, "llm_fallback", e)
		if err != nil {
			return nil, err
		}
		if p != nil {
			ps.LLMFallbacks = append(ps.LLMFallbacks, app.NamedLLM{Name: e.Name, Provider: p})
		}
	}

	if e := cfg.Providers.Embeddings; !e.IsZero() {
		p, err := createEmbeddings(ctx, reg, "embeddings", e)
		if err != nil {
			return nil, err
		}
		ps.Embeddings = p
	}
	for _, e := range cfg.Providers.EmbeddingsFallbacks {
		p, err := createEmbeddings(ctx, reg, "embeddings_fallback", e)
		if err != nil {
			return nil, err
		}
		if p != nil {
			ps.EmbeddingsFallbacks = append(ps.EmbeddingsFallbacks, app.NamedEmbeddings{Name: e.Name, Provider: p})
		}
	}
	return ps, nil
}

func createLLM(ctx context.Context, reg *config.Registry, kind string, e config.ProviderEntry) (llm.Provider, error) {
	p, err := reg.CreateLLM(ctx, e)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", e.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
	return p, nil
}

func createEmbeddings(ctx context.Context, reg *config.Registry, kind string, e config.ProviderEntry) (embeddings.Provider, error) {
	p, err := reg.CreateEmbeddings(ctx, e)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", e.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
	return p, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          parley startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM flash", cfg.Providers.LLM.Flash)
	printProvider("LLM pro", cfg.Providers.LLM.Pro)
	printProvider("LLM text", cfg.Providers.LLM.Text)
	printProvider("Embeddings", cfg.Providers.Embeddings)
	fmt.Printf("║  %-12s    : %-19d ║\n", "Fallbacks", len(cfg.Providers.LLM.Fallbacks)+len(cfg.Providers.EmbeddingsFallbacks))
	fmt.Printf("║  %-12s    : %-19s ║\n", "Database", cfg.Database.Driver)
	fmt.Printf("║  %-12s    : %-19s ║\n", "Cache", cfg.Cache.Backend)
	fmt.Printf("║  %-12s    : %-19s ║\n", "Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, e config.ProviderEntry) {
	value := e.Name
	if value == "" {
		value = "(not configured)"
	} else if e.Model != "" {
		value = e.Name + " / " + e.Model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
