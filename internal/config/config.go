// Package config defines the configuration schema for the parley server.
//
// Configuration is loaded from a YAML file via [Load] or [LoadFromReader].
// Provider entries reference factories registered in a [Registry], so new
// provider families can be plugged in without changing the schema.
package config

import (
	"time"

	"github.com/MrWong99/parley/internal/generate"
	"github.com/MrWong99/parley/internal/prompt"
	"github.com/MrWong99/parley/internal/resilience"
)

// LogLevel controls the verbosity of the application logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CacheBackend selects the storage behind the namespaced caches.
type CacheBackend string

const (
	CacheMemory   CacheBackend = "memory"
	CacheRedis    CacheBackend = "redis"
	CachePostgres CacheBackend = "postgres"
)

// IsValid reports whether b is a recognised cache backend.
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheMemory, CacheRedis, CachePostgres:
		return true
	}
	return false
}

// DatabaseDriver selects the durable store for NPCs, scenes and knowledge.
type DatabaseDriver string

const (
	DriverPostgres DatabaseDriver = "postgres"
	DriverSQLite   DatabaseDriver = "sqlite"
)

// IsValid reports whether d is a recognised database driver.
func (d DatabaseDriver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

// Default values applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr          = ":8080"
	DefaultRequestTimeout      = 60 * time.Second
	DefaultSQLiteDSN           = "parley.db"
	DefaultEmbeddingDimensions = 768

	DefaultFlashModel      = "gemini-1.5-flash-002"
	DefaultProModel        = "gemini-1.5-pro-002"
	DefaultTextModel       = "gemini-1.5-flash-001"
	DefaultEmbeddingsModel = "text-multilingual-embedding-002"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Providers  ProvidersConfig           `yaml:"providers"`
	Cache      CacheConfig               `yaml:"cache"`
	Database   DatabaseConfig            `yaml:"database"`
	Scene      SceneConfig               `yaml:"scene"`
	Memory     MemoryConfig              `yaml:"memory"`
	Generation generate.GenerationConfig `yaml:"generation"`
	Resilience resilience.BreakerConfig  `yaml:"resilience"`
}

// ServerConfig holds HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls log verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// APIKey, when set, must be presented in the X-API-KEY header.
	APIKey string `yaml:"api_key"`

	// PlayerCharacter is the name of the player's character in scenes. It
	// is excluded from the NPC list shown to the model. Hot-reloadable.
	PlayerCharacter string `yaml:"player_character"`

	// RequestTimeout bounds each API request. Zero disables the bound.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ProvidersConfig selects the provider for each capability slot.
type ProvidersConfig struct {
	LLM        LLMProviders  `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`

	// EmbeddingsFallbacks are tried in order when the primary embeddings
	// provider is unavailable.
	EmbeddingsFallbacks []ProviderEntry `yaml:"embeddings_fallbacks"`
}

// LLMProviders configures one provider per model tier. Pro and Text fall
// back to Flash when left empty.
type LLMProviders struct {
	Flash ProviderEntry `yaml:"flash"`
	Pro   ProviderEntry `yaml:"pro"`
	Text  ProviderEntry `yaml:"text"`

	// Fallbacks are appended to every tier's failover group.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the common configuration block for any provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g., "gemini", "openai", "anthropic").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific settings such as the Vertex AI
	// "project" and "location" or embedding "dimensions".
	Options map[string]any `yaml:"options"`
}

// IsZero reports whether no provider is configured.
func (p ProviderEntry) IsZero() bool {
	return p.Name == ""
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend       CacheBackend `yaml:"backend"`
	RedisAddr     string       `yaml:"redis_addr"`
	RedisPassword string       `yaml:"redis_password"`
	RedisDB       int          `yaml:"redis_db"`

	// DSN is the PostgreSQL connection string for the postgres backend.
	// Empty reuses database.dsn when the database driver is postgres.
	DSN string `yaml:"dsn"`
}

// DatabaseConfig configures the durable store.
type DatabaseConfig struct {
	Driver DatabaseDriver `yaml:"driver"`
	DSN    string         `yaml:"dsn"`

	// EmbeddingDimensions must match the embeddings model output size.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// SceneConfig holds the prompt templates and the conversation example used
// by scene chat. Hot-reloadable.
type SceneConfig struct {
	prompt.Templates `yaml:",inline"`

	// ExampleFile is read when no conversation example is cached.
	ExampleFile string `yaml:"example_file"`
}

// MemoryConfig configures long-term memory consolidation.
type MemoryConfig struct {
	// SummaryTemplate is the system prompt for the summariser. Empty uses
	// the built-in prompt.
	SummaryTemplate string `yaml:"summary_template"`

	// ConsolidationInterval is how often pending conversations are
	// summarised. Zero uses the consolidator default.
	ConsolidationInterval time.Duration `yaml:"consolidation_interval"`

	// MinTurns is the number of new turns needed before a periodic tick
	// summarises a conversation.
	MinTurns int `yaml:"min_turns"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}

	defaultModel(&c.Providers.LLM.Flash, DefaultFlashModel)
	defaultModel(&c.Providers.LLM.Pro, DefaultProModel)
	defaultModel(&c.Providers.LLM.Text, DefaultTextModel)
	defaultModel(&c.Providers.Embeddings, DefaultEmbeddingsModel)

	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.DSN == "" {
		c.Database.DSN = DefaultSQLiteDSN
	}
	if c.Database.EmbeddingDimensions == 0 {
		c.Database.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.Cache.Backend == CachePostgres && c.Cache.DSN == "" && c.Database.Driver == DriverPostgres {
		c.Cache.DSN = c.Database.DSN
	}

	def := prompt.DefaultTemplates()
	t := &c.Scene.Templates
	if t.Goal == "" {
		t.Goal = def.Goal
	}
	if t.NoGoal == "" {
		t.NoGoal = def.NoGoal
	}
	if t.DialogueFormat == "" {
		t.DialogueFormat = def.DialogueFormat
	}
	if t.Rules == "" {
		t.Rules = def.Rules
	}
	if t.Review == "" {
		t.Review = def.Review
	}

	if c.Generation == (generate.GenerationConfig{}) {
		c.Generation = generate.DefaultGeneration
	}
}

// defaultModel sets the Gemini default model on an entry that names the
// gemini provider without a model.
func defaultModel(p *ProviderEntry, model string) {
	if p.Name == "gemini" && p.Model == "" {
		p.Model = model
	}
}
