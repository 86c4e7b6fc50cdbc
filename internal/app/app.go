// Package app wires all parley subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context ends, and Shutdown
// tears everything down in order.
//
// For testing, inject in-memory implementations via functional options
// (WithCacheBackend, WithStore, WithKnowledgeIndex). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/parley/internal/api"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/generate"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/knowledge"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/scene"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/world"
	"github.com/MrWong99/parley/pkg/cache"
	cachememory "github.com/MrWong99/parley/pkg/cache/memory"
	cachepostgres "github.com/MrWong99/parley/pkg/cache/postgres"
	cacheredis "github.com/MrWong99/parley/pkg/cache/redis"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
	"github.com/MrWong99/parley/pkg/provider/llm"
)

// shutdownGrace bounds the HTTP drain when Run's context ends.
const shutdownGrace = 10 * time.Second

// NamedLLM is a fallback LLM provider with a label for logs and probes.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// NamedEmbeddings is a fallback embeddings provider with a label.
type NamedEmbeddings struct {
	Name     string
	Provider embeddings.Provider
}

// Providers holds one interface value per provider slot. Nil means the
// slot is not configured. Populated by the CLI via the config registry.
type Providers struct {
	Flash llm.Provider
	Pro   llm.Provider
	Text  llm.Provider

	LLMFallbacks []NamedLLM

	Embeddings          embeddings.Provider
	EmbeddingsFallbacks []NamedEmbeddings
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	promH     http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	pool         *pgxpool.Pool
	backend      cache.Backend
	caches       *cache.Factory
	store        world.Store
	index        knowledge.Index
	resolver     *world.Resolver
	llmGroups    map[generate.Tier]*resilience.LLMGroup
	embGroup     *resilience.EmbeddingsGroup
	generator    *generate.Generator
	history      *session.HistoryStore
	convLog      *session.ConversationLog
	memories     *session.MemoryStore
	consolidator *session.Consolidator
	orch         *scene.Orchestrator
	knowledge    *knowledge.Service
	checkers     []health.Checker

	server   *http.Server
	listener net.Listener

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCacheBackend injects a cache backend instead of creating one from config.
func WithCacheBackend(b cache.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithStore injects an NPC and scene store instead of opening the database.
func WithStore(s world.Store) Option {
	return func(a *App) { a.store = s }
}

// WithKnowledgeIndex injects a knowledge index.
func WithKnowledgeIndex(idx knowledge.Index) Option {
	return func(a *App) { a.index = idx }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves /metrics from h instead of the Prometheus
// default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promH = h }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. New performs all
// initialisation synchronously: database connection and migration, cache
// backend selection, provider failover groups, session stores, the
// generator and the scene orchestrator.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.providers == nil {
		a.providers = &Providers{}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.promH == nil {
		a.promH = promhttp.Handler()
	}

	// ── 1. Database ──────────────────────────────────────────────────────
	if err := a.initDatabase(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init database: %w", err)
	}

	// ── 2. Cache ─────────────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Providers ─────────────────────────────────────────────────────
	models, err := a.initProviders()
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 4. Session stores + generator ────────────────────────────────────
	a.initSessions(models)
	a.generator = generate.New(models, a.history,
		generate.WithGeneration(cfg.Generation),
		generate.WithMetrics(a.metrics),
	)

	// ── 5. Scene orchestrator ────────────────────────────────────────────
	a.resolver = world.NewResolver(a.store, a.caches, world.WithResolverMetrics(a.metrics))
	a.orch = scene.New(a.resolver, a.generator, cfg.Scene.Templates,
		scene.WithPlayerCharacter(cfg.Server.PlayerCharacter),
		scene.WithExamples(a.caches.Cache(cache.NamespaceConvExample), cfg.Scene.ExampleFile),
		scene.WithConversationLog(a.convLog),
		scene.WithConsolidator(a.consolidator),
		scene.WithMetrics(a.metrics),
	)

	// ── 6. Knowledge ─────────────────────────────────────────────────────
	if models.Embeddings != nil {
		a.knowledge = knowledge.NewService(a.index, a.generator)
	} else {
		slog.Warn("no embeddings provider configured; knowledge search disabled")
	}

	// ── 7. Readiness ─────────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDatabase opens the configured store and knowledge index unless both
// were injected.
func (a *App) initDatabase(ctx context.Context) error {
	if a.store != nil && a.index != nil {
		return nil
	}
	db := a.cfg.Database

	switch db.Driver {
	case config.DriverPostgres:
		pool, err := OpenPostgres(ctx, db.DSN)
		if err != nil {
			return err
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.checkers = append(a.checkers, health.Ping("database", pool))

		if a.store == nil {
			ps := world.NewPostgresStore(pool)
			if err := ps.Migrate(ctx); err != nil {
				return err
			}
			a.store = ps
		}
		if a.index == nil {
			idx := knowledge.NewPostgresIndex(pool, db.EmbeddingDimensions)
			if err := idx.Migrate(ctx); err != nil {
				return err
			}
			a.index = idx
		}

	case config.DriverSQLite:
		if a.store == nil {
			ss, err := world.NewSQLiteStore(ctx, db.DSN)
			if err != nil {
				return err
			}
			a.store = ss
			a.closers = append(a.closers, ss.Close)
			a.checkers = append(a.checkers, health.Ping("database", ss))
		}
		if a.index == nil {
			slog.Warn("sqlite driver keeps knowledge in memory; entries are lost on restart")
			a.index = knowledge.NewMemIndex()
		}

	default:
		return fmt.Errorf("unsupported database driver %q", db.Driver)
	}
	return nil
}

// initCache selects the cache backend.
func (a *App) initCache(ctx context.Context) error {
	if a.backend == nil {
		c := a.cfg.Cache
		switch c.Backend {
		case config.CacheMemory, "":
			a.backend = cachememory.New()

		case config.CacheRedis:
			rb, err := cacheredis.New(ctx, cacheredis.Options{
				Addr:     c.RedisAddr,
				Password: c.RedisPassword,
				DB:       c.RedisDB,
			})
			if err != nil {
				return err
			}
			a.backend = rb
			a.closers = append(a.closers, rb.Close)
			a.checkers = append(a.checkers, health.Ping("cache", rb))

		case config.CachePostgres:
			pool := a.pool
			if pool == nil || c.DSN != a.cfg.Database.DSN {
				p, err := OpenPostgres(ctx, c.DSN)
				if err != nil {
					return err
				}
				a.closers = append(a.closers, func() error { p.Close(); return nil })
				a.checkers = append(a.checkers, health.Ping("cache", p))
				pool = p
			}
			pb := cachepostgres.New(pool)
			if err := pb.Migrate(ctx); err != nil {
				return err
			}
			a.backend = pb

		default:
			return fmt.Errorf("unsupported cache backend %q", c.Backend)
		}
	}
	a.caches = cache.NewFactory(a.backend)
	return nil
}

// initProviders wraps every configured provider in a failover group with
// its own circuit breakers and returns the tier set.
func (a *App) initProviders() (generate.Models, error) {
	p := a.providers
	breaker := a.cfg.Resilience
	breaker.OnStateChange = func(name string, from, to resilience.State) {
		if to == resilience.StateOpen {
			a.metrics.RecordProviderError(context.Background(), name, "breaker_open")
		}
	}

	a.llmGroups = make(map[generate.Tier]*resilience.LLMGroup)
	wrap := func(tier generate.Tier, primary llm.Provider) llm.Provider {
		if primary == nil {
			return nil
		}
		g := resilience.NewLLMGroup(tier.String(), primary, breaker)
		for _, fb := range p.LLMFallbacks {
			g.Add(fb.Name, fb.Provider)
		}
		a.llmGroups[tier] = g
		return g
	}

	models := generate.Models{
		Flash: wrap(generate.TierFlash, p.Flash),
		Pro:   wrap(generate.TierPro, p.Pro),
		Text:  wrap(generate.TierText, p.Text),
	}
	if p.Embeddings != nil {
		a.embGroup = resilience.NewEmbeddingsGroup("embeddings", p.Embeddings, breaker)
		for _, fb := range p.EmbeddingsFallbacks {
			a.embGroup.Add(fb.Name, fb.Provider)
		}
		models.Embeddings = a.embGroup
	}
	if err := models.Validate(); err != nil {
		return models, err
	}
	return models, nil
}

// initSessions creates the cache-backed stores and the memory consolidator.
// Summaries run on the Pro tier.
func (a *App) initSessions(models generate.Models) {
	a.history = session.NewHistoryStore(a.caches.Cache(cache.NamespaceSessions))
	a.convLog = session.NewConversationLog(a.caches.Cache(cache.NamespaceConversations))
	a.memories = session.NewMemoryStore(a.caches.Cache(cache.NamespaceMemory))

	mem := a.cfg.Memory
	a.consolidator = session.NewConsolidator(session.ConsolidatorConfig{
		Log:        a.convLog,
		Memories:   a.memories,
		Summariser: session.NewLLMMemorySummariser(models.For(generate.TierPro), mem.SummaryTemplate),
		Interval:   mem.ConsolidationInterval,
		MinTurns:   mem.MinTurns,
	})
}

func (a *App) initHealth() {
	if g, ok := a.llmGroups[generate.TierFlash]; ok {
		a.checkers = append(a.checkers, health.AnyAvailable("llm", g.Available))
	} else {
		for tier, g := range a.llmGroups {
			a.checkers = append(a.checkers, health.AnyAvailable("llm_"+tier.String(), g.Available))
		}
	}
	if a.embGroup != nil {
		a.checkers = append(a.checkers, health.AnyAvailable("embeddings", a.embGroup.Available))
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the scene chat orchestrator.
func (a *App) Orchestrator() *scene.Orchestrator { return a.orch }

// Store returns the NPC and scene store.
func (a *App) Store() world.Store { return a.store }

// Caches returns the namespaced cache factory.
func (a *App) Caches() *cache.Factory { return a.caches }

// Knowledge returns the knowledge service, or nil without embeddings.
func (a *App) Knowledge() *knowledge.Service { return a.knowledge }

// Consolidator returns the memory consolidator.
func (a *App) Consolidator() *session.Consolidator { return a.consolidator }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	deps := api.Deps{
		Chat:          a.orch,
		World:         a.resolver,
		Conversations: a.convLog,
		Memories:      a.memories,
		Summariser:    a.consolidator,
	}
	// A nil *knowledge.Service must not become a non-nil interface.
	if a.knowledge != nil {
		deps.Knowledge = a.knowledge
	}
	return api.New(deps,
		api.WithAPIKey(a.cfg.Server.APIKey),
		api.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		api.WithMetrics(a.metrics),
		api.WithHealth(health.New(a.checkers...)),
		api.WithMetricsHandler(a.promH),
	).Handler()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts periodic memory consolidation and serves the API. It blocks
// until ctx is cancelled, drains in-flight requests and returns nil, or
// returns the first serve error.
func (a *App) Run(ctx context.Context) error {
	a.consolidator.Start(ctx)

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()
	slog.Info("app running", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := a.server.Shutdown(drainCtx); err != nil {
		slog.Warn("http drain incomplete", "err", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.consolidator != nil {
			a.consolidator.Stop()
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
