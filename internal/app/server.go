package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jordanhubbard/councilhub/internal/auth"
	"github.com/jordanhubbard/councilhub/internal/catalog"
	"github.com/jordanhubbard/councilhub/internal/council"
	"github.com/jordanhubbard/councilhub/internal/events"
	"github.com/jordanhubbard/councilhub/internal/health"
	"github.com/jordanhubbard/councilhub/internal/httpapi"
	"github.com/jordanhubbard/councilhub/internal/jobs"
	"github.com/jordanhubbard/councilhub/internal/logging"
	"github.com/jordanhubbard/councilhub/internal/metrics"
	"github.com/jordanhubbard/councilhub/internal/providers/anthropic"
	"github.com/jordanhubbard/councilhub/internal/providers/cerebras"
	"github.com/jordanhubbard/councilhub/internal/providers/fireworks"
	"github.com/jordanhubbard/councilhub/internal/providers/gemini"
	"github.com/jordanhubbard/councilhub/internal/providers/moonshot"
	"github.com/jordanhubbard/councilhub/internal/providers/openrouter"
	"github.com/jordanhubbard/councilhub/internal/providers/xai"
	"github.com/jordanhubbard/councilhub/internal/ratelimit"
	"github.com/jordanhubbard/councilhub/internal/router"
	"github.com/jordanhubbard/councilhub/internal/secrets"
	"github.com/jordanhubbard/councilhub/internal/store"
	"github.com/jordanhubbard/councilhub/internal/tracing"
	"github.com/jordanhubbard/councilhub/internal/webhook"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// rateLimitInterval is the refill interval: RateLimitRPS tokens per second.
const rateLimitInterval = time.Second

type Server struct {
	cfg Config

	r *chi.Mux

	engine  *council.Engine
	store   store.Store
	limiter *ratelimit.Limiter
	prober  *health.Prober
	logger  *slog.Logger

	tracingShutdown func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	tracingShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "councilhub",
	})
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitInterval)

	allowedOrigins := cfg.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Council-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(limiter.Middleware)
	r.Use(auth.Middleware(cfg.APIKey, logger))

	m := metrics.New()
	bus := events.NewBus()
	ht := health.NewTracker(health.DefaultConfig(), health.WithEventBus(bus))

	table, err := loadRoutingTable(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt := router.New(table, logger,
		router.WithHealth(ht),
		router.WithMetrics(&providerMetrics{m: m}))

	keys := secrets.Load(logger)
	listers, probeTargets := registerProviders(rt, keys, logger)

	engine := council.New(rt, cfg.CouncilModels, cfg.ChairmanModel, logger,
		council.WithEventBus(bus),
		council.WithObserver(&deliberationMetrics{m: m}))

	db, err := store.NewSQLite(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database initialized", slog.String("dsn", cfg.DBDSN))

	jobStore := jobs.NewStore(jobs.WithGauge(m.JobsActive))
	webhooks := webhook.New(logger,
		webhook.WithEventBus(bus),
		webhook.WithMetrics(&webhookMetrics{m: m}))
	runner := jobs.NewRunner(jobStore, engine, webhooks, logger, jobs.WithEventBus(bus))

	discovery := catalog.New(cfg.CacheDir, listers, logger)

	s := &Server{
		cfg:             cfg,
		r:               r,
		engine:          engine,
		store:           db,
		limiter:         limiter,
		logger:          logger,
		tracingShutdown: tracingShutdown,
	}

	if cfg.HealthProbes && len(probeTargets) > 0 {
		s.prober = health.NewProber(health.DefaultProberConfig(), ht, probeTargets, logger)
		s.prober.Start()
	}

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Engine:   engine,
		Router:   rt,
		Jobs:     jobStore,
		Runner:   runner,
		Store:    db,
		Catalog:  discovery,
		Health:   ht,
		Metrics:  m,
		EventBus: bus,
		Version:  Version,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Reload applies the runtime-adjustable parts of a fresh config. Only the
// log level can change without a restart; everything else (providers, council
// membership, listen address) is wired at construction time.
func (s *Server) Reload(cfg Config) {
	if cfg.LogLevel != s.cfg.LogLevel {
		logging.SetLevel(cfg.LogLevel)
		s.logger.Info("log level changed", slog.String("level", cfg.LogLevel))
	}
	s.cfg = cfg
}

func (s *Server) Close() error {
	if s.prober != nil {
		s.prober.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.tracingShutdown != nil {
		_ = s.tracingShutdown(context.Background())
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func loadRoutingTable(cfg Config, logger *slog.Logger) (*router.RoutingTable, error) {
	if cfg.RoutingTableFile == "" {
		return router.DefaultTable(), nil
	}
	table, err := router.LoadTable(cfg.RoutingTableFile)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded routing table overrides", slog.String("file", cfg.RoutingTableFile))
	return table, nil
}

// probeTarget points the health prober at a provider endpoint that answers
// unauthenticated GETs with something other than a connection failure.
type probeTarget struct {
	id       string
	endpoint string
}

func (p probeTarget) ID() string             { return p.id }
func (p probeTarget) HealthEndpoint() string { return p.endpoint }

// registerProviders wires every provider whose credentials resolved. It
// returns the model-listing adapters for catalog discovery and the health
// probe targets for the registered providers.
func registerProviders(rt *router.Router, keys *secrets.Secrets, logger *slog.Logger) (map[string]catalog.Lister, []health.Probeable) {
	listers := make(map[string]catalog.Lister)
	var targets []health.Probeable

	register := func(provider string, adapter router.Sender, probeURL string) {
		rt.Register(provider, adapter)
		if probeURL != "" {
			targets = append(targets, probeTarget{id: provider, endpoint: probeURL})
		}
		logger.Info("registered provider", slog.String("provider", provider))
	}

	if key := keys.Get("OPENROUTER_API_KEY"); key != "" {
		a := openrouter.New(key, "https://openrouter.ai/api/v1")
		register(router.ProviderOpenRouter, a, "https://openrouter.ai/api/v1/models")
		listers[router.ProviderOpenRouter] = a
	}
	if key := keys.Get("CEREBRAS_API_KEY"); key != "" {
		a := cerebras.New(key, "https://api.cerebras.ai/v1")
		register(router.ProviderCerebras, a, "https://api.cerebras.ai/v1/models")
		listers[router.ProviderCerebras] = a
	}
	if key := keys.Get("FIREWORKS_API_KEY"); key != "" {
		register(router.ProviderFireworks, fireworks.New(key, "https://api.fireworks.ai/inference/v1"),
			"https://api.fireworks.ai/inference/v1/models")
	}
	if key := keys.Get("MOONSHOT_API_KEY"); key != "" {
		register(router.ProviderMoonshot, moonshot.New(key, "https://api.moonshot.ai/v1"),
			"https://api.moonshot.ai/v1/models")
	}
	if key := keys.Get("GROK_API_KEY"); key != "" {
		register(router.ProviderXAI, xai.New(key, "https://api.x.ai/v1"),
			"https://api.x.ai/v1/models")
	}
	if key := keys.GeminiKey(); key != "" {
		register(router.ProviderGemini, gemini.New(key, "https://generativelanguage.googleapis.com/v1beta"),
			"https://generativelanguage.googleapis.com/v1beta/models?key="+key)
	}

	// Anthropic works with an API key, OAuth credentials on disk, or both.
	// GET on the messages endpoint returns 405, which the prober treats as up.
	apiKey := keys.Get("ANTHROPIC_API_KEY")
	if apiKey != "" || hasAnthropicOAuth() {
		register(router.ProviderAnthropic,
			anthropic.New(apiKey, "https://api.anthropic.com", anthropic.DefaultAuthPaths(), anthropic.DefaultTokenURL),
			"https://api.anthropic.com/v1/messages")
	}

	return listers, targets
}

func hasAnthropicOAuth() bool {
	for _, path := range anthropic.DefaultAuthPaths() {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
