// Package main is the entry point for the studio session server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/studiocast/internal/api"
	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/onnwee/studiocast/internal/config"
	"github.com/onnwee/studiocast/internal/feed"
	"github.com/onnwee/studiocast/internal/health"
	"github.com/onnwee/studiocast/internal/livekit"
	"github.com/onnwee/studiocast/internal/middleware"
	"github.com/onnwee/studiocast/internal/statesync"
	"github.com/onnwee/studiocast/internal/studio"
	"github.com/onnwee/studiocast/internal/tracing"
)

const serviceName = "studiocast"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file (environment variables take precedence)")
	flag.Parse()

	if *help {
		fmt.Println("Studiocast Studio Server")
		fmt.Println()
		fmt.Println("Usage: studiod [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, loadErrs := config.Load(*configPath)
	if len(loadErrs) > 0 {
		for _, err := range loadErrs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Broadcast records
	var (
		repo broadcast.Repository
		db   *sql.DB
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
		repo = broadcast.NewPostgresRepository(db)
		logger.Info("using postgres broadcast repository")
	} else {
		repo = broadcast.NewInMemoryRepository()
		logger.Warn("DATABASE_URL not set, broadcast records are kept in memory")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	feedMetrics := feed.NewMetrics()
	syncMetrics := statesync.NewMetrics()
	studioMetrics := studio.NewMetrics()
	for _, m := range []interface {
		Register(prometheus.Registerer) error
	}{httpMetrics, feedMetrics, syncMetrics, studioMetrics} {
		if err := m.Register(registry); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	// Push feed. The hub replays LIVE records from a service that does not
	// announce; the service used for writes announces through the relay
	// when Redis is configured so every instance's subscribers see it.
	hub := feed.NewHub(broadcast.NewStatusService(repo, nil, logger), logger)
	hub.SetMetrics(feedMetrics)

	var (
		announcer broadcast.Announcer = hub
		relay     *feed.RedisRelay
	)
	if redisClient != nil {
		relay = feed.NewRedisRelay(redisClient, "", hub, logger)
		announcer = relay
	}
	statusService := broadcast.NewStatusService(repo, announcer, logger)

	// Liveness facts
	bus := statesync.NewBus(statusService, logger)
	bus.SetMetrics(syncMetrics)
	chat := statesync.NewChatActivation()
	player := statesync.NewPlayerState()
	bus.Subscribe(chat)
	bus.Subscribe(player)
	var discovery *statesync.DiscoveryCache
	if redisClient != nil {
		discovery = statesync.NewDiscoveryCache(redisClient, "", logger)
		defer discovery.Close()
		bus.Subscribe(discovery)
	}

	// Peer instances' facts reach the local bus through the relay. This
	// instance's own announcements come back as duplicates and are dropped.
	if relay != nil {
		relay.OnEvent(func(ctx context.Context, ev feed.Event) {
			bus.Apply(ctx, ev)
		})
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("feed relay stopped", "error", err)
			}
		}()
	}

	// Studio sessions
	factory, err := livekit.NewFactory(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, logger)
	if err != nil {
		return fmt.Errorf("failed to create livekit transport factory: %w", err)
	}
	manager := studio.NewManager(factory, bus, studio.SessionOptions{
		Logger:             logger,
		Metrics:            studioMetrics,
		RequireUserGesture: cfg.RequireUserGesture,
	})

	// Rate limiting
	var limitStore middleware.RateLimitStore
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient, httpMetrics, logger)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore
		go cleanupLoop(ctx, memStore, 5*time.Minute)
	}
	globalLimiter := middleware.RateLimiter(limitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)
	tokenLimiter := middleware.RateLimiter(limitStore, middleware.DefaultTokenLimit(), middleware.IPKeyFunc(), httpMetrics)

	// Handlers
	studioHandlers := api.NewStudioHandlers(api.StudioHandlersConfig{
		Manager:   manager,
		Registrar: statusService,
		Defaults: api.SessionDefaults{
			MaxHosts:         cfg.MaxHosts,
			MaxGuests:        cfg.MaxGuests,
			TransportTimeout: cfg.TransportTimeout,
		},
		TokenLimiter: tokenLimiter,
	})

	healthConfig := api.HealthHandlersConfig{
		LiveKitChecker: health.NewLiveKitChecker(cfg.LiveKitURL, factory.Rooms()),
		MetricsEnabled: true,
	}
	if db != nil {
		healthConfig.DBChecker = health.NewDBChecker(db)
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	discoveryHandlers := api.NewDiscoveryHandlers(nil, statusService)
	if discovery != nil {
		discoveryHandlers = api.NewDiscoveryHandlers(discovery, statusService)
	}

	activityHandlers := api.NewActivityHandlers(chat, player)
	feedHandlers := api.NewFeedHandlers(hub, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/health/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	limitedStudio := globalLimiter(studioHandlers)
	mux.Handle("/studio/sessions", limitedStudio)
	mux.Handle("/studio/sessions/", limitedStudio)
	mux.Handle("/broadcasts/live", globalLimiter(http.HandlerFunc(discoveryHandlers.ListLive)))
	mux.Handle("/broadcasts/", globalLimiter(http.HandlerFunc(activityHandlers.ChatStatus)))
	mux.Handle("/player", globalLimiter(http.HandlerFunc(activityHandlers.Player)))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"studiocast","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.HTTPMetrics(httpMetrics)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	// The feed upgrade needs the raw ResponseWriter, so it bypasses the
	// wrapping middleware.
	root := http.NewServeMux()
	root.Handle("/feed", middleware.RequestID(http.HandlerFunc(feedHandlers.Subscribe)))
	root.Handle("/", handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go reconcileLoop(ctx, bus, cfg.ReconcileInterval, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		shutdownErr = err
	}
	if err := manager.CloseAll(shutdownCtx); err != nil {
		logger.Error("failed to close studio sessions", "error", err)
	}
	hub.CloseAll()
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}
	return shutdownErr
}

// reconcileLoop retries failed durable status writes until ctx is done.
func reconcileLoop(ctx context.Context, bus *statesync.Bus, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		logger.Warn("status reconciliation disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bus.Reconcile(ctx)
		}
	}
}

// cleanupLoop evicts expired in-memory rate limit buckets.
func cleanupLoop(ctx context.Context, store *middleware.InMemoryRateLimitStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}
