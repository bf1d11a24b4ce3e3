package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"grantpath/internal/infra/completion"
	"grantpath/internal/infra/db"
	"grantpath/internal/infra/notifier"
	"grantpath/internal/infra/payment"
	"grantpath/internal/infra/search"
	hhttp "grantpath/internal/handler/http"
	"grantpath/internal/observability/logging"
	resilienceconfig "grantpath/internal/pkg/config"
	"grantpath/internal/resilience"
	"grantpath/internal/resilience/fallback"
	"grantpath/internal/resilience/gateway"
	"grantpath/internal/resilience/health"
	"grantpath/pkg/config"
)

func main() {
	logger := logging.NewLogger()
	if config.GetEnvString("LOG_FORMAT", "json") == "text" {
		logger = logging.NewTextLogger()
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Primary store and its resilience manager.
	pool, err := db.Open(os.Getenv("DATABASE_URL"), db.PoolConfigFromEnv())
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	manager := db.NewManager(pool, db.DefaultManagerConfig(), logger)

	// Fallback substitutes, one per degraded capability.
	searchCache := search.NewResultCache(config.GetEnvDuration("SEARCH_CACHE_TTL", 15*time.Minute))
	readCache := db.NewReadCache(config.GetEnvDuration("STORE_CACHE_TTL", 5*time.Minute))

	webhook := notifier.NewWebhook(notifier.Config{
		Enabled:    config.GetEnvBool("NOTIFY_ENABLED", true),
		WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		Timeout:    config.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
	}, logger)
	deferred := notifier.NewDeferredQueue(webhook, config.GetEnvInt("NOTIFY_QUEUE_CAPACITY", 256), logger)

	fallbacks := fallback.NewRegistry()
	fallbacks.Register(resilience.CapabilityVectorSearch, searchCache.Fallback())
	fallbacks.Register(resilience.CapabilityCompletion, completion.TemplateFallback())
	fallbacks.Register(resilience.CapabilityNotification, deferred.Fallback())
	fallbacks.Register(resilience.CapabilityPrimaryStore, readCache.Fallback())
	// payment-webhook deliberately has no fallback: an unverifiable payment
	// event must surface Unavailable.

	// One gateway per guarded dependency, from startup configuration.
	descriptors, err := resilienceconfig.LoadDescriptors(os.Getenv("RESILIENCE_CONFIG"))
	if err != nil {
		return err
	}
	rc, err := gateway.NewContext(descriptors, fallbacks, gateway.WithLogger(logger))
	if err != nil {
		return err
	}

	// Guarded dependency clients for the business-logic collaborators.
	routes := &hhttp.Routes{Logger: logger}
	if gw, ok := rc.Gateway("grant-index"); ok {
		embedder := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
		routes.Searcher = search.NewSearcher(manager, embedder, gw, searchCache)
	}
	if gw, ok := rc.Gateway("draft-writer"); ok {
		routes.Drafts = completion.NewDraftWriter(os.Getenv("ANTHROPIC_API_KEY"), gw)
	}
	if gw, ok := rc.Gateway("notify-webhook"); ok {
		routes.Notify = notifier.NewService(webhook, gw)
	}
	if gw, ok := rc.Gateway("payment-provider"); ok {
		routes.Payments = payment.NewProviderClient(
			config.GetEnvString("PAYMENT_PROVIDER_URL", "https://api.payments.example.com"),
			os.Getenv("PAYMENT_API_KEY"),
			config.GetEnvDuration("PAYMENT_TIMEOUT", 8*time.Second),
			gw)
	}

	monitor := health.NewMonitor(rc, manager,
		config.GetEnvDuration("HEALTH_POLL_INTERVAL", 30*time.Second), logger)
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	mux := http.NewServeMux()
	routes.Register(mux)
	mux.Handle("/healthz", http.TimeoutHandler(
		&hhttp.HealthHandler{Monitor: monitor, Version: version(), Logger: logger},
		2*time.Second, `{"status":"unavailable"}`))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              config.GetEnvString("LISTEN_ADDR", ":8080"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.Start(gctx)
		return nil
	})
	g.Go(func() error {
		deferred.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
