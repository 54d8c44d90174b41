package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subscription-verifier/internal/api"
	"subscription-verifier/internal/billing"
	"subscription-verifier/internal/config"
	"subscription-verifier/internal/logs"
	"subscription-verifier/internal/metrics"
	"subscription-verifier/internal/store"
	"subscription-verifier/internal/stripe"
	"subscription-verifier/internal/verifier"
)

func main() {
	configPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logger
	logger := logs.NewLogger(cfg.Logging.BufferSize, logs.ParseLevel(cfg.Logging.Level)).
		WithOutput(os.Stdout)

	// Metrics
	metricsRegistry := metrics.NewRegistry()

	// Verdict cache
	cacheStore := store.NewStore(cfg.Cache.Capacity, cfg.Cache.TTL(), metricsRegistry)

	// Billing provider
	retry := stripe.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Stripe.MaxRetries
	stripeClient := stripe.NewClient(stripe.Config{
		APIKey:               cfg.Stripe.APIKey,
		BaseURL:              cfg.Stripe.BaseURL,
		APIVersion:           cfg.Stripe.APIVersion,
		Timeout:              time.Duration(cfg.Stripe.TimeoutSeconds) * time.Second,
		CustomerPageSize:     cfg.Stripe.CustomerPageSize,
		SubscriptionPageSize: cfg.Stripe.SubscriptionPageSize,
		Retry:                retry,
	}, metricsRegistry)

	// Lookup service
	service := verifier.NewService(
		cacheStore,
		billing.NewResolver(stripeClient),
		logger,
		metricsRegistry,
		verifier.WithCoalescing(cfg.Cache.Coalesce),
	)

	// API
	handler := api.NewHandler(
		service,
		cacheStore,
		metricsRegistry,
		logger,
		cfg.Server.PublicDir,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.RegisterRoutes(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server started",
			"addr", server.Addr,
			"cache_capacity", cacheStore.Capacity(),
			"cache_ttl", cacheStore.TTL(),
			"coalesce", cfg.Cache.Coalesce,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second,
	)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
