package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/amazon-offer-scraper/internal/api"
	"github.com/maltedev/amazon-offer-scraper/internal/browser"
	"github.com/maltedev/amazon-offer-scraper/internal/config"
	"github.com/maltedev/amazon-offer-scraper/internal/database"
	"github.com/maltedev/amazon-offer-scraper/internal/extractor"
	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Setup logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.Logging.Level)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare database", "error", err)
		os.Exit(1)
	}

	// Browser setup
	opts := browser.DefaultOptions()
	opts.Driver = cfg.Browser.Driver
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.NavTimeout
	opts.ProxyServer = cfg.Browser.Proxy

	launcher, err := browser.NewLauncher(opts, logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err, "driver", opts.Driver)
		os.Exit(1)
	}
	defer launcher.Close()

	// Outbox relay, only when Redis is configured
	var outbox api.OutboxStats
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, database.RelayConfig{
			Stream:       cfg.Redis.Stream,
			PollInterval: cfg.Redis.PollInterval,
			BatchSize:    100,
		}, logger)
		go func() {
			if err := relay.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
		outbox = relay
	} else {
		logger.Info("REDIS_ADDR not set, outbox relay disabled")
	}

	// Initialize services
	scraperService := scraper.NewService(launcher, extractor.Timings{
		Settle:       cfg.Offers.Settle,
		Close:        cfg.Offers.Close,
		WaitTimeout:  cfg.Offers.WaitTimeout,
		PollInterval: cfg.Offers.PollInterval,
	}, logger)
	handlers := api.NewHandlers(scraperService, database.NewProductRepository(db), outbox, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	handlers.Register(r)

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		cancel()
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "driver", opts.Driver, "relay", cfg.Redis.Enabled())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
