// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/config"
	"github.com/autoline-ai/handoff-platform/internal/handler"
	"github.com/autoline-ai/handoff-platform/internal/jobs"
	"github.com/autoline-ai/handoff-platform/internal/llm"
	"github.com/autoline-ai/handoff-platform/internal/middleware"
	natsclient "github.com/autoline-ai/handoff-platform/internal/nats"
	"github.com/autoline-ai/handoff-platform/internal/service"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/internal/telegram"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "handoff-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	nc, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	broadcaster := natsclient.NewBroadcaster(nc, log)

	// Open the datastore; fall back to in-memory for local development
	var st store.Store
	if cfg.DatabaseURL != "" {
		gs, err := store.NewGormStore(cfg.DatabaseURL, log)
		if err != nil {
			log.Error("failed to open database", zap.Error(err))
			os.Exit(1)
		}
		st = gs
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	// Initialize LLM client
	var llmClient llm.Client
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	if apiKey != "" {
		if c, err := llm.NewClient(provider, apiKey); err != nil {
			log.Warn("failed to create LLM client, assistant disabled", zap.Error(err))
		} else {
			llmClient = c
		}
	} else {
		log.Warn("no LLM API key configured, assistant disabled")
	}

	// Messaging provider
	messenger := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramTimeout)

	// Background task queue
	queue, err := jobs.NewNATSQueue(ctx, nc, cfg.JobWorkers, log)
	if err != nil {
		log.Error("failed to create task queue", zap.Error(err))
		os.Exit(1)
	}

	// Initialize services
	notifier := service.NewNotifier(messenger, log)
	analytics := service.NewAnalytics(queue, cfg.AnalyticsEnabled, cfg.SessionSecret, log)
	takeoverSvc := service.NewTakeoverService(st, notifier, analytics, broadcaster, queue, cfg.TakeoverTimeout, log)
	managerSvc := service.NewManagerService(st, messenger, takeoverSvc, analytics, broadcaster, cfg.ManagerRateLimit, cfg.ManagerRateWindow, log)
	assistantSvc := service.NewAssistantService(st, llmClient, messenger, broadcaster, log)
	recorder := service.NewAnalyticsRecorder(st, log)

	// Register task handlers and start workers
	queue.Register(jobs.TaskRevertTakeover, takeoverSvc.HandleReversionTask)
	queue.Register(jobs.TaskRecordAnalytics, recorder.HandleRecordTask)
	if err := queue.Start(ctx); err != nil {
		log.Error("failed to start task workers", zap.Error(err))
		os.Exit(1)
	}
	defer queue.Stop()

	// Deadline sweeper: releases takeovers whose reversion timer was lost
	sweeper, err := jobs.NewSweeper(cfg.SweepInterval, takeoverSvc.ReleaseExpired, log)
	if err != nil {
		log.Error("failed to create sweeper", zap.Error(err))
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc, st)
	chatHandler := handler.NewChatHandler(st, log)
	takeoverHandler := handler.NewTakeoverHandler(takeoverSvc, managerSvc, cfg.NotifyOnTakeover, log)
	webhookHandler := handler.NewWebhookHandler(st, assistantSvc, log)
	liveHandler := handler.NewLiveHandler(broadcaster, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Inbound Telegram updates (authenticated by bot token in the path)
	r.Post("/webhook/telegram/{token}", webhookHandler.Receive)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", chatHandler.List)
			r.Get("/live", liveHandler.Stream)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", chatHandler.Get)
				r.Get("/messages", chatHandler.Messages)

				r.Post("/takeover", takeoverHandler.Takeover)
				r.Post("/release", takeoverHandler.Release)
				r.Post("/extend", takeoverHandler.Extend)
				r.Post("/messages", takeoverHandler.SendMessage)
			})
		})

		r.Get("/bookings", chatHandler.Bookings)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
