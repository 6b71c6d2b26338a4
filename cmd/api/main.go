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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/whatsapp-platform/internal/assistant"
	"github.com/capitalize-ai/whatsapp-platform/internal/config"
	"github.com/capitalize-ai/whatsapp-platform/internal/dedup"
	"github.com/capitalize-ai/whatsapp-platform/internal/handler"
	"github.com/capitalize-ai/whatsapp-platform/internal/hub"
	"github.com/capitalize-ai/whatsapp-platform/internal/middleware"
	natsclient "github.com/capitalize-ai/whatsapp-platform/internal/nats"
	"github.com/capitalize-ai/whatsapp-platform/internal/rbac"
	"github.com/capitalize-ai/whatsapp-platform/internal/service"
	"github.com/capitalize-ai/whatsapp-platform/internal/store"
	"github.com/capitalize-ai/whatsapp-platform/internal/whatsapp"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
	"github.com/capitalize-ai/whatsapp-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Infow("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "whatsapp-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warnw("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Database
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Errorw("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Event stream is optional; an empty NATS URL disables it.
	var streamManager *natsclient.StreamManager
	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Errorw("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		streamManager = natsclient.NewStreamManager(nc)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Errorw("failed to ensure stream", "error", err)
			os.Exit(1)
		}
	}

	// Stores
	access := rbac.NewService(pool)
	organizations := store.NewOrganizations(pool)
	contacts := store.NewContacts(pool, log)
	conversations := store.NewConversations(pool, access)
	messages := store.NewMessages(pool)

	// Assistant gateway and action registry
	actions := assistant.NewRegistry(log)
	if cfg.ActionsConfigPath != "" {
		if err := actions.LoadFile(cfg.ActionsConfigPath); err != nil {
			log.Errorw("failed to load actions config", "path", cfg.ActionsConfigPath, "error", err)
			os.Exit(1)
		}
	}
	gateway := assistant.New(
		openai.NewClient(cfg.OpenAIAPIKey),
		actions,
		log,
		cfg.RunPollInterval,
		cfg.RunTimeout,
	)

	// Fanout and provider client
	eventHub := hub.New(log)
	waClient := whatsapp.NewClient(cfg.WhatsAppAPIBase, cfg.WhatsAppAccessToken, log)

	// Dedup cache with periodic sweep
	dedupCache := dedup.New(cfg.DedupCapacity)
	go func() {
		ticker := time.NewTicker(cfg.DedupSweepEvery)
		defer ticker.Stop()
		for range ticker.C {
			dedupCache.Cleanup(cfg.DedupMaxAge)
		}
	}()

	var events whatsapp.EventPublisher
	var serviceEvents service.EventPublisher
	if streamManager != nil {
		events = streamManager
		serviceEvents = streamManager
	}

	pipeline := whatsapp.NewPipeline(
		organizations, contacts, conversations, messages,
		gateway, waClient, eventHub, events, dedupCache,
		whatsapp.PipelineConfig{
			AssistantID:      cfg.AssistantID,
			AdminNumber:      cfg.WhatsAppAdminNumber,
			MaxTimestampSkew: cfg.TimestampSkewMax,
		},
		log,
	)

	conversationSvc := service.NewConversations(conversations, eventHub, serviceEvents, log)
	replySvc := service.NewReplies(conversations, organizations, messages, waClient, eventHub, serviceEvents, log)

	healthHandler := handler.NewHealthHandler(pool)
	webhookHandler := handler.NewWebhookHandler(pipeline, cfg.WhatsAppVerifyToken, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, contacts, log)
	messageHandler := handler.NewMessageHandler(replySvc, log)
	wsHandler := handler.NewWSHandler(eventHub, conversations, access, cfg.JWTSecret, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook (verified by token, not JWT)
	r.Get("/webhook", webhookHandler.Verify)
	r.Post("/webhook", webhookHandler.Receive)

	// Websocket fanout; the token rides the query string.
	r.Get("/ws/conversations/{id}", wsHandler.Watch)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/mode", conversationHandler.UpdateMode)
				r.Put("/status", conversationHandler.UpdateStatus)
				r.Post("/claim", conversationHandler.Claim)
				r.Post("/release", conversationHandler.Release)

				r.Get("/messages", messageHandler.List)
				// Outbound sends are capped per operator on top of the
				// org-wide limit.
				r.With(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
					Post("/messages", messageHandler.Create)

				if streamManager != nil {
					eventHandler := handler.NewEventHandler(streamManager, log)
					r.Get("/events", eventHandler.List)
				}
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Infow("server stopped")
}
