// Package main runs the development backend: the chat REST API, realtime
// event publishing over NATS and an LLM passthrough.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalize-ai/chatsync/internal/config"
	"github.com/capitalize-ai/chatsync/internal/handler"
	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/middleware"
	natsclient "github.com/capitalize-ai/chatsync/internal/nats"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/tracing"
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

	log.Info("starting development backend")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatsync-devserver", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS. Without it the API still works, only realtime events
	// are not published.
	var (
		publisher service.EventPublisher = service.NopPublisher{}
		realtime  handler.ConnectionChecker
	)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	natsClient, err := natsclient.Connect(connectCtx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
		Name:     "chatsync-devserver",
	}, log)
	cancel()
	if err != nil {
		log.Warn("failed to connect to NATS, realtime events disabled", zap.Error(err))
	} else {
		defer natsClient.Close()

		// Ensure JetStream stream exists
		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		publisher = streamManager
		realtime = natsClient
	}

	// Initialize LLM client
	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Warn("LLM passthrough disabled", zap.Error(err))
		llmClient = nil
	} else {
		llmClient = llm.Instrument(llmClient, log)
		log.Info("LLM passthrough enabled", zap.String("provider", llmClient.Name()))
	}

	// Initialize services
	userSvc := service.NewUserService(bcrypt.DefaultCost, log)
	chatSvc := service.NewChatService(log)
	messageSvc := service.NewMessageService(chatSvc, publisher, log)

	router := handler.NewRouter(handler.Deps{
		Users:             userSvc,
		Chats:             chatSvc,
		Messages:          messageSvc,
		LLM:               llmClient,
		Tokens:            middleware.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiration),
		Realtime:          realtime,
		Logger:            log,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
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

// newLLMClient picks the passthrough provider. API keys win over the
// configured provider so that a key alone is enough to switch.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch {
	case cfg.AnthropicAPIKey != "":
		return llm.NewClient(llm.ProviderAnthropic, llm.Options{APIKey: cfg.AnthropicAPIKey})
	case cfg.OpenAIAPIKey != "":
		return llm.NewClient(llm.ProviderOpenAI, llm.Options{APIKey: cfg.OpenAIAPIKey})
	default:
		return llm.NewClient(llm.Provider(cfg.LLMProvider), llm.Options{
			BaseURL: cfg.OllamaURL,
			Path:    "/api/chat",
			Timeout: 2 * time.Minute,
		})
	}
}
