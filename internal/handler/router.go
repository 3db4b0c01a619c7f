package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Users    *service.UserService
	Chats    *service.ChatService
	Messages *service.MessageService
	LLM      llm.Client
	Tokens   *middleware.TokenIssuer
	Realtime ConnectionChecker
	Logger   *logger.Logger

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the full route tree.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	if d.RateLimitRequests == 0 {
		d.RateLimitRequests = 120
	}
	if d.RateLimitWindow == 0 {
		d.RateLimitWindow = time.Minute
	}

	healthHandler := NewHealthHandler(d.Realtime)
	userHandler := NewUserHandler(d.Users, d.Tokens, log)
	chatHandler := NewChatHandler(d.Chats, d.Messages, log)
	messageHandler := NewMessageHandler(d.Messages, log)
	ollamaHandler := NewOllamaHandler(d.LLM, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", healthHandler.Ping)

		// Public account routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.RateLimitRequests, d.RateLimitWindow))
			r.Post("/users", userHandler.Register)
			r.Post("/users/login", userHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.Tokens))
			r.Use(middleware.UserRateLimit(d.RateLimitRequests, d.RateLimitWindow))

			r.Get("/users", userHandler.List)
			r.Get("/users/me", userHandler.Me)
			r.Post("/users/logout", userHandler.Logout)

			r.Route("/chats", func(r chi.Router) {
				r.Post("/", chatHandler.Create)
				r.Get("/", chatHandler.List)
				r.Get("/{id}", chatHandler.Get)
				r.Put("/{id}", chatHandler.Update)
				r.Delete("/{id}", chatHandler.Delete)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", messageHandler.Send)
				r.Delete("/clear/{chatId}", messageHandler.Clear)
				// GET takes a chat id, PUT and DELETE a message id.
				r.Get("/{id}", messageHandler.List)
				r.Put("/{id}", messageHandler.Update)
				r.Delete("/{id}", messageHandler.Delete)
			})

			r.Post("/ollama/chat", ollamaHandler.Chat)
			r.Get("/ollama/tags", ollamaHandler.Tags)
		})
	})

	return r
}
