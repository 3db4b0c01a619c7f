// Package config provides environment configuration for the chat client and
// the development backend.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Backend API
	APIBaseURL     string
	RequestTimeout time.Duration

	// LLM settings
	LLMBaseURL      string
	LLMPath         string
	DefaultModel    string
	TitleModel      string
	LLMProvider     string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaURL       string

	// Telephony
	TelephonyURL string

	// Client session persistence
	SessionFile string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Dev backend settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel       string
	ClientLogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment variables
// take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	apiBase := getEnv("API_BASE_URL", "http://localhost:8009/api")

	return &Config{
		// Backend API
		APIBaseURL:     apiBase,
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),

		// LLM. By default generation goes through the backend passthrough.
		LLMBaseURL:      getEnv("LLM_BASE_URL", apiBase),
		LLMPath:         getEnv("LLM_PATH", "/ollama/chat"),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gemma2:9b"),
		TitleModel:      getEnv("TITLE_MODEL", "gemma2:9b"),
		LLMProvider:     getEnv("LLM_PROVIDER", "ollama"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://127.0.0.1:11434"),

		// Telephony
		TelephonyURL: getEnv("TELEPHONY_URL", "http://localhost:8010"),

		// Session
		SessionFile: getEnv("SESSION_FILE", defaultSessionFile()),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Dev backend
		ServerPort:         getEnv("PORT", "8009"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ClientLogLevel: getEnv("CHATCTL_LOG_LEVEL", "warn"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chatsync", "session.toml")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
