// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// CompletionRequest represents a non-streaming chat completion request.
type CompletionRequest struct {
	Model    string
	Messages []model.ChatMessage
	// Options are provider sampling options keyed by their Ollama names
	// (temperature, top_p, seed, num_predict, ...).
	Options map[string]any
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models(ctx context.Context) ([]string, error)
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Options configures NewClient.
type Options struct {
	APIKey  string
	BaseURL string
	Path    string
	Timeout time.Duration
	// Token, when set, supplies a bearer token for every Ollama request.
	Token func() string
}

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, opts Options) (Client, error) {
	switch provider {
	case ProviderOllama, "":
		return NewOllamaClient(opts.BaseURL, opts.Path, opts.Timeout, opts.Token), nil
	case ProviderAnthropic:
		c, err := NewAnthropicClient(opts.APIKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenAI:
		c, err := NewOpenAIClient(opts.APIKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// optionFloat reads a numeric option regardless of how it was decoded.
func optionFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func optionInt(opts map[string]any, key string) (int, bool) {
	f, ok := optionFloat(opts, key)
	return int(f), ok
}
