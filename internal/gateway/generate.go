package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/capitalize-ai/chatsync/internal/llm"
)

// Generate sends a completion through the backend's LLM passthrough.
func (c *Client) Generate(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var resp llm.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/ollama/chat", "/ollama/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerationModels lists the models the passthrough can serve.
func (c *Client) GenerationModels(ctx context.Context) ([]string, error) {
	var resp llm.TagsResponse
	if err := c.do(ctx, http.MethodGet, "/ollama/tags", "/ollama/tags", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// LLM returns an llm.Client backed by the passthrough.
func (c *Client) LLM() llm.Client {
	return passthrough{c}
}

type passthrough struct {
	gw *Client
}

func (p passthrough) Name() string {
	return "passthrough"
}

func (p passthrough) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.gw.Generate(ctx, llm.NewChatRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Completion(start), nil
}

func (p passthrough) Models(ctx context.Context) ([]string, error) {
	return p.gw.GenerationModels(ctx)
}
