package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// ChatRequest is the body of an Ollama /api/chat call.
type ChatRequest struct {
	Model    string              `json:"model"`
	Messages []model.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

// ChatResponse is a non-streaming Ollama chat response.
type ChatResponse struct {
	Model           string            `json:"model"`
	CreatedAt       time.Time         `json:"created_at"`
	Message         model.ChatMessage `json:"message"`
	Done            bool              `json:"done"`
	DoneReason      string            `json:"done_reason,omitempty"`
	TotalDuration   int64             `json:"total_duration,omitempty"`
	PromptEvalCount int               `json:"prompt_eval_count,omitempty"`
	EvalCount       int               `json:"eval_count,omitempty"`
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// TagsResponse is the response of /api/tags.
type TagsResponse struct {
	Models []ModelInfo `json:"models"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewChatRequest converts a completion request into the Ollama wire shape.
// Streaming is always off.
func NewChatRequest(req *CompletionRequest) *ChatRequest {
	return &ChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  req.Options,
	}
}

// Completion converts a chat response into a CompletionResponse.
func (r *ChatResponse) Completion(start time.Time) *CompletionResponse {
	return &CompletionResponse{
		Content:    r.Message.Content,
		Model:      r.Model,
		TokensIn:   r.PromptEvalCount,
		TokensOut:  r.EvalCount,
		StopReason: r.DoneReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
}

// OllamaClient talks to an Ollama-compatible chat endpoint, either the model
// server itself or the backend passthrough.
type OllamaClient struct {
	baseURL    string
	chatPath   string
	token      func() string
	httpClient *http.Client
}

// NewOllamaClient creates a client for baseURL. chatPath defaults to
// /api/chat; use /ollama/chat against the backend passthrough.
func NewOllamaClient(baseURL, chatPath string, timeout time.Duration, token func() string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if chatPath == "" {
		chatPath = "/api/chat"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatPath:   chatPath,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Complete sends a non-streaming chat request.
func (c *OllamaClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, c.chatPath, NewChatRequest(req), &resp); err != nil {
		return nil, err
	}
	return resp.Completion(start), nil
}

// Models lists model names from the tags endpoint that sits next to the chat
// endpoint (/api/tags or /ollama/tags).
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	path := c.chatPath[:strings.LastIndex(c.chatPath, "/")+1] + "tags"

	var resp TagsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *OllamaClient) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return model.WrapError(model.KindNetwork, op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.WrapError(model.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.WrapError(model.KindNetwork, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var oe ollamaError
		msg := resp.Status
		if json.Unmarshal(data, &oe) == nil && oe.Error != "" {
			msg = oe.Error
		}
		return &model.Error{Kind: model.KindForStatus(resp.StatusCode), Op: op, Message: msg, Status: resp.StatusCode}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return model.WrapError(model.KindServer, op, fmt.Errorf("invalid response body: %w", err))
	}
	return nil
}
