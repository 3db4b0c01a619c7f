package handler

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// OllamaHandler answers Ollama-shaped chat calls with the configured LLM
// client.
type OllamaHandler struct {
	client llm.Client
	logger *logger.Logger
}

// NewOllamaHandler creates a new passthrough handler. client may be nil, in
// which case every call answers 503.
func NewOllamaHandler(client llm.Client, log *logger.Logger) *OllamaHandler {
	return &OllamaHandler{
		client: client,
		logger: log,
	}
}

// Chat handles POST /api/ollama/chat
func (h *OllamaHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM provider configured")
		return
	}

	var req llm.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Stream {
		writeError(w, http.StatusBadRequest, "streaming is not supported")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages cannot be empty")
		return
	}

	resp, err := h.client.Complete(r.Context(), &llm.CompletionRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  req.Options,
	})
	if err != nil {
		h.logger.Warn("passthrough completion failed", zap.String("model", req.Model), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, model.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, llm.ChatResponse{
		Model:           resp.Model,
		CreatedAt:       time.Now().UTC(),
		Message:         model.ChatMessage{Role: model.RoleAssistant, Content: resp.Content},
		Done:            true,
		DoneReason:      resp.StopReason,
		TotalDuration:   resp.LatencyMs * int64(time.Millisecond),
		PromptEvalCount: resp.TokensIn,
		EvalCount:       resp.TokensOut,
	})
}

// Tags handles GET /api/ollama/tags
func (h *OllamaHandler) Tags(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM provider configured")
		return
	}

	names, err := h.client.Models(r.Context())
	if err != nil {
		h.logger.Warn("failed to list models", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to list models")
		return
	}

	resp := llm.TagsResponse{Models: make([]llm.ModelInfo, 0, len(names))}
	for _, name := range names {
		resp.Models = append(resp.Models, llm.ModelInfo{Name: name})
	}
	writeJSON(w, http.StatusOK, resp)
}
