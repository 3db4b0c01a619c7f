package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// ChatHandler handles chat endpoints.
type ChatHandler struct {
	chats    *service.ChatService
	messages *service.MessageService
	logger   *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chats *service.ChatService, messages *service.MessageService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chats:    chats,
		messages: messages,
		logger:   log,
	}
}

// Create handles POST /api/chats
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.StartChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Chats can only be started for the caller.
	if req.UserID != userID(r) {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	chat, err := h.chats.Create(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to create chat", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// List handles GET /api/chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.List(r.Context(), userID(r))
	if err != nil {
		h.logger.Error("failed to list chats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	writeJSON(w, http.StatusOK, chats)
}

// Get handles GET /api/chats/{id}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chat, err := h.chats.Get(r.Context(), userID(r), chatID)
	if err != nil {
		writeServiceError(w, err, "chat not found")
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// Update handles PUT /api/chats/{id}
func (h *ChatHandler) Update(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ChatUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	chat, err := h.chats.Update(r.Context(), userID(r), chatID, &req)
	if err != nil {
		writeServiceError(w, err, "chat not found")
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// Delete handles DELETE /api/chats/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chats.Delete(r.Context(), userID(r), chatID); err != nil {
		writeServiceError(w, err, "chat not found")
		return
	}
	h.messages.PurgeChat(chatID)

	w.WriteHeader(http.StatusNoContent)
}
