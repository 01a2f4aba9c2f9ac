package handler

import (
	"log/slog"
	"net/http"

	"preceptor/internal/domain"
	"preceptor/internal/domain/repositories"
	chatSvc "preceptor/internal/domain/services/chat"
	"preceptor/internal/handler/sse"
	"preceptor/internal/httputil"
)

// ChatHandler exposes the chat lifecycle and the SSE exchange endpoint.
// Chat history reads go straight to the durable store; everything stateful
// goes through the orchestrator.
type ChatHandler struct {
	orchestrator chatSvc.Orchestrator
	chats        repositories.ChatRepository
	logger       *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(orchestrator chatSvc.Orchestrator, chats repositories.ChatRepository, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		chats:        chats,
		logger:       logger,
	}
}

type initializeBody struct {
	Course    string `json:"course"`
	Timestamp int64  `json:"timestamp"`
}

// Initialize starts (or re-joins) a tutoring chat
// POST /api/chats/initialize
func (h *ChatHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var body initializeBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.orchestrator.Initialize(r.Context(), &chatSvc.InitializeRequest{
		UserID:    userID,
		Course:    body.Course,
		Timestamp: body.Timestamp,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

type exchangeBody struct {
	Course string `json:"course"`
	Text   string `json:"text"`
}

// Exchange runs one user message through the chat and streams the reply
// POST /api/chats/{id}/messages
//
// The response is an SSE stream: "delta" events carry text chunks, one
// final "message" event carries the committed assistant message, and an
// "error" event terminates the stream on failure. Errors before the first
// chunk still arrive as problem+json.
func (h *ChatHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	var body exchangeBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reply, err := h.orchestrator.Exchange(r.Context(), &chatSvc.ExchangeRequest{
		ChatID: chatID,
		UserID: userID,
		Course: body.Course,
		Text:   body.Text,
	}, func(chunk string) {
		if writeErr := stream.WriteEvent("delta", map[string]string{"text": chunk}); writeErr != nil {
			h.logger.Debug("client dropped mid-stream", "chat_id", chatID, "error", writeErr)
		}
	})
	if err != nil {
		h.logger.Warn("exchange failed", "chat_id", chatID, "error", err)
		stream.WriteEvent("error", map[string]string{"detail": err.Error()})
		return
	}

	stream.WriteEvent("message", reply)
}

// Restore rebuilds an evicted chat from durable storage
// POST /api/chats/{id}/restore
func (h *ChatHandler) Restore(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	var body struct {
		Course string `json:"course"`
	}
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.orchestrator.Restore(r.Context(), chatID, body.Course, userID) {
		handleError(w, domain.ErrChatNotFound)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]bool{"restored": true})
}

// Delete evicts an active chat session
// DELETE /api/chats/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	evicted := h.orchestrator.Delete(chatID)
	httputil.RespondJSON(w, http.StatusOK, map[string]bool{"evicted": evicted})
}

// ListChats retrieves the user's chats for a course
// GET /api/chats?course=:course
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	course := r.URL.Query().Get("course")
	if course == "" {
		httputil.RespondError(w, http.StatusBadRequest, "course query parameter is required")
		return
	}

	chats, err := h.chats.GetUserChats(r.Context(), course, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chats)
}

// GetChat retrieves a single chat with its transcript
// GET /api/chats/{id}
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		handleError(w, err)
		return
	}
	if chat.UserID != userID || chat.IsDeleted {
		handleError(w, domain.ErrNotFound)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chat)
}

// HealthCheck reports liveness
// GET /health
func (h *ChatHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
