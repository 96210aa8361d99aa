package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/middleware"
	"github.com/kiddychat/chat-server-go/internal/service"
)

type SessionHandler struct {
	chatService *service.ChatService
}

func NewSessionHandler(chatService *service.ChatService) *SessionHandler {
	return &SessionHandler{
		chatService: chatService,
	}
}

// Routes returns the session-scoped routes. The caller mounts these behind
// the session auth middleware.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Delete("/", h.EndSession)
	r.Get("/history", h.GetHistory)
	r.Post("/add-prompt", h.AddPrompt)
	r.Get("/prompt-info", h.GetPromptInfo)

	return r
}

// POST /initiate-session
func (h *SessionHandler) InitiateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.chatService.CreateSession(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /session/history
func (h *SessionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	result, err := h.chatService.GetHistory(r.Context(), session.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DELETE /session
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	result, err := h.chatService.EndSession(r.Context(), session.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().Str("username", session.Username).Msg("session ended")
	writeJSON(w, http.StatusOK, result)
}

// POST /session/add-prompt
func (h *SessionHandler) AddPrompt(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	var req struct {
		AdditionalPrompt string `json:"additionalPrompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.chatService.SetAdditionalPrompt(r.Context(), session.ID, req.AdditionalPrompt)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /session/prompt-info
func (h *SessionHandler) GetPromptInfo(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	result, err := h.chatService.GetPromptInfo(r.Context(), session.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
