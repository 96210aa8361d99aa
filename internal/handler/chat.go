package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/middleware"
	"github.com/kiddychat/chat-server-go/internal/service"
	"github.com/kiddychat/chat-server-go/internal/util"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// POST /query
// Core API: run one moderated chat turn.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	result, err := h.chatService.SubmitMessage(r.Context(), session.ID, req.Message)
	if err != nil {
		log.Error().
			Err(err).
			Str("sessionId", util.MaskToken(session.ID)).
			Msg("query failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
