package handler

import (
	"net/http"

	"github.com/kiddychat/chat-server-go/internal/service"
)

// PolicyHandler serves the public, unauthenticated informational endpoints.
type PolicyHandler struct {
	chatService *service.ChatService
}

func NewPolicyHandler(chatService *service.ChatService) *PolicyHandler {
	return &PolicyHandler{
		chatService: chatService,
	}
}

// GET /filter-info
func (h *PolicyHandler) GetFilterInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.PolicyInfo())
}

// GET /sessions/active
func (h *PolicyHandler) GetActiveSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.ActiveSessions())
}

// GET /conversation-starters
func (h *PolicyHandler) GetConversationStarters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationStarters": h.chatService.ConversationStarters(),
		"message":              "Here are some fun things we can chat about! 🌟",
	})
}
