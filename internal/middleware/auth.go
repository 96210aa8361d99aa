package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/model"
	"github.com/kiddychat/chat-server-go/internal/store"
	"github.com/kiddychat/chat-server-go/internal/util"
)

type contextKey string

const SessionContextKey contextKey = "session"

// GetSession returns the authenticated session placed in the request
// context by SessionAuthMiddleware, or nil outside an authenticated route.
func GetSession(ctx context.Context) *model.Session {
	if session, ok := ctx.Value(SessionContextKey).(*model.Session); ok {
		return session
	}
	return nil
}

type SessionAuthMiddleware struct {
	sessions *store.SessionStore
}

func NewSessionAuthMiddleware(sessions *store.SessionStore) *SessionAuthMiddleware {
	return &SessionAuthMiddleware{sessions: sessions}
}

func (m *SessionAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing session token",
			})
			return
		}

		session, err := m.sessions.Get(token)
		if err != nil {
			log.Warn().
				Str("sessionId", util.MaskToken(token)).
				Msg("auth middleware: invalid session token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid session ID",
			})
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
