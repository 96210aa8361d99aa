package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/audit"
	apperrors "github.com/kiddychat/chat-server-go/internal/errors"
	"github.com/kiddychat/chat-server-go/internal/llm"
	"github.com/kiddychat/chat-server-go/internal/model"
	"github.com/kiddychat/chat-server-go/internal/moderation"
	"github.com/kiddychat/chat-server-go/internal/prompt"
	"github.com/kiddychat/chat-server-go/internal/store"
	"github.com/kiddychat/chat-server-go/internal/util"
)

const startersPerRequest = 5

type CreateSessionResult struct {
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type QueryResult struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	Blocked   bool   `json:"-"`
}

type HistoryResult struct {
	SessionID string              `json:"sessionId"`
	Username  string              `json:"username"`
	CreatedAt time.Time           `json:"createdAt"`
	Messages  []model.ChatMessage `json:"messages"`
}

type PromptUpdateResult struct {
	SessionID        string `json:"sessionId"`
	Message          string `json:"message"`
	AdditionalPrompt string `json:"additionalPrompt"`
	CombinedPrompt   string `json:"combinedSystemMessage"`
}

type EndSessionResult struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type PromptInfoResult struct {
	SessionID        string    `json:"sessionId"`
	Username         string    `json:"username"`
	DefaultPrompt    string    `json:"defaultSystemPrompt"`
	AdditionalPrompt string    `json:"additionalPrompt,omitempty"`
	CombinedPrompt   string    `json:"combinedSystemMessage"`
	CreatedAt        time.Time `json:"createdAt"`
}

type PolicyInfoResult struct {
	BannedTerms       []string `json:"inappropriateWords"`
	BannedPatterns    []string `json:"inappropriatePatterns"`
	FallbackResponses []string `json:"kidsFriendlyResponses"`
	DefaultPrompt     string   `json:"defaultSystemPrompt"`
}

type ActiveSessionsResult struct {
	ActiveSessions int      `json:"activeSessions"`
	SessionIDs     []string `json:"sessionIds"`
}

// ChatService orchestrates the moderation pipeline around the model backend
// and owns all session-facing operations.
type ChatService struct {
	store        *store.SessionStore
	policy       *moderation.Policy
	filter       *moderation.Filter
	backend      llm.Completer
	starterIndex atomic.Uint64
}

func NewChatService(
	sessionStore *store.SessionStore,
	policy *moderation.Policy,
	backend llm.Completer,
) *ChatService {
	return &ChatService{
		store:   sessionStore,
		policy:  policy,
		filter:  moderation.NewFilter(policy),
		backend: backend,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, username string) (*CreateSessionResult, error) {
	if strings.TrimSpace(username) == "" {
		return nil, apperrors.InvalidInput("username", "must not be empty")
	}

	session, err := s.store.Create(username)
	if err != nil {
		return nil, apperrors.Internal("Failed to create session").WithCause(err)
	}

	audit.Log(audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: util.MaskToken(session.ID),
		Username:  session.Username,
	})

	return &CreateSessionResult{
		SessionID: session.ID,
		Message:   fmt.Sprintf("Session created successfully for %s", session.Username),
		Username:  session.Username,
		CreatedAt: session.CreatedAt,
	}, nil
}

// SubmitMessage runs one full turn: authenticate, validate, pre-filter,
// model call, post-filter, persist. Blocked content is a successful outcome
// with a fallback reply; backend failure leaves the session untouched.
func (s *ChatService) SubmitMessage(ctx context.Context, sessionID, text string) (*QueryResult, error) {
	session, err := s.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, apperrors.InvalidInput("message", "must not be empty")
	}

	// Pre-send gate: blocked text never reaches the model backend. The
	// user's words still land in history so the conversation stays honest.
	if result := s.filter.Evaluate(text); !result.Allowed {
		audit.Log(audit.Event{
			Type:      audit.EventMessageBlocked,
			SessionID: util.MaskToken(sessionID),
			Username:  session.Username,
			Details:   map[string]interface{}{"reason": result.Reason},
		})

		if err := s.store.AppendTurn(sessionID, text, result.Fallback); err != nil {
			return nil, s.storeError(err)
		}

		return &QueryResult{
			Response:  result.Fallback,
			SessionID: sessionID,
			Username:  session.Username,
			Blocked:   true,
		}, nil
	}

	// Messages[0] already carries the live composed system prompt; the
	// model sees the full history plus the new user message.
	history := append(session.Messages, model.ChatMessage{Role: model.RoleUser, Content: text})

	reply, err := s.backend.Complete(ctx, history)
	if err != nil {
		audit.Log(audit.Event{
			Type:      audit.EventUpstreamError,
			SessionID: util.MaskToken(sessionID),
			Username:  session.Username,
			Details:   map[string]interface{}{"error": err.Error()},
		})
		// No partial state: the turn is not appended.
		return nil, apperrors.Upstream("model backend", err)
	}

	// Post-receive gate: the backend is trusted but its output is not.
	finalReply := reply
	if result := s.filter.Evaluate(reply); !result.Allowed {
		audit.Log(audit.Event{
			Type:      audit.EventReplyBlocked,
			SessionID: util.MaskToken(sessionID),
			Username:  session.Username,
			Details:   map[string]interface{}{"reason": result.Reason},
		})
		finalReply = result.Fallback
	}

	if err := s.store.AppendTurn(sessionID, text, finalReply); err != nil {
		return nil, s.storeError(err)
	}

	log.Debug().
		Str("sessionId", util.MaskToken(sessionID)).
		Int("replyLength", len(finalReply)).
		Msg("turn completed")

	return &QueryResult{
		Response:  finalReply,
		SessionID: sessionID,
		Username:  session.Username,
	}, nil
}

func (s *ChatService) GetHistory(ctx context.Context, sessionID string) (*HistoryResult, error) {
	session, err := s.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	return &HistoryResult{
		SessionID: session.ID,
		Username:  session.Username,
		CreatedAt: session.CreatedAt,
		Messages:  session.Messages,
	}, nil
}

func (s *ChatService) EndSession(ctx context.Context, sessionID string) (*EndSessionResult, error) {
	session, err := s.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	// Delete is idempotent at the store layer; here a missing session means
	// the caller's credential was never valid or already expired.
	if !s.store.Delete(sessionID) {
		return nil, apperrors.Unauthorized("Invalid session ID")
	}

	audit.Log(audit.Event{
		Type:      audit.EventSessionEnd,
		SessionID: util.MaskToken(sessionID),
		Username:  session.Username,
	})

	return &EndSessionResult{
		SessionID: sessionID,
		Message:   fmt.Sprintf("Session ended successfully for %s", session.Username),
	}, nil
}

func (s *ChatService) SetAdditionalPrompt(ctx context.Context, sessionID, text string) (*PromptUpdateResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.InvalidInput("additional prompt", "must not be empty")
	}

	session, err := s.store.SetAdditionalPrompt(sessionID, text)
	if err != nil {
		return nil, s.storeError(err)
	}

	audit.Log(audit.Event{
		Type:      audit.EventPromptUpdate,
		SessionID: util.MaskToken(sessionID),
		Username:  session.Username,
		Details:   map[string]interface{}{"promptLength": len(text)},
	})

	return &PromptUpdateResult{
		SessionID:        sessionID,
		Message:          "Additional prompt added successfully",
		AdditionalPrompt: session.AdditionalPrompt,
		CombinedPrompt:   session.Messages[0].Content,
	}, nil
}

func (s *ChatService) GetPromptInfo(ctx context.Context, sessionID string) (*PromptInfoResult, error) {
	session, err := s.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	return &PromptInfoResult{
		SessionID:        session.ID,
		Username:         session.Username,
		DefaultPrompt:    s.policy.DefaultSystemPrompt(),
		AdditionalPrompt: session.AdditionalPrompt,
		CombinedPrompt:   prompt.Compose(s.policy.DefaultSystemPrompt(), session.AdditionalPrompt),
		CreatedAt:        session.CreatedAt,
	}, nil
}

// PolicyInfo is read-only introspection; no auth required and repeated
// calls return identical output.
func (s *ChatService) PolicyInfo() *PolicyInfoResult {
	return &PolicyInfoResult{
		BannedTerms:       s.policy.BannedTerms(),
		BannedPatterns:    s.policy.BannedPatterns(),
		FallbackResponses: s.policy.FallbackResponses(),
		DefaultPrompt:     s.policy.DefaultSystemPrompt(),
	}
}

func (s *ChatService) ActiveSessions() *ActiveSessionsResult {
	s.store.DeleteExpired()
	ids := s.store.ActiveIDs()
	return &ActiveSessionsResult{
		ActiveSessions: len(ids),
		SessionIDs:     ids,
	}
}

// ConversationStarters returns a rotating window over the fixed starter
// list, so successive calls cycle through all of them.
func (s *ChatService) ConversationStarters() []string {
	offset := int(s.starterIndex.Add(startersPerRequest)-startersPerRequest) % len(conversationStarters)

	selected := make([]string, 0, startersPerRequest)
	for i := 0; i < startersPerRequest; i++ {
		selected = append(selected, conversationStarters[(offset+i)%len(conversationStarters)])
	}
	return selected
}

// resolveSession authenticates a session id. Store-internal NotFound and
// Expired both surface as Unauthorized: an expired session behaves exactly
// as if it never existed.
func (s *ChatService) resolveSession(sessionID string) (*model.Session, error) {
	session, err := s.store.Get(sessionID)
	if err != nil {
		return nil, s.storeError(err)
	}
	return session, nil
}

func (s *ChatService) storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrExpired):
		return apperrors.Unauthorized("Invalid session ID")
	default:
		return apperrors.Internal("Session store error").WithCause(err)
	}
}

var conversationStarters = []string{
	"What's your favorite animal and why? 🐾",
	"If you could have any superpower, what would it be? 🦸",
	"What's the coolest thing you learned today? 📚",
	"If you could visit any planet, which one would you choose? 🚀",
	"What's your favorite color and what does it remind you of? 🌈",
	"If you could be friends with any cartoon character, who would it be? 📺",
	"What's your favorite season and what do you like to do in it? ⛄",
	"If you could invent something amazing, what would it be? 💡",
	"What's the funniest joke you know? 😄",
	"If you could fly like a bird, where would you go first? 🐦",
	"What's your favorite book or story? 📖",
	"If you could talk to animals, what would you ask them? 🐕",
	"What makes you really happy? 😊",
	"If you could build the coolest treehouse, what would be in it? 🌳",
	"What's the most interesting place you've ever been? 🗺️",
}
