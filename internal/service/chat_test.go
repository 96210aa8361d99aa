package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kiddychat/chat-server-go/internal/errors"
	"github.com/kiddychat/chat-server-go/internal/model"
	"github.com/kiddychat/chat-server-go/internal/moderation"
	"github.com/kiddychat/chat-server-go/internal/store"
)

// stubCompleter counts calls and replays a canned reply or error.
type stubCompleter struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
	history []model.ChatMessage
}

func (c *stubCompleter) Complete(_ context.Context, history []model.ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.history = append([]model.ChatMessage(nil), history...)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *stubCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	service *ChatService
	backend *stubCompleter
	clock   *fakeClock
	policy  *moderation.Policy
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policy := moderation.DefaultPolicy()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sessionStore := store.NewSessionStore(policy.DefaultSystemPrompt(), 24*time.Hour, clock.Now)
	backend := &stubCompleter{reply: "hello"}

	return &fixture{
		service: NewChatService(sessionStore, policy, backend),
		backend: backend,
		clock:   clock,
		policy:  policy,
	}
}

func (f *fixture) createSession(t *testing.T, username string) string {
	t.Helper()
	result, err := f.service.CreateSession(context.Background(), username)
	require.NoError(t, err)
	return result.SessionID
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreateSession(t *testing.T) {
	t.Run("creates session", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.CreateSession(context.Background(), "emma")
		require.NoError(t, err)
		assert.Len(t, result.SessionID, 64)
		assert.Equal(t, "emma", result.Username)
		assert.False(t, result.CreatedAt.IsZero())
	})

	t.Run("rejects empty username", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.CreateSession(context.Background(), "  ")
		assertCode(t, err, apperrors.ErrCodeInvalidInput)
	})
}

func TestSubmitMessage(t *testing.T) {
	t.Run("round trip appends one turn", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		result, err := f.service.SubmitMessage(context.Background(), id, "hi")
		require.NoError(t, err)
		assert.Equal(t, "hello", result.Response)
		assert.Equal(t, "emma", result.Username)
		assert.Equal(t, 1, f.backend.callCount())

		history, err := f.service.GetHistory(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, history.Messages, 3)
		assert.Equal(t, model.RoleSystem, history.Messages[0].Role)
		assert.Equal(t, model.ChatMessage{Role: model.RoleUser, Content: "hi"}, history.Messages[1])
		assert.Equal(t, model.ChatMessage{Role: model.RoleAssistant, Content: "hello"}, history.Messages[2])
	})

	t.Run("backend sees system prompt plus new message", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		_, err := f.service.SubmitMessage(context.Background(), id, "hi")
		require.NoError(t, err)

		require.Len(t, f.backend.history, 2)
		assert.Equal(t, model.RoleSystem, f.backend.history[0].Role)
		assert.Equal(t, f.policy.DefaultSystemPrompt(), f.backend.history[0].Content)
		assert.Equal(t, "hi", f.backend.history[1].Content)
	})

	t.Run("unknown session is unauthorized", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.SubmitMessage(context.Background(), "bogus", "hi")
		assertCode(t, err, apperrors.ErrCodeUnauthorized)
	})

	t.Run("empty message is invalid input", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		_, err := f.service.SubmitMessage(context.Background(), id, "   ")
		assertCode(t, err, apperrors.ErrCodeInvalidInput)
		assert.Equal(t, 0, f.backend.callCount())
	})

	t.Run("blocked input never reaches the backend", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		result, err := f.service.SubmitMessage(context.Background(), id, "you are stupid")
		require.NoError(t, err)
		assert.True(t, result.Blocked)
		assert.Contains(t, f.policy.FallbackResponses(), result.Response)
		assert.Equal(t, 0, f.backend.callCount())

		// The blocked turn is still recorded.
		history, err := f.service.GetHistory(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, history.Messages, 3)
		assert.Equal(t, "you are stupid", history.Messages[1].Content)
		assert.Equal(t, result.Response, history.Messages[2].Content)
	})

	t.Run("blocked reply is replaced before storing", func(t *testing.T) {
		f := newFixture(t)
		f.backend.reply = "that was a stupid question"
		id := f.createSession(t, "emma")

		result, err := f.service.SubmitMessage(context.Background(), id, "hi")
		require.NoError(t, err)
		assert.Contains(t, f.policy.FallbackResponses(), result.Response)
		assert.Equal(t, 1, f.backend.callCount())

		history, err := f.service.GetHistory(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, result.Response, history.Messages[2].Content)
		assert.NotContains(t, history.Messages[2].Content, "stupid")
	})

	t.Run("backend failure appends nothing", func(t *testing.T) {
		f := newFixture(t)
		f.backend.err = errors.New("connection reset")
		id := f.createSession(t, "emma")

		_, err := f.service.SubmitMessage(context.Background(), id, "hi")
		assertCode(t, err, apperrors.ErrCodeUpstream)

		f.backend.err = nil
		history, err := f.service.GetHistory(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, history.Messages, 1, "failed turn must not be persisted")
	})

	t.Run("expired session is unauthorized", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		f.clock.Advance(25 * time.Hour)

		_, err := f.service.SubmitMessage(context.Background(), id, "hi")
		assertCode(t, err, apperrors.ErrCodeUnauthorized)
	})
}

func TestEndSession(t *testing.T) {
	t.Run("ended session cannot be used again", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		result, err := f.service.EndSession(context.Background(), id)
		require.NoError(t, err)
		assert.Contains(t, result.Message, "emma")

		_, err = f.service.SubmitMessage(context.Background(), id, "hi")
		assertCode(t, err, apperrors.ErrCodeUnauthorized)
	})

	t.Run("ending unknown session is unauthorized", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.EndSession(context.Background(), "bogus")
		assertCode(t, err, apperrors.ErrCodeUnauthorized)
	})

	t.Run("ending twice is unauthorized the second time", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		_, err := f.service.EndSession(context.Background(), id)
		require.NoError(t, err)

		_, err = f.service.EndSession(context.Background(), id)
		assertCode(t, err, apperrors.ErrCodeUnauthorized)
	})
}

func TestSetAdditionalPrompt(t *testing.T) {
	t.Run("combined prompt keeps default text first", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		update, err := f.service.SetAdditionalPrompt(context.Background(), id, "be a science teacher")
		require.NoError(t, err)
		assert.Equal(t, "be a science teacher", update.AdditionalPrompt)

		info, err := f.service.GetPromptInfo(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(info.CombinedPrompt, f.policy.DefaultSystemPrompt()),
			"combined prompt must start with the default prompt")
		assert.Contains(t, info.CombinedPrompt, "be a science teacher")

		// System slot reflects the update immediately.
		history, err := f.service.GetHistory(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, info.CombinedPrompt, history.Messages[0].Content)
	})

	t.Run("rejects empty prompt", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		_, err := f.service.SetAdditionalPrompt(context.Background(), id, " ")
		assertCode(t, err, apperrors.ErrCodeInvalidInput)
	})

	t.Run("backend sees updated system prompt on next turn", func(t *testing.T) {
		f := newFixture(t)
		id := f.createSession(t, "emma")

		_, err := f.service.SetAdditionalPrompt(context.Background(), id, "talk like a pirate teacher")
		require.NoError(t, err)

		_, err = f.service.SubmitMessage(context.Background(), id, "hi")
		require.NoError(t, err)

		assert.Contains(t, f.backend.history[0].Content, "talk like a pirate teacher")
	})
}

func TestPolicyInfo(t *testing.T) {
	t.Run("is stable across reads", func(t *testing.T) {
		f := newFixture(t)

		first := f.service.PolicyInfo()
		first.BannedTerms[0] = "mutated"

		second := f.service.PolicyInfo()
		assert.Equal(t, f.policy.BannedTerms(), second.BannedTerms)
		assert.Equal(t, f.policy.FallbackResponses(), second.FallbackResponses)
		assert.Equal(t, f.policy.DefaultSystemPrompt(), second.DefaultPrompt)
	})
}

func TestActiveSessions(t *testing.T) {
	f := newFixture(t)
	a := f.createSession(t, "emma")

	f.clock.Advance(20 * time.Hour)
	b := f.createSession(t, "liam")

	result := f.service.ActiveSessions()
	assert.Equal(t, 2, result.ActiveSessions)
	assert.ElementsMatch(t, []string{a, b}, result.SessionIDs)

	f.clock.Advance(5 * time.Hour)

	result = f.service.ActiveSessions()
	assert.Equal(t, 1, result.ActiveSessions)
	assert.ElementsMatch(t, []string{b}, result.SessionIDs)
}

func TestConversationStarters(t *testing.T) {
	f := newFixture(t)

	first := f.service.ConversationStarters()
	assert.Len(t, first, 5)

	second := f.service.ConversationStarters()
	assert.Len(t, second, 5)
	assert.NotEqual(t, first, second, "successive calls rotate through the list")
}
