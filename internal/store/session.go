package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/model"
	"github.com/kiddychat/chat-server-go/internal/prompt"
	"github.com/kiddychat/chat-server-go/internal/util"
)

var (
	// ErrNotFound signals the session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrExpired signals the session existed but outlived its TTL. After the
	// access that observes expiry the session is evicted, so later lookups
	// report ErrNotFound.
	ErrExpired = errors.New("session expired")
)

// Clock supplies the current time; injected so TTL behavior is testable.
type Clock func() time.Time

// entry pairs a session with its own mutex. Mutations on one session
// serialize on this lock while other sessions proceed concurrently; the
// store-level RWMutex only guards map access.
type entry struct {
	mu      sync.Mutex
	session *model.Session
}

// SessionStore keeps all live sessions in memory. Expiry is evaluated
// lazily on access against CreatedAt; the periodic sweep in internal/jobs
// only reclaims memory for sessions nobody touches again.
type SessionStore struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	ttl           time.Duration
	now           Clock
	defaultPrompt string
}

func NewSessionStore(defaultPrompt string, ttl time.Duration, now Clock) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		entries:       make(map[string]*entry),
		ttl:           ttl,
		now:           now,
		defaultPrompt: defaultPrompt,
	}
}

// Create provisions a session for username. The returned session carries a
// fresh unguessable id and a seeded system message.
func (s *SessionStore) Create(username string) (*model.Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	id, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	session := &model.Session{
		ID:        id,
		Username:  username,
		CreatedAt: s.now(),
		Messages: []model.ChatMessage{
			{Role: model.RoleSystem, Content: prompt.Compose(s.defaultPrompt, "")},
		},
	}

	s.mu.Lock()
	s.entries[id] = &entry{session: session}
	s.mu.Unlock()

	log.Info().
		Str("sessionId", util.MaskToken(id)).
		Str("username", username).
		Msg("session created")

	return session.Clone(), nil
}

// Get returns a copy of the session. An expired session is evicted on this
// access and reported as ErrExpired; any later lookup sees ErrNotFound.
func (s *SessionStore) Get(id string) (*model.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// Delete removes the session if present. Idempotent at this layer; the
// returned bool tells callers whether a live session was actually removed.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	if s.expired(e.session) {
		return false
	}

	log.Info().Str("sessionId", util.MaskToken(id)).Msg("session deleted")
	return true
}

// SetAdditionalPrompt stores the additive instructions and recomposes the
// system slot. Messages[0] is the live composed prompt, not a frozen turn,
// so overwriting it here is the one sanctioned history mutation.
func (s *SessionStore) SetAdditionalPrompt(id, text string) (*model.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.AdditionalPrompt = text
	e.session.Messages[0] = model.ChatMessage{
		Role:    model.RoleSystem,
		Content: prompt.Compose(s.defaultPrompt, text),
	}
	return e.session.Clone(), nil
}

// AppendTurn appends the user entry then the assistant entry as one atomic
// unit with respect to this session. Two concurrent turns for the same id
// serialize here and never interleave.
func (s *SessionStore) AppendTurn(id, userText, assistantText string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.Messages = append(e.session.Messages,
		model.ChatMessage{Role: model.RoleUser, Content: userText},
		model.ChatMessage{Role: model.RoleAssistant, Content: assistantText},
	)
	return nil
}

// ActiveIDs returns the ids of all non-expired sessions.
func (s *SessionStore) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if !s.expired(e.session) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of non-expired sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !s.expired(e.session) {
			n++
		}
	}
	return n
}

// DeleteExpired evicts every session past its TTL and reports how many were
// removed. Used by the periodic sweep; lazy eviction on access remains the
// behavioral contract.
func (s *SessionStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e.session) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// lookup resolves id to a live entry, evicting it when expired.
func (s *SessionStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if s.expired(e.session) {
		s.mu.Lock()
		// Re-check under the write lock; another access may have evicted
		// and a fresh id collision is impossible in practice.
		if current, ok := s.entries[id]; ok && current == e {
			delete(s.entries, id)
		}
		s.mu.Unlock()

		log.Debug().Str("sessionId", util.MaskToken(id)).Msg("session expired, evicted")
		return nil, ErrExpired
	}

	return e, nil
}

func (s *SessionStore) expired(session *model.Session) bool {
	return s.now().Sub(session.CreatedAt) > s.ttl
}
