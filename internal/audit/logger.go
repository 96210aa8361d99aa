package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionCreate  EventType = "session_create"
	EventSessionEnd     EventType = "session_end"
	EventPromptUpdate   EventType = "prompt_update"
	EventMessageBlocked EventType = "message_blocked"
	EventReplyBlocked   EventType = "reply_blocked"
	EventUpstreamError  EventType = "upstream_error"
)

// Event is one safety-audit record. SessionID must already be masked or
// hashed by the caller; raw session ids are bearer credentials and never
// reach the log stream.
type Event struct {
	Type      EventType
	SessionID string
	Username  string
	Details   map[string]interface{}
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "safety").
		Str("event_id", uuid.NewString()).
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.Username != "" {
		logger = logger.With().Str("username", event.Username).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("safety audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
