// Package llm wraps the chat-completion backend. The orchestrator only sees
// the Completer interface; the backend stays an opaque prompt-in, text-out
// call that may fail or time out.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/kiddychat/chat-server-go/internal/model"
)

// Generation parameters tuned for short, consistent, kid-appropriate
// replies.
const (
	maxCompletionTokens = 300
	temperature         = 0.5
	frequencyPenalty    = 0.3
	presencePenalty     = 0.3
)

// Completer produces one assistant reply for a conversation history.
type Completer interface {
	Complete(ctx context.Context, history []model.ChatMessage) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat-completion API.
type OpenAIClient struct {
	llm     *openai.LLM
	timeout time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty means the default API endpoint
	Model   string
	Timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	return &OpenAIClient{llm: client, timeout: cfg.Timeout}, nil
}

// Complete sends the full history and returns the assistant text. The call
// is bounded by the configured timeout; a timeout surfaces as an ordinary
// error and the caller treats it like any other backend failure.
func (c *OpenAIClient) Complete(ctx context.Context, history []model.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		messages = append(messages, llms.TextParts(messageType(m.Role), m.Content))
	}

	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(maxCompletionTokens),
		llms.WithTemperature(temperature),
		llms.WithFrequencyPenalty(frequencyPenalty),
		llms.WithPresencePenalty(presencePenalty),
	)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Content, nil
}

func messageType(role model.Role) schema.ChatMessageType {
	switch role {
	case model.RoleSystem:
		return schema.ChatMessageTypeSystem
	case model.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
