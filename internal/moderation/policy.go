package moderation

import (
	"fmt"
	"regexp"
)

// Policy is the read-only rule set the content filter evaluates against.
// It is built once at process start and never mutated afterwards; all
// accessors return copies so introspection endpoints cannot corrupt it.
type Policy struct {
	bannedTerms       []string
	termMatchers      []*regexp.Regexp
	bannedPatterns    []*regexp.Regexp
	rawPatterns       []string
	fallbackResponses []string
	defaultPrompt     string
}

// NewPolicy compiles the term and pattern sets and validates the fallback
// list. Terms match as whole words so "hell" blocks "go to hell" but not
// "hello"; patterns are matched case-insensitively against normalized text.
func NewPolicy(terms, patterns, fallbacks []string, defaultPrompt string) (*Policy, error) {
	if len(fallbacks) == 0 {
		return nil, fmt.Errorf("policy requires at least one fallback response")
	}
	if defaultPrompt == "" {
		return nil, fmt.Errorf("policy requires a default system prompt")
	}

	matchers := make([]*regexp.Regexp, 0, len(terms))
	for _, t := range terms {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile banned term %q: %w", t, err)
		}
		matchers = append(matchers, re)
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile banned pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &Policy{
		bannedTerms:       append([]string(nil), terms...),
		termMatchers:      matchers,
		bannedPatterns:    compiled,
		rawPatterns:       append([]string(nil), patterns...),
		fallbackResponses: append([]string(nil), fallbacks...),
		defaultPrompt:     defaultPrompt,
	}, nil
}

// DefaultPolicy returns the built-in kid-safety rule set.
func DefaultPolicy() *Policy {
	policy, err := NewPolicy(defaultBannedTerms, defaultBannedPatterns, defaultFallbackResponses, defaultSystemPrompt)
	if err != nil {
		// The built-in rule set is covered by tests; a compile failure here
		// is a programming error.
		panic(err)
	}
	return policy
}

func (p *Policy) BannedTerms() []string {
	return append([]string(nil), p.bannedTerms...)
}

func (p *Policy) BannedPatterns() []string {
	return append([]string(nil), p.rawPatterns...)
}

func (p *Policy) FallbackResponses() []string {
	return append([]string(nil), p.fallbackResponses...)
}

func (p *Policy) DefaultSystemPrompt() string {
	return p.defaultPrompt
}

var defaultBannedTerms = []string{
	"stupid", "idiot", "hate", "kill", "die", "death", "blood", "violence", "weapon",
	"gun", "knife", "fight", "hurt", "pain", "scary", "monster", "devil", "hell",
	"damn", "crap", "shut up", "loser", "dumb", "ugly", "fat", "skinny",
}

var defaultBannedPatterns = []string{
	`\b(i hate|you suck|go away|shut up)\b`,
	`\b(stupid|dumb|idiot)\s+(person|kid|child|boy|girl)\b`,
	`\b(kill|hurt|hit|punch|kick)\s+(someone|somebody|people)\b`,
}

var defaultFallbackResponses = []string{
	"I can't help with that kind of talk. Let's use kind words instead! 😊",
	"Oops! That's not very nice language. How about we talk about something fun instead?",
	"Let's keep our conversation friendly and positive! What would you like to learn about today?",
	"I'm here to have nice conversations with you. Can we use gentler words please?",
	"That doesn't sound very kind. Let's chat about something that makes you happy! 🌟",
}

const defaultSystemPrompt = `You are a helpful, friendly, and safe AI assistant designed specifically for children. Please follow these guidelines:

1. ALWAYS use simple, age-appropriate language that kids can understand
2. Be encouraging, positive, and supportive in all responses
3. Focus on education, creativity, fun facts, stories, games, and learning
4. NEVER discuss topics that might be scary, violent, inappropriate, or harmful
5. If asked about adult topics, gently redirect to kid-friendly alternatives
6. Encourage curiosity, learning, and positive behavior
7. Use emojis occasionally to make conversations fun 😊
8. Be patient and explain things in simple terms
9. Promote kindness, respect, and good values
10. If you're unsure about a topic's appropriateness, choose not to discuss it

Remember: You're talking to a child, so keep everything safe, educational, and fun!`
