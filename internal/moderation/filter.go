package moderation

import (
	"hash/fnv"
	"strings"
)

// Result is the outcome of screening one piece of text.
type Result struct {
	Allowed  bool
	Reason   string // matched term or pattern source, empty when allowed
	Fallback string // redirection reply, set only when blocked
}

// Filter screens text against a Policy. It holds no mutable state: the same
// (policy, text) pair always produces the same Result, which keeps both
// gates of the pipeline testable.
type Filter struct {
	policy *Policy
}

func NewFilter(policy *Policy) *Filter {
	return &Filter{policy: policy}
}

// Evaluate screens text and, when blocked, picks the fallback reply. The
// input is case-folded for matching only; allowed text passes through the
// pipeline untouched.
func (f *Filter) Evaluate(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for i, re := range f.policy.termMatchers {
		if re.MatchString(normalized) {
			return f.blocked(normalized, "term: "+f.policy.bannedTerms[i])
		}
	}

	for i, re := range f.policy.bannedPatterns {
		if re.MatchString(normalized) {
			return f.blocked(normalized, "pattern: "+f.policy.rawPatterns[i])
		}
	}

	return Result{Allowed: true}
}

// blocked selects a fallback by hashing the normalized text. Selection must
// be deterministic so repeated submissions of the same text get the same
// redirection, and tests can assert on exact output.
func (f *Filter) blocked(normalized, reason string) Result {
	h := fnv.New32a()
	h.Write([]byte(normalized))
	idx := int(h.Sum32()) % len(f.policy.fallbackResponses)
	if idx < 0 {
		idx += len(f.policy.fallbackResponses)
	}
	return Result{
		Allowed:  false,
		Reason:   reason,
		Fallback: f.policy.fallbackResponses[idx],
	}
}
