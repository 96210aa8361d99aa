// Package prompt builds the effective system message for a session. The
// default safety prompt always comes first and in full; session-scoped
// instructions are only ever appended after a fixed framing sentence, so
// additive text cannot displace or override the safety defaults.
package prompt

import "strings"

const additionalFraming = "Additional instructions for this session: "

// Compose combines the default system prompt with optional session-scoped
// instructions. With no additive text the default prompt is returned
// unchanged.
func Compose(defaultPrompt, additional string) string {
	if strings.TrimSpace(additional) == "" {
		return defaultPrompt
	}
	return defaultPrompt + "\n\n" + additionalFraming + additional
}
