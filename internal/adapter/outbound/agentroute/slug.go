package agentroute

import "strings"

// ToolPrefix marks dynamic tool names routed to external agents, e.g.
// "a2a_my_agent" or "a2a_my_agent_summarize".
const ToolPrefix = "a2a_"

const separator = '_'

// Slug derives an agent's tool-name slug from its display name: lowercase,
// every run of non-alphanumeric characters collapsed to a single separator,
// leading and trailing separators trimmed. "My Agent!" becomes "my_agent".
func Slug(displayName string) string {
	out := make([]rune, 0, len(displayName))
	pendingSep := false
	for _, r := range strings.ToLower(displayName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && len(out) > 0 {
				out = append(out, separator)
			}
			pendingSep = false
			out = append(out, r)
		} else {
			pendingSep = true
		}
	}
	return string(out)
}

// matches reports whether the tool-name remainder (prefix already stripped)
// belongs to the given slug: either the remainder equals the slug exactly,
// or it starts with the slug immediately followed by the separator. The
// boundary check is what keeps "my_agent2_x" from matching agent "my_agent".
func matches(rest, slug string) bool {
	if slug == "" {
		return false
	}
	return rest == slug || strings.HasPrefix(rest, slug+string(separator))
}
