package channels

import "strings"

// AllowList restricts which senders an adapter accepts messages from. An
// empty AllowList permits everyone; a non-empty one only permits senders
// whose normalized ID appears in it (or the wildcard "*").
type AllowList []string

// Allows reports whether senderID is permitted. Sender tokens are
// normalized the same way on both sides: trimmed, lowercased, and
// stripped of a leading "@"/"#" sigil, so "@Alice" in config matches an
// inbound sender ID of "alice".
func (a AllowList) Allows(senderID string) bool {
	if len(a) == 0 {
		return true
	}
	sender := normalizeToken(senderID)
	if sender == "" {
		return false
	}
	for _, entry := range a {
		token := normalizeToken(entry)
		if token == "" {
			continue
		}
		if token == "*" || token == sender {
			return true
		}
	}
	return false
}

func normalizeToken(value string) string {
	token := strings.TrimSpace(value)
	token = strings.TrimPrefix(token, "@")
	token = strings.TrimPrefix(token, "#")
	return strings.ToLower(token)
}
