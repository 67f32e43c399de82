package agent

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// confirmLexemes and cancelLexemes implement the confirmation
// short-circuit from spec.md §4.5: a small, configurable, case-
// insensitive, trimmed set of natural-language tokens. Anything that
// does not match either set goes back through the LLM — this is
// intentionally conservative rather than an attempt at classification.
var (
	confirmLexemes = []string{"yes", "是", "确认", "ok", "go", "confirm"}
	cancelLexemes  = []string{"no", "取消", "cancel", "stop", "算了"}
)

// PendingConfirmation is the confirmation gate for a destructive tool
// call awaiting the user's yes/no before it executes.
type PendingConfirmation struct {
	SessionKey string          `json:"sessionKey"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Parameters json.RawMessage `json:"parameters"`
	Prompt     string          `json:"prompt"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Expired reports whether this confirmation is older than ttl as of now.
func (p PendingConfirmation) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) >= ttl
}

// ConfirmationStore holds at most one PendingConfirmation per session
// key, guarded by the same per-key discipline the session store uses:
// callers are expected to serialize access per sessionKey themselves
// (the supervisor loop does this by holding a per-session turn lock for
// the whole turn), so this
// store's mutex only protects the map structure itself.
type ConfirmationStore struct {
	mu      sync.Mutex
	pending map[string]PendingConfirmation
	ttl     time.Duration
}

// NewConfirmationStore creates a store with the given TTL (spec default:
// 5 minutes).
func NewConfirmationStore(ttl time.Duration) *ConfirmationStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ConfirmationStore{pending: make(map[string]PendingConfirmation), ttl: ttl}
}

// Set records a new PendingConfirmation for sessionKey, replacing any
// existing one. The agent loop calls Set for every gated tool call it
// sees, so a newer proposal supersedes an older one still pending.
func (c *ConfirmationStore) Set(p PendingConfirmation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[p.SessionKey] = p
}

// Peek returns the pending confirmation for sessionKey without consuming
// it, along with whether one exists and is unexpired as of now.
func (c *ConfirmationStore) Peek(sessionKey string, now time.Time) (PendingConfirmation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[sessionKey]
	if !ok {
		return PendingConfirmation{}, false
	}
	if p.Expired(now, c.ttl) {
		delete(c.pending, sessionKey)
		return PendingConfirmation{}, false
	}
	return p, true
}

// Consume removes and returns the pending confirmation for sessionKey,
// if any. A confirmation token consumed twice returns ok=false on the
// second call, satisfying the single-use invariant.
func (c *ConfirmationStore) Consume(sessionKey string) (PendingConfirmation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[sessionKey]
	if ok {
		delete(c.pending, sessionKey)
	}
	return p, ok
}

// ConfirmationVerdict is the result of matching user input against the
// confirm/cancel lexeme sets.
type ConfirmationVerdict int

const (
	// VerdictNone means the input matched neither set; it should be
	// routed through the LLM as a normal turn.
	VerdictNone ConfirmationVerdict = iota
	VerdictConfirm
	VerdictCancel
)

// MatchLexeme classifies trimmed, case-insensitive user input against
// the confirm/cancel lexeme lists from spec.md §4.5.
func MatchLexeme(input string) ConfirmationVerdict {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return VerdictNone
	}
	for _, lex := range confirmLexemes {
		if normalized == strings.ToLower(lex) {
			return VerdictConfirm
		}
	}
	for _, lex := range cancelLexemes {
		if normalized == strings.ToLower(lex) {
			return VerdictCancel
		}
	}
	return VerdictNone
}
