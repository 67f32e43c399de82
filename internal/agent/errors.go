package agent

import "errors"

// Sentinel errors surfaced by the supervisor loop. Callers should use
// errors.Is against these, since the loop may wrap them.
var (
	ErrMaxStepsExceeded    = errors.New("agent: max steps exceeded")
	ErrContextCancelled    = errors.New("agent: context cancelled")
	ErrNoAdapter           = errors.New("agent: no LLM adapter configured")
	ErrConfirmationExpired = errors.New("agent: pending confirmation expired")
	ErrConfirmationUnknown = errors.New("agent: no pending confirmation for this session")
)

// TerminationReason buckets why a Run call stopped, for the
// aegis_agent_turn_terminations_total metric.
type TerminationReason string

const (
	TerminationText          TerminationReason = "text"
	TerminationStepCap       TerminationReason = "step_cap"
	TerminationError         TerminationReason = "error"
	TerminationConfirmWait   TerminationReason = "awaiting_confirmation"
	TerminationToolExhausted TerminationReason = "tool_exhausted"
)
