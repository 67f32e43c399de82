// Package llm defines the LLMAdapter contract the supervisor agent loop
// drives, plus an OpenAI-compatible implementation and a fallback
// prompted tool-calling protocol for models without native function
// calling.
package llm

import (
	"context"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// ToolChoice constrains whether/which tool the model should call.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ToolSpec is the wire shape of one callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Completion is one LLM turn: either freeform text, or one or more tool
// calls the agent loop must execute before continuing.
type Completion struct {
	Text      string
	ToolCalls []models.ToolCall
	// FinishReason is "stop", "tool_calls", or "length".
	FinishReason string
}

// Adapter is the interface the supervisor agent loop drives. An
// implementation either delegates to a provider's native function
// calling or, for providers that lack it, emulates tool calls through
// the prompted protocol in this package.
type Adapter interface {
	Generate(ctx context.Context, messages []models.Message, tools []ToolSpec, choice ToolChoice) (Completion, error)
}
