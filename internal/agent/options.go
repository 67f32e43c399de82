package agent

import (
	"context"
	"time"

	"github.com/DrayChou/personal-ai-assistant/internal/llm"
	"github.com/DrayChou/personal-ai-assistant/internal/tools"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// LLMAdapter is the interface the supervisor loop drives for completions.
// It matches internal/llm.Adapter structurally so either the OpenAI
// adapter or the prompted fallback adapter can be passed directly.
type LLMAdapter interface {
	Generate(ctx context.Context, messages []models.Message, toolSpecs []llm.ToolSpec, choice llm.ToolChoice) (llm.Completion, error)
}

// MemoryRecaller is the subset of the memory system the agent loop
// consults before context build (spec.md §4.5 "Memory integration").
type MemoryRecaller interface {
	Recall(ctx context.Context, query string, topK int) (string, error)
	Capture(ctx context.Context, content string, memType string, tags []string, metadata map[string]any) error
}

// SessionHistory is the subset of the session store the loop needs:
// reading recent turns and appending new ones.
type SessionHistory interface {
	GetHistory(ctx context.Context, key string, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, key string, msg models.Message) error
}

// Options configures a Loop's behavior. Zero-value fields take the
// defaults from DefaultOptions.
type Options struct {
	// MaxSteps bounds the tool-calling iteration count per turn.
	MaxSteps int
	// LLMTimeout bounds each individual LLM call.
	LLMTimeout time.Duration
	// ToolTimeout bounds each individual tool execution.
	ToolTimeout time.Duration
	// ConfirmationTTL bounds how long a PendingConfirmation stays valid.
	ConfirmationTTL time.Duration
	// MaxWorkingTokens bounds the context-build token budget.
	MaxWorkingTokens int
	// SystemPrompt declares identity/personality. It is sent unchanged
	// as the first message; recalled memory follows it as a separate
	// system message, and tool schemas are passed to the adapter
	// alongside the messages rather than appended to the prompt.
	SystemPrompt string
	// MemoryTopK is how many long-term memories to recall per turn.
	MemoryTopK int
}

// DefaultOptions mirrors spec.md §4.5's stated defaults.
func DefaultOptions() Options {
	return Options{
		MaxSteps:         10,
		LLMTimeout:       60 * time.Second,
		ToolTimeout:      30 * time.Second,
		ConfirmationTTL:  5 * time.Minute,
		MaxWorkingTokens: 8000,
		MemoryTopK:       5,
	}
}

func sanitizeOptions(o Options) Options {
	d := DefaultOptions()
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = d.LLMTimeout
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = d.ToolTimeout
	}
	if o.ConfirmationTTL <= 0 {
		o.ConfirmationTTL = d.ConfirmationTTL
	}
	if o.MaxWorkingTokens <= 0 {
		o.MaxWorkingTokens = d.MaxWorkingTokens
	}
	if o.MemoryTopK <= 0 {
		o.MemoryTopK = d.MemoryTopK
	}
	return o
}

// toolSpecsFromRegistry adapts a tools.Registry's schemas into the
// llm.ToolSpec shape the LLMAdapter expects.
func toolSpecsFromRegistry(reg *tools.Registry) []llm.ToolSpec {
	schemas := reg.Schemas()
	out := make([]llm.ToolSpec, 0, len(schemas))
	for _, s := range schemas {
		props := make(map[string]any)
		var required []string
		for _, p := range s.Parameters {
			props[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, llm.ToolSpec{
			Name:        s.Name,
			Description: s.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return out
}
