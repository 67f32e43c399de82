package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

const (
	toolCallOpenTag  = "<tool_call>"
	toolCallCloseTag = "</tool_call>"
)

// ExtractPromptedToolCalls scans raw model output for the prompted
// tool-calling protocol used by providers without native function
// calling: one or more "<tool_call>{...}</tool_call>" blocks, each
// containing a JSON object with "name" and "arguments" fields. It
// tolerates surrounding whitespace and multiple calls in one response;
// a malformed block is skipped rather than aborting the scan. The
// remaining text (with tool_call blocks stripped) is returned alongside
// any calls found, so callers can still surface prose the model emitted
// around its calls.
func ExtractPromptedToolCalls(raw string) (remaining string, calls []models.ToolCall) {
	var sb strings.Builder
	rest := raw

	for {
		start := strings.Index(rest, toolCallOpenTag)
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])

		afterOpen := rest[start+len(toolCallOpenTag):]
		end := strings.Index(afterOpen, toolCallCloseTag)
		if end < 0 {
			// Unterminated block: treat the rest as plain text rather
			// than silently dropping it.
			sb.WriteString(rest[start:])
			break
		}

		body := strings.TrimSpace(afterOpen[:end])
		if call, ok := parsePromptedCall(body); ok {
			calls = append(calls, call)
		}

		rest = afterOpen[end+len(toolCallCloseTag):]
	}

	return strings.TrimSpace(sb.String()), calls
}

func parsePromptedCall(body string) (models.ToolCall, bool) {
	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.ToolCall{}, false
	}
	if raw.Name == "" {
		return models.ToolCall{}, false
	}
	args := raw.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return models.ToolCall{ID: uuid.NewString(), Name: raw.Name, Arguments: args}, true
}

// RenderPromptedToolCatalog formats tool specs into the system-prompt
// fragment that instructs a model without native function calling how
// to emit the prompted tool-call protocol.
func RenderPromptedToolCatalog(tools []ToolSpec) string {
	if len(tools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("You can call the following tools. To call one, emit exactly one block of the form:\n")
	sb.WriteString("<tool_call>{\"name\": \"<tool name>\", \"arguments\": { ... }}</tool_call>\n\n")
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString("- ")
		sb.WriteString(t.Name)
		sb.WriteString(": ")
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

// TextCompleter is a text-only completion function for providers with no
// native function calling (e.g. a bare Ollama chat model).
type TextCompleter func(ctx context.Context, messages []models.Message) (string, error)

// PromptedAdapter wraps a TextCompleter and layers the prompted
// tool-calling protocol on top, implementing Adapter for providers that
// have no native function-calling API.
type PromptedAdapter struct {
	Complete TextCompleter
}

// NewPromptedAdapter wraps complete with the prompted tool-calling protocol.
func NewPromptedAdapter(complete TextCompleter) *PromptedAdapter {
	return &PromptedAdapter{Complete: complete}
}

func (p *PromptedAdapter) Generate(ctx context.Context, messages []models.Message, tools []ToolSpec, choice ToolChoice) (Completion, error) {
	augmented := messages
	if catalog := RenderPromptedToolCatalog(tools); catalog != "" && choice != ToolChoiceNone {
		augmented = append([]models.Message{{Role: models.RoleSystem, Content: catalog}}, messages...)
	}

	raw, err := p.Complete(ctx, augmented)
	if err != nil {
		return Completion{}, fmt.Errorf("llm: prompted completion: %w", err)
	}

	text, calls := ExtractPromptedToolCalls(raw)
	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
	}
	return Completion{Text: text, ToolCalls: calls, FinishReason: finish}, nil
}
