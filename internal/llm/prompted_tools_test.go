package llm

import (
	"context"
	"testing"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

func TestExtractPromptedToolCallsSingle(t *testing.T) {
	raw := `Let me check that.
<tool_call>{"name": "search", "arguments": {"query": "weather"}}</tool_call>`

	text, calls := ExtractPromptedToolCalls(raw)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "search" {
		t.Fatalf("unexpected tool name %q", calls[0].Name)
	}
	if text != "Let me check that." {
		t.Fatalf("unexpected remaining text %q", text)
	}
}

func TestExtractPromptedToolCallsMultiple(t *testing.T) {
	raw := `<tool_call>{"name": "a", "arguments": {}}</tool_call>  <tool_call>{"name": "b", "arguments": {"x":1}}</tool_call>`
	_, calls := ExtractPromptedToolCalls(raw)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "a" || calls[1].Name != "b" {
		t.Fatalf("unexpected call order: %+v", calls)
	}
}

func TestExtractPromptedToolCallsSkipsMalformedJSON(t *testing.T) {
	raw := `<tool_call>{not json}</tool_call>plain text remains`
	text, calls := ExtractPromptedToolCalls(raw)
	if len(calls) != 0 {
		t.Fatalf("expected 0 calls for malformed JSON, got %d", len(calls))
	}
	if text != "plain text remains" {
		t.Fatalf("unexpected remaining text %q", text)
	}
}

func TestExtractPromptedToolCallsNoBlocks(t *testing.T) {
	text, calls := ExtractPromptedToolCalls("just plain text")
	if len(calls) != 0 || text != "just plain text" {
		t.Fatalf("unexpected result: text=%q calls=%v", text, calls)
	}
}

func TestPromptedAdapterGenerateRoutesToolCatalog(t *testing.T) {
	var capturedMessages []models.Message
	adapter := NewPromptedAdapter(func(ctx context.Context, messages []models.Message) (string, error) {
		capturedMessages = messages
		return `<tool_call>{"name": "search", "arguments": {"q":"x"}}</tool_call>`, nil
	})

	tools := []ToolSpec{{Name: "search", Description: "searches things"}}
	completion, err := adapter.Generate(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}}, tools, ToolChoiceAuto)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(completion.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(completion.ToolCalls))
	}
	if completion.FinishReason != "tool_calls" {
		t.Fatalf("unexpected finish reason %q", completion.FinishReason)
	}
	if len(capturedMessages) != 2 {
		t.Fatalf("expected tool catalog prepended as system message, got %d messages", len(capturedMessages))
	}
	if capturedMessages[0].Role != models.RoleSystem {
		t.Fatalf("expected first message to be system catalog, got role %q", capturedMessages[0].Role)
	}
}
