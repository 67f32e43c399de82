package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// OpenAIConfig configures an OpenAI-compatible adapter. BaseURL lets the
// same client target any OpenAI-compatible endpoint (local runtimes,
// gateways, self-hosted inference).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIAdapter implements Adapter against the OpenAI chat-completions
// API (or any OpenAI-compatible endpoint) using native function calling.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter constructs an OpenAIAdapter. If cfg.BaseURL is set,
// the client targets that endpoint instead of api.openai.com.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(clientConfig), model: model}
}

func (a *OpenAIAdapter) Generate(ctx context.Context, messages []models.Message, tools []ToolSpec, choice ToolChoice) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 && choice != ToolChoiceNone {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("llm: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("llm: openai completion: empty choices")
	}

	choice0 := resp.Choices[0]
	out := Completion{
		Text:         choice0.Message.Content,
		FinishReason: string(choice0.FinishReason),
	}
	for _, tc := range choice0.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
