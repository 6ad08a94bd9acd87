// Package llm adapts the OpenRouter chat-completions API to the generation
// contract used by the turn orchestrator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/waritk/agentwidget/agent/contract"
	sessionx "github.com/waritk/agentwidget/agent/session"
	openrouterx "github.com/waritk/agentwidget/pkg/openrouter"
)

type Generator struct {
	client      *openaisdk.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewGenerator(client *openaisdk.Client, cfg openrouterx.Config) (*Generator, error) {
	if client == nil {
		return nil, errors.New("openrouter client is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("model name is required")
	}
	return &Generator{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionToken,
	}, nil
}

// Generate sends the system prompt, the ordered history, and the new user
// input as one chat completion. All upstream failures are reported wrapped
// in contract.ErrGeneration.
func (g *Generator) Generate(ctx context.Context, systemPrompt string, history []sessionx.ConversationTurn, input string) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case sessionx.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openaisdk.UserMessage(input))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(g.model),
		Messages: messages,
	}
	if g.temperature > 0 {
		params.Temperature = openaisdk.Float(g.temperature)
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(g.maxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrGeneration, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrGeneration)
	}

	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: blank reply", contractx.ErrGeneration)
	}
	return reply, nil
}
