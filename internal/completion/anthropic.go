package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// AnthropicClient completes chats with Claude through langchaingo.
type AnthropicClient struct {
	llm       llms.Model
	maxTokens int
}

// NewAnthropic creates a Claude-backed client.
func NewAnthropic(apiKey, model string, maxTokens int) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", domain.ErrCredentialsMissing)
	}
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return &AnthropicClient{llm: llm, maxTokens: maxTokens}, nil
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	messages := make([]llms.MessageContent, 0, len(turns)+1)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, t := range turns {
		role := llms.ChatMessageTypeHuman
		if t.Role == domain.MessageRoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, t.Content))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return "", fmt.Errorf("anthropic generate content: %w", errors.Join(domain.ErrNetwork, err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anthropic returned no choices: %w", domain.ErrNetwork)
	}
	return resp.Choices[0].Content, nil
}
