package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/regbuddy/internal/domain"
	"google.golang.org/genai"
)

// GeminiClient completes chats with Gemini.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, apiKey, model string, maxTokens int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", domain.ErrCredentialsMissing)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, maxTokens: int32(maxTokens)}, nil
}

// Complete implements Client.
func (g *GeminiClient) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == domain.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		MaxOutputTokens:   g.maxTokens,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", errors.Join(domain.ErrNetwork, err))
	}
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text: %w", domain.ErrNetwork)
	}
	return text, nil
}
