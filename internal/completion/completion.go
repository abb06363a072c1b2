// Package completion adapts hosted chat-completion APIs to a single port:
// an ordered list of turns plus a system instruction in, one reply out.
package completion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/regbuddy/internal/config"
	"github.com/ashureev/regbuddy/internal/domain"
)

// Turn is one message of the conversation sent for completion.
type Turn struct {
	Role    domain.MessageRole
	Content string
}

// Client produces the next assistant reply.
type Client interface {
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, system string, turns []Turn) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	return f(ctx, system, turns)
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.CompletionConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens)
	case "gemini":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.MaxTokens)
	case "mock":
		slog.Warn("Using mock completion client; replies are canned")
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
