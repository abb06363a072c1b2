package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/regbuddy/internal/config"
)

// ErrMicrophoneDenied is returned by a Microphone when capture is refused.
var ErrMicrophoneDenied = errors.New("microphone access denied")

// SessionConfig is what the agent is told about the conversation.
type SessionConfig struct {
	Instructions string
	FirstMessage string
	Voice        string
}

// Credentials authorize one vendor connection.
type Credentials struct {
	// Token is a short-lived bearer token, when the vendor uses one.
	Token     string
	ExpiresAt time.Time
	// URL overrides the vendor endpoint, e.g. a pre-signed URL.
	URL string
}

// Transport connects to a real-time voice vendor.
type Transport interface {
	// Name identifies the vendor in logs.
	Name() string
	Credentials(ctx context.Context, cfg SessionConfig) (Credentials, error)
	Dial(ctx context.Context, creds Credentials, cfg SessionConfig) (Conn, error)
}

// Conn is an open vendor session. Events is closed after the connection
// ends; an unexpected end is reported as TransportFailed first.
type Conn interface {
	Events() <-chan Event
	SendAudio(ctx context.Context, pcm []byte) error
	Configure(ctx context.Context, cfg SessionConfig) error
	Greet(ctx context.Context, firstMessage string) error
	Close() error
}

// Microphone supplies local audio frames.
type Microphone interface {
	// Acquire blocks until capture is granted or refused. The returned
	// channel is closed when capture stops.
	Acquire(ctx context.Context) (<-chan []byte, error)
	Release() error
}

// NewTransport returns the transport selected by cfg.Provider.
func NewTransport(cfg config.VoiceConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.DefaultVoice, cfg.TokenRequestTimeout, logger), nil
	case "elevenlabs":
		return NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsAgentID, cfg.TokenRequestTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown voice provider %q", cfg.Provider)
	}
}
