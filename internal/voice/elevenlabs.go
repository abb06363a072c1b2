package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	defaultElevenLabsAPIBase = "https://api.elevenlabs.io/v1"
	defaultElevenLabsWSURL   = "wss://api.elevenlabs.io/v1/convai/conversation"

	defaultAgentPrompt       = "You are Regulation Buddy, a helpful emotional support assistant."
	defaultAgentFirstMessage = "Hi! I'm your Regulation Buddy. How are you feeling today?"
)

// ElevenLabs talks to an ElevenLabs Conversational AI agent.
type ElevenLabs struct {
	APIKey  string
	AgentID string

	APIBase    string
	WSURL      string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// NewElevenLabs creates a transport with production endpoints.
func NewElevenLabs(apiKey, agentID string, timeout time.Duration, logger *slog.Logger) *ElevenLabs {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ElevenLabs{
		APIKey:     apiKey,
		AgentID:    agentID,
		APIBase:    defaultElevenLabsAPIBase,
		WSURL:      defaultElevenLabsWSURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Dialer:     websocket.DefaultDialer,
		Logger:     logger,
	}
}

// Name implements Transport.
func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) publicURL() string {
	return e.WSURL + "?agent_id=" + url.QueryEscape(e.AgentID)
}

// Credentials implements Transport. It asks for a signed URL and falls back
// to the public agent URL when signing fails.
func (e *ElevenLabs) Credentials(ctx context.Context, _ SessionConfig) (Credentials, error) {
	if strings.TrimSpace(e.APIKey) == "" || strings.TrimSpace(e.AgentID) == "" {
		return Credentials{}, fmt.Errorf("ELEVENLABS_API_KEY and ELEVENLABS_AGENT_ID: %w", domain.ErrCredentialsMissing)
	}

	signed, err := e.signedURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Credentials{}, ctx.Err()
		}
		e.Logger.Warn("signed url unavailable, using public agent url", "error", err)
		return Credentials{URL: e.publicURL()}, nil
	}
	return Credentials{URL: signed}, nil
}

func (e *ElevenLabs) signedURL(ctx context.Context) (string, error) {
	endpoint := e.APIBase + "/convai/conversation/get-signed-url?agent_id=" + url.QueryEscape(e.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", e.APIKey)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("signed url status %d", resp.StatusCode)
	}

	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode signed url: %w", err)
	}
	if out.SignedURL == "" {
		return "", errors.New("empty signed url")
	}
	return out.SignedURL, nil
}

// Dial implements Transport. The conversation overrides are sent by
// Configure once the socket is open.
func (e *ElevenLabs) Dial(ctx context.Context, creds Credentials, _ SessionConfig) (Conn, error) {
	endpoint := creds.URL
	if endpoint == "" {
		endpoint = e.publicURL()
	}

	ws, _, err := e.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("dial conversation: %w", err))
	}

	c := &elevenLabsConn{
		ws:     ws,
		events: make(chan Event, 64),
		closed: make(chan struct{}),
		logger: e.Logger,
	}
	// The socket accepts the initiation payload right away.
	c.events <- SessionCreated{}
	go c.readLoop()
	return c, nil
}

type elevenLabsConn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *elevenLabsConn) Events() <-chan Event { return c.events }

func (c *elevenLabsConn) Configure(_ context.Context, cfg SessionConfig) error {
	prompt := cfg.Instructions
	if prompt == "" {
		prompt = defaultAgentPrompt
	}
	first := cfg.FirstMessage
	if first == "" {
		first = defaultAgentFirstMessage
	}
	return c.writeJSON(map[string]any{
		"type": "conversation_initiation_client_data",
		"conversation_config_override": map[string]any{
			"agent": map[string]any{
				"prompt":        map[string]any{"prompt": prompt},
				"first_message": first,
				"language":      "en",
			},
		},
	})
}

// Greet is a no-op: the agent speaks the first message from the overrides.
func (c *elevenLabsConn) Greet(context.Context, string) error { return nil }

func (c *elevenLabsConn) SendAudio(_ context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.writeJSON(map[string]any{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *elevenLabsConn) writeJSON(v any) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *elevenLabsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *elevenLabsConn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.emit(TransportFailed{Err: err})
			}
			return
		}

		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("undecodable conversation event", "error", err)
			continue
		}

		if msg.Type == "ping" {
			if err := c.pong(msg.PingEvent.EventID); err != nil {
				c.logger.Debug("pong failed", "error", err)
			}
			continue
		}

		evs, err := msg.events()
		if err != nil {
			c.logger.Debug("bad conversation event", "type", msg.Type, "error", err)
			continue
		}
		for _, ev := range evs {
			if !c.emit(ev) {
				return
			}
		}
	}
}

func (c *elevenLabsConn) pong(eventID int64) error {
	return c.writeJSON(map[string]any{"type": "pong", "event_id": eventID})
}

func (c *elevenLabsConn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closed:
		return false
	}
}

type elevenLabsMessage struct {
	Type string `json:"type"`

	UserTranscriptionEvent struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
	AgentResponseEvent struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
	AudioEvent struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int64  `json:"event_id"`
	} `json:"audio_event"`
	PingEvent struct {
		EventID int64 `json:"event_id"`
	} `json:"ping_event"`
	Message string `json:"message"`
}

// events maps one message to normalized events. The agent has no explicit
// end-of-user-speech signal, so a finished user transcript also stops
// listening.
func (m elevenLabsMessage) events() ([]Event, error) {
	switch m.Type {
	case "conversation_initiation_metadata":
		return []Event{SessionReady{}}, nil
	case "user_transcript":
		return []Event{SpeechStopped{}, UserTranscript{Text: m.UserTranscriptionEvent.UserTranscript}}, nil
	case "agent_response":
		return []Event{TranscriptDone{Text: m.AgentResponseEvent.AgentResponse}}, nil
	case "audio":
		audio, err := base64.StdEncoding.DecodeString(m.AudioEvent.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("decode audio: %w", err)
		}
		return []Event{AgentAudio{Audio: audio}}, nil
	case "interruption":
		return []Event{SpeechStarted{}}, nil
	case "error":
		return []Event{VendorError{Message: m.Message}}, nil
	default:
		return []Event{Unknown{Type: m.Type}}, nil
	}
}
