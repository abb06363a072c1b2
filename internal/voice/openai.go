package voice

import (
	"bytes"
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
	defaultOpenAIAPIBase     = "https://api.openai.com/v1"
	defaultOpenAIRealtimeURL = "wss://api.openai.com/v1/realtime"

	// DefaultVoice is used when no voice is requested.
	DefaultVoice = "coral"
)

// Voices lists the voices the realtime endpoint accepts.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// ValidVoice reports whether v is a known voice.
func ValidVoice(v string) bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

// EphemeralToken is a short-lived realtime credential.
type EphemeralToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenAI talks to the OpenAI Realtime API over a WebSocket.
type OpenAI struct {
	APIKey string
	Model  string
	// Voice is the fallback when a session does not pick one.
	Voice string

	APIBase     string
	RealtimeURL string
	HTTPClient  *http.Client
	Dialer      *websocket.Dialer
	Logger      *slog.Logger
}

// NewOpenAI creates a transport with production endpoints.
func NewOpenAI(apiKey, model, voice string, timeout time.Duration, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAI{
		APIKey:      apiKey,
		Model:       model,
		Voice:       voice,
		APIBase:     defaultOpenAIAPIBase,
		RealtimeURL: defaultOpenAIRealtimeURL,
		HTTPClient:  &http.Client{Timeout: timeout},
		Dialer:      websocket.DefaultDialer,
		Logger:      logger,
	}
}

// Name implements Transport.
func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) voiceOrDefault(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if ValidVoice(v) {
		return v
	}
	if ValidVoice(o.Voice) {
		return o.Voice
	}
	return DefaultVoice
}

// MintToken asks the realtime sessions endpoint for an ephemeral client
// secret. The long-lived API key never leaves the server.
func (o *OpenAI) MintToken(ctx context.Context, voice string) (*EphemeralToken, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY: %w", domain.ErrCredentialsMissing)
	}

	body, err := json.Marshal(map[string]string{
		"model": o.Model,
		"voice": o.voiceOrDefault(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.APIBase+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("create realtime session: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("read realtime session: %w", err))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("realtime session rejected (%d): %w", resp.StatusCode, domain.ErrCredentialsMissing)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("realtime session status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out struct {
		ClientSecret *struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode realtime session: %w", err)
	}
	if out.ClientSecret == nil || out.ClientSecret.Value == "" {
		return nil, errors.New("realtime session response has no client secret")
	}
	return &EphemeralToken{
		Value:     out.ClientSecret.Value,
		ExpiresAt: time.Unix(out.ClientSecret.ExpiresAt, 0).UTC(),
	}, nil
}

// Credentials implements Transport by minting an ephemeral token.
func (o *OpenAI) Credentials(ctx context.Context, cfg SessionConfig) (Credentials, error) {
	tok, err := o.MintToken(ctx, cfg.Voice)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: tok.Value, ExpiresAt: tok.ExpiresAt}, nil
}

// Dial implements Transport.
func (o *OpenAI) Dial(ctx context.Context, creds Credentials, _ SessionConfig) (Conn, error) {
	if creds.Token == "" {
		return nil, fmt.Errorf("realtime token: %w", domain.ErrCredentialsMissing)
	}
	endpoint := creds.URL
	if endpoint == "" {
		u, err := url.Parse(o.RealtimeURL)
		if err != nil {
			return nil, fmt.Errorf("parse realtime url: %w", err)
		}
		q := u.Query()
		q.Set("model", o.Model)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.Token)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, _, err := o.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, errors.Join(domain.ErrNetwork, fmt.Errorf("dial realtime: %w", err))
	}

	c := &openAIConn{
		ws:     ws,
		voice:  o.voiceOrDefault(""),
		events: make(chan Event, 64),
		closed: make(chan struct{}),
		logger: o.Logger,
	}
	go c.readLoop()
	return c, nil
}

type openAIConn struct {
	ws     *websocket.Conn
	voice  string
	logger *slog.Logger

	writeMu   sync.Mutex
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *openAIConn) Events() <-chan Event { return c.events }

func (c *openAIConn) Configure(_ context.Context, cfg SessionConfig) error {
	voice := c.voice
	if ValidVoice(cfg.Voice) {
		voice = cfg.Voice
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = "You are a helpful assistant."
	}
	return c.writeJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        instructions,
			"voice":               voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 600,
			},
		},
	})
}

func (c *openAIConn) Greet(_ context.Context, firstMessage string) error {
	if firstMessage == "" {
		return nil
	}
	return c.writeJSON(map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"modalities":   []string{"text", "audio"},
			"instructions": `Say exactly: "` + firstMessage + `"`,
		},
	})
}

func (c *openAIConn) SendAudio(_ context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.writeJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *openAIConn) writeJSON(v any) error {
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

func (c *openAIConn) Close() error {
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

func (c *openAIConn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		ev, err := decodeOpenAIEvent(data)
		if err != nil {
			c.logger.Debug("undecodable realtime event", "error", err)
			continue
		}
		if !c.emit(ev) {
			return
		}
	}
}

func (c *openAIConn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closed:
		return false
	}
}

func (c *openAIConn) fail(err error) {
	select {
	case <-c.closed:
		return
	default:
	}
	c.emit(TransportFailed{Err: err})
}

type openAIEvent struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeOpenAIEvent(data []byte) (Event, error) {
	var raw openAIEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "session.created":
		return SessionCreated{}, nil
	case "session.updated":
		return SessionReady{}, nil
	case "input_audio_buffer.speech_started":
		return SpeechStarted{}, nil
	case "input_audio_buffer.speech_stopped":
		return SpeechStopped{}, nil
	case "conversation.item.input_audio_transcription.completed":
		return UserTranscript{Text: raw.Transcript}, nil
	case "response.audio_transcript.delta":
		return TranscriptDelta{TurnID: raw.ResponseID, Delta: raw.Delta}, nil
	case "response.audio_transcript.done":
		return TranscriptDone{TurnID: raw.ResponseID, Text: raw.Transcript}, nil
	case "response.audio.started", "output_audio_buffer.started":
		return AgentSpeechStarted{}, nil
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(raw.Delta)
		if err != nil {
			return nil, fmt.Errorf("decode audio delta: %w", err)
		}
		return AgentAudio{Audio: audio}, nil
	case "response.audio.stopped", "output_audio_buffer.stopped", "response.done":
		return AgentSpeechStopped{}, nil
	case "error":
		msg := ""
		if raw.Error != nil {
			msg = raw.Error.Message
		}
		return VendorError{Message: msg}, nil
	default:
		return Unknown{Type: raw.Type}, nil
	}
}
