package bridge

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/regbuddy/internal/convlog"
	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/voice"
	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

const (
	startTimeout = 30 * time.Second
	outboxSize   = 64
)

var errClientEnded = errors.New("client ended session")

// WebSocketHandler serves GET /ws/voice.
type WebSocketHandler struct {
	transport     voice.Transport
	sm            *SessionManager
	convLog       convlog.Logger
	logger        *slog.Logger
	openingDelay  time.Duration
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new voice WebSocket handler.
func NewWebSocketHandler(transport voice.Transport, sm *SessionManager, convLog convlog.Logger, openingDelay time.Duration, allowedOrigin string, isDev bool) *WebSocketHandler {
	if convLog == nil {
		convLog = convlog.Nop{}
	}
	return &WebSocketHandler{
		transport:     transport,
		sm:            sm,
		convLog:       convLog,
		logger:        slog.Default(),
		openingDelay:  openingDelay,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientMessage is a control message from the browser. Audio arrives as
// binary frames.
type clientMessage struct {
	Type      string      `json:"type"`
	Mood      domain.Mood `json:"mood,omitempty"`
	Voice     string      `json:"voice,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Granted   bool        `json:"granted,omitempty"`
}

// outbound is one queued write: JSON when binary is nil.
type outbound struct {
	json   any
	binary []byte
}

type statusMessage struct {
	Type string `json:"type"`
	voice.Snapshot
}

type transcriptMessage struct {
	Type string     `json:"type"`
	Role voice.Role `json:"role"`
	Text string     `json:"text"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	start, err := h.readStart(ctx, ws)
	if err != nil {
		h.logger.Debug("Voice start not received", "error", err, "user_id", userID)
		_ = h.writeJSON(ctx, ws, errorMessage{Type: "error", Message: "expected start message"})
		return
	}

	sessionID := start.SessionID
	if sessionID == "" {
		sessionID = ulid.MustNew(ulid.Now(), rand.Reader).String()
	}
	log := h.logger.With("user_id", userID, "session_id", sessionID, "vendor", h.transport.Name())

	outbox := make(chan outbound, outboxSize)
	writerDone := make(chan struct{})
	enqueue := func(msg outbound) {
		select {
		case outbox <- msg:
		case <-writerDone:
		}
	}

	view := &voice.View{OnChange: func(s voice.Snapshot) {
		enqueue(outbound{json: statusMessage{Type: "status", Snapshot: s}})
	}}
	cfg := voice.Config{
		SystemPrompt: voice.PersonaPrompt(start.Mood),
		FirstMessage: voice.FirstMessage(start.Mood),
		Voice:        start.Voice,
	}
	view.Bind(&cfg)
	appendLine := cfg.OnMessage
	cfg.OnMessage = func(line voice.TranscriptLine) {
		appendLine(line)
		enqueue(outbound{json: transcriptMessage{Type: "transcript", Role: line.Role, Text: line.Text}})
		h.logLine(userID, sessionID, line)
	}
	cfg.OnAudio = func(pcm []byte) {
		enqueue(outbound{binary: pcm})
	}

	mic := newWSMicrophone()
	ctrl := voice.NewController(h.transport, mic, voice.WithOpeningDelay(h.openingDelay), voice.WithLogger(log))

	h.sm.Register(userID, sessionID, ctrl, ws)
	defer h.sm.Unregister(userID, ctrl)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(writerDone)
		return h.writeLoop(gctx, ws, outbox)
	})

	g.Go(func() error {
		return h.readLoop(gctx, ws, mic, ctrl, log)
	})

	g.Go(func() error {
		if err := ctrl.Initialize(gctx, cfg); err != nil {
			log.Warn("Voice session failed to start", "error", err)
			if !errors.Is(err, voice.ErrSessionEnded) {
				enqueue(outbound{json: errorMessage{Type: "error", Message: view.Snapshot().StatusText}})
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientEnded) && !errors.Is(err, context.Canceled) {
		log.Debug("Voice bridge stopped", "error", err)
	}

	ctrl.EndSession()
	h.flush(ws, outbox)
	log.Info("Voice session ended")
}

func (h *WebSocketHandler) readStart(ctx context.Context, ws *websocket.Conn) (clientMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return clientMessage{}, err
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return clientMessage{}, err
		}
		if msg.Type != "start" {
			continue
		}
		if msg.Mood != "" && !msg.Mood.Valid() {
			msg.Mood = ""
		}
		return msg, nil
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, mic *wsMicrophone, ctrl *voice.Controller, log *slog.Logger) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("WebSocket closed by client")
				return errClientEnded
			}
			return err
		}

		if typ == websocket.MessageBinary {
			mic.push(data)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("Ignoring malformed client message", "error", err)
			continue
		}

		switch msg.Type {
		case "microphone":
			mic.grant(msg.Granted)
		case "playback_ended":
			ctrl.Dispatch(voice.AgentSpeechStopped{})
		case "ping":
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				log.Debug("Failed to send pong", "error", err)
			}
		case "end":
			log.Info("Voice session end requested")
			ctrl.EndSession()
			return errClientEnded
		default:
			log.Debug("Ignoring client message", "type", msg.Type)
		}
	}
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, ws *websocket.Conn, outbox <-chan outbound) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-outbox:
			if err := h.write(ctx, ws, msg); err != nil {
				return err
			}
		}
	}
}

// flush sends whatever is still queued once the session is over, so the
// final disconnected status reaches a client that is still listening.
func (h *WebSocketHandler) flush(ws *websocket.Conn, outbox <-chan outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		select {
		case msg := <-outbox:
			if err := h.write(ctx, ws, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, msg outbound) error {
	if msg.binary != nil {
		return ws.Write(ctx, websocket.MessageBinary, msg.binary)
	}
	return h.writeJSON(ctx, ws, msg.json)
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *WebSocketHandler) logLine(userID, sessionID string, line voice.TranscriptLine) {
	direction := "inbound"
	if line.Role == voice.RoleUser {
		direction = "outbound"
	}
	h.convLog.Log(convlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    convlog.ChannelVoice,
		Direction:  direction,
		EventType:  "voice_transcript",
		ContentRaw: line.Text,
		Meta:       map[string]any{"role": string(line.Role), "vendor": h.transport.Name()},
	})
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
