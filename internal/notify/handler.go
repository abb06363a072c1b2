package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/go-chi/chi/v5"
)

// StreamConfig tunes the SSE stream.
type StreamConfig struct {
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
}

// Handler streams a user's toasts over Server-Sent Events.
type Handler struct {
	bus *Bus
	cfg StreamConfig
}

// NewHandler creates an SSE handler for bus.
func NewHandler(bus *Bus, cfg StreamConfig) *Handler {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Handler{bus: bus, cfg: cfg}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/notifications/stream", h.HandleStream)
}

// HandleStream handles GET /api/notifications/stream. Clients reconnecting
// with Last-Event-ID receive the toasts they missed.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	toasts, cancel := h.bus.Subscribe(userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.cfg.RetryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "user_id", userID)
		return
	}
	if err := writeSSE(w, "connected", `{"status":"connected"}`); err != nil {
		return
	}
	flusher.Flush()

	sent := lastEventID
	if lastEventID > 0 {
		for _, t := range h.bus.Missed(userID, lastEventID) {
			if err := writeToast(w, t); err != nil {
				return
			}
			sent = t.EventID
		}
		flusher.Flush()
	}

	slog.Info("Notification stream connected", "user_id", userID, "reconnect", lastEventID > 0)

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("Notification stream disconnected", "user_id", userID)
			return
		case t, ok := <-toasts:
			if !ok {
				return
			}
			if t.EventID <= sent {
				continue
			}
			if err := writeToast(w, t); err != nil {
				slog.Warn("failed to write toast", "error", err, "user_id", userID)
				return
			}
			sent = t.EventID
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeToast(w io.Writer, t Toast) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: toast\ndata: %s\n\n", t.EventID, data)
	return err
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
