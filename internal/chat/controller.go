// Package chat implements sequential text turn-taking with the completion
// endpoint for one chat session.
package chat

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/regbuddy/internal/completion"
	"github.com/ashureev/regbuddy/internal/convlog"
	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/notify"
	"github.com/oklog/ulid/v2"
)

// SendFailedMessage is shown when a send cannot be completed.
const SendFailedMessage = "Failed to send message. Please try again."

var (
	// ErrBusy is returned when a send is attempted while another is in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Store is the persistence the controller needs.
type Store interface {
	InsertMessage(ctx context.Context, msg *domain.ChatMessage) (string, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error)
	InsertAILog(ctx context.Context, entry *domain.AILog) error
}

// Deps are the collaborators shared by every controller.
type Deps struct {
	Completer    completion.Client
	Store        Store
	Notifier     notify.Notifier
	ConvLog      convlog.Logger
	Logger       *slog.Logger
	HistoryLimit int
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ConvLog == nil {
		d.ConvLog = convlog.Nop{}
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 50
	}
	return d
}

// Reply is the outcome of a send. User is always set once the message was
// accepted; Assistant is nil when the completion failed.
type Reply struct {
	User       domain.ChatMessage     `json:"user_message"`
	Assistant  *domain.ChatMessage    `json:"assistant_message,omitempty"`
	Suggestion *domain.ToolSuggestion `json:"tool_suggestion,omitempty"`
}

// Controller owns the message list of one session. At most one send is in
// flight at a time.
type Controller struct {
	session domain.Session
	deps    Deps
	system  string

	mu         sync.Mutex
	messages   []domain.ChatMessage
	suggestion *domain.ToolSuggestion
	inFlight   bool
	lastUsed   time.Time
	entropy    *ulid.MonotonicEntropy
}

// NewController creates a controller for session with an empty history.
// Call LoadHistory to restore persisted turns.
func NewController(session domain.Session, deps Deps) *Controller {
	return &Controller{
		session:  session,
		deps:     deps.withDefaults(),
		system:   completion.ChatSystemPrompt(session.Mood),
		lastUsed: time.Now(),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// LoadHistory replaces the local history with the persisted one. Stored
// system turns are shown as assistant turns.
func (c *Controller) LoadHistory(ctx context.Context) error {
	stored, err := c.deps.Store.ListMessages(ctx, c.session.ID, c.deps.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	history := make([]domain.ChatMessage, 0, len(stored))
	for _, m := range stored {
		msg := *m
		if msg.Role == domain.MessageRoleSystem {
			msg.Role = domain.MessageRoleAssistant
		}
		history = append(history, msg)
	}

	c.mu.Lock()
	c.messages = history
	c.mu.Unlock()
	return nil
}

// Send appends a user turn, asks the completion endpoint for a reply over
// the latest HistoryLimit turns and appends exactly one assistant turn. Both turns are persisted. Failures
// raise a notification and leave the local history as it is.
func (c *Controller) Send(ctx context.Context, content string) (*Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.inFlight = true
	c.lastUsed = time.Now()
	userMsg := c.newMessageLocked(domain.MessageRoleUser, content)
	c.messages = append(c.messages, userMsg)
	turns := c.turnsLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.lastUsed = time.Now()
		c.mu.Unlock()
	}()

	reply := &Reply{User: userMsg}
	c.logTurn(userMsg, "outbound", "chat_user_message", nil)

	persisted := userMsg
	if _, err := c.deps.Store.InsertMessage(ctx, &persisted); err != nil {
		return reply, c.fail("save user message", err)
	}

	text, err := c.deps.Completer.Complete(ctx, c.system, turns)
	if err != nil {
		return reply, c.fail("complete chat", err)
	}

	suggestion := DetectToolSuggestion(text)

	c.mu.Lock()
	assistantMsg := c.newMessageLocked(domain.MessageRoleAssistant, text)
	if suggestion != nil {
		assistantMsg.Metadata = map[string]any{"toolSuggestion": suggestion}
	}
	c.messages = append(c.messages, assistantMsg)
	c.suggestion = suggestion
	c.mu.Unlock()

	reply.Assistant = &assistantMsg
	reply.Suggestion = suggestion
	c.logTurn(assistantMsg, "inbound", "chat_assistant_message", suggestion)

	persisted = assistantMsg
	if _, err := c.deps.Store.InsertMessage(ctx, &persisted); err != nil {
		return reply, c.fail("save assistant message", err)
	}

	entry := &domain.AILog{
		SessionID: c.session.ID,
		UserID:    c.session.UserID,
		Input:     content,
		Output:    text,
	}
	if suggestion != nil {
		entry.ToolTriggered = suggestion.Tool
	}
	if err := c.deps.Store.InsertAILog(ctx, entry); err != nil {
		return reply, c.fail("save ai log", err)
	}

	return reply, nil
}

func (c *Controller) fail(step string, err error) error {
	c.deps.Logger.Error("chat send failed",
		"step", step,
		"session_id", c.session.ID,
		"user_id", c.session.UserID,
		"error", err,
	)
	if c.deps.Notifier != nil {
		c.deps.Notifier.Notify(c.session.UserID, notify.KindError, SendFailedMessage)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (c *Controller) logTurn(msg domain.ChatMessage, direction, eventType string, suggestion *domain.ToolSuggestion) {
	meta := map[string]any{"message_id": msg.ID, "mood": string(c.session.Mood)}
	if suggestion != nil {
		meta["tool_suggestion"] = string(suggestion.Tool)
	}
	c.deps.ConvLog.Log(convlog.Event{
		UserID:     c.session.UserID,
		SessionID:  c.session.ID,
		Channel:    convlog.ChannelChat,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: msg.Content,
		Meta:       meta,
	})
}

func (c *Controller) newMessageLocked(role domain.MessageRole, content string) domain.ChatMessage {
	now := time.Now().UTC()
	return domain.ChatMessage{
		ID:        ulid.MustNew(ulid.Timestamp(now), c.entropy).String(),
		SessionID: c.session.ID,
		UserID:    c.session.UserID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
}

// turnsLocked returns the completion window: the latest HistoryLimit
// messages, starting at a user turn.
func (c *Controller) turnsLocked() []completion.Turn {
	window := c.messages
	if len(window) > c.deps.HistoryLimit {
		window = window[len(window)-c.deps.HistoryLimit:]
	}
	for len(window) > 0 && window[0].Role != domain.MessageRoleUser {
		window = window[1:]
	}

	turns := make([]completion.Turn, 0, len(window))
	for _, m := range window {
		turns = append(turns, completion.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// Session returns the session this controller serves.
func (c *Controller) Session() domain.Session {
	return c.session
}

// Messages returns a copy of the local history.
func (c *Controller) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Suggestion returns the suggestion derived from the latest reply, or nil.
func (c *Controller) Suggestion() *domain.ToolSuggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggestion
}

// ClearSuggestion dismisses the current suggestion.
func (c *Controller) ClearSuggestion() {
	c.mu.Lock()
	c.suggestion = nil
	c.mu.Unlock()
}

// Pending reports whether a send is in flight.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Controller) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *Controller) idleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed, c.inFlight
}
