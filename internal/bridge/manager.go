// Package bridge connects browser WebSocket clients to voice sessions.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Session is the part of a voice session the manager needs.
type Session interface {
	EndSession()
}

type activeSession struct {
	id      string
	session Session
	conn    *websocket.Conn
}

// SessionManager keeps at most one active voice session per user. The
// microphone and the vendor session are exclusive, so a new registration
// ends the previous one.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]activeSession
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]activeSession),
	}
}

// GetActive returns the id of the user's active session, or "".
func (m *SessionManager) GetActive(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID].id
}

// Register makes session the user's active session, ending any other.
// Entries are matched by session, not by id: a client reconnecting with the
// same id still replaces its previous connection.
func (m *SessionManager) Register(userID, sessionID string, session Session, conn *websocket.Conn) {
	m.mu.Lock()
	existing, exists := m.active[userID]
	m.active[userID] = activeSession{id: sessionID, session: session, conn: conn}
	m.mu.Unlock()

	if exists && existing.session != session {
		end(existing, "session replaced")
		slog.Info("Voice session replaced", "user_id", userID, "old_session_id", existing.id, "session_id", sessionID)
	}
	slog.Info("Voice session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes the user's entry if it still holds session.
func (m *SessionManager) Unregister(userID string, session Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[userID]; ok && current.session == session {
		delete(m.active, userID)
		slog.Info("Voice session unregistered", "user_id", userID, "session_id", current.id)
	}
}

// CloseSession ends the user's active session, if any.
func (m *SessionManager) CloseSession(userID string) {
	m.mu.Lock()
	current, ok := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()

	if !ok {
		return
	}
	end(current, "session closed")
	slog.Info("Voice session closed", "user_id", userID, "session_id", current.id)
}

// Len returns the number of users with an active session.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

func end(s activeSession, reason string) {
	if s.session != nil {
		s.session.EndSession()
	}
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, reason)
	}
}
