package bridge

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSession struct {
	ended atomic.Int32
}

func (s *countingSession) EndSession() { s.ended.Add(1) }

func TestSessionManager_Register(t *testing.T) {
	sm := NewSessionManager()
	s := &countingSession{}

	sm.Register("user123", "voice-1", s, nil)

	if got := sm.GetActive("user123"); got != "voice-1" {
		t.Errorf("Expected active session voice-1, got %q", got)
	}
	if s.ended.Load() != 0 {
		t.Error("registering must not end the new session")
	}
}

func TestSessionManager_RegisterReplaces(t *testing.T) {
	sm := NewSessionManager()
	first := &countingSession{}
	second := &countingSession{}

	sm.Register("user123", "voice-1", first, nil)
	sm.Register("user123", "voice-2", second, nil)

	if first.ended.Load() != 1 {
		t.Errorf("Expected replaced session to be ended once, got %d", first.ended.Load())
	}
	if second.ended.Load() != 0 {
		t.Error("new session must stay active")
	}
	if got := sm.GetActive("user123"); got != "voice-2" {
		t.Errorf("Expected voice-2 active, got %q", got)
	}
}

func TestSessionManager_UnregisterStale(t *testing.T) {
	sm := NewSessionManager()

	first := &countingSession{}
	second := &countingSession{}
	sm.Register("user123", "voice-1", first, nil)
	sm.Register("user123", "voice-2", second, nil)

	// The replaced handler unregistering late must not drop the new session.
	sm.Unregister("user123", first)

	if got := sm.GetActive("user123"); got != "voice-2" {
		t.Errorf("Expected voice-2 active, got %q", got)
	}

	sm.Unregister("user123", second)
	if sm.Len() != 0 {
		t.Errorf("Expected no active sessions, got %d", sm.Len())
	}
}

func TestSessionManager_ReconnectWithSameID(t *testing.T) {
	sm := NewSessionManager()
	first := &countingSession{}
	second := &countingSession{}

	sm.Register("u1", "chat-session-1", first, nil)
	sm.Register("u1", "chat-session-1", second, nil)

	if first.ended.Load() != 1 {
		t.Errorf("Expected earlier connection to be ended once, got %d", first.ended.Load())
	}
	if second.ended.Load() != 0 {
		t.Error("new connection must stay active")
	}

	// The earlier handler exits after the reconnect.
	sm.Unregister("u1", first)
	if got := sm.GetActive("u1"); got != "chat-session-1" {
		t.Fatalf("Expected chat-session-1 still active, got %q", got)
	}

	sm.CloseSession("u1")
	if second.ended.Load() != 1 {
		t.Errorf("Expected sign-out to end the live connection, got %d", second.ended.Load())
	}
}

func TestSessionManager_CloseSession(t *testing.T) {
	sm := NewSessionManager()
	s := &countingSession{}
	sm.Register("user123", "voice-1", s, nil)

	sm.CloseSession("user123")
	sm.CloseSession("user123")

	if s.ended.Load() != 1 {
		t.Errorf("Expected session ended once, got %d", s.ended.Load())
	}
	if sm.GetActive("user123") != "" {
		t.Error("Expected no active session")
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Register("user-"+strconv.Itoa(i%10), "voice-"+strconv.Itoa(i), &countingSession{}, nil)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.GetActive("user-" + strconv.Itoa(i%10))
		}
	}()

	wg.Wait()
	if sm.Len() != 10 {
		t.Errorf("Expected 10 users, got %d", sm.Len())
	}
}
