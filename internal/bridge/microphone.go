package bridge

import (
	"context"
	"sync"

	"github.com/ashureev/regbuddy/internal/voice"
)

// wsMicrophone is a voice.Microphone fed by the browser. The client
// reports the permission prompt outcome and then streams PCM frames.
type wsMicrophone struct {
	permission chan bool
	frames     chan []byte

	mu        sync.Mutex
	decided   bool
	capturing bool
}

func newWSMicrophone() *wsMicrophone {
	return &wsMicrophone{
		permission: make(chan bool, 1),
		frames:     make(chan []byte, 32),
	}
}

// grant records the permission outcome. Only the first report counts.
func (m *wsMicrophone) grant(granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decided {
		return
	}
	m.decided = true
	m.permission <- granted
}

// push delivers a frame while capture is on. Frames are dropped when the
// session is not reading fast enough.
func (m *wsMicrophone) push(pcm []byte) {
	m.mu.Lock()
	capturing := m.capturing
	m.mu.Unlock()
	if !capturing {
		return
	}
	select {
	case m.frames <- pcm:
	default:
	}
}

func (m *wsMicrophone) Acquire(ctx context.Context) (<-chan []byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case granted := <-m.permission:
		if !granted {
			return nil, voice.ErrMicrophoneDenied
		}
	}
	m.mu.Lock()
	m.capturing = true
	m.mu.Unlock()
	return m.frames, nil
}

func (m *wsMicrophone) Release() error {
	m.mu.Lock()
	m.capturing = false
	m.mu.Unlock()
	return nil
}
