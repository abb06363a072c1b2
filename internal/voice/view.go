package voice

import (
	"errors"
	"sync"

	"github.com/ashureev/regbuddy/internal/domain"
)

// CredentialsErrorText replaces raw errors caused by missing voice
// credentials.
const CredentialsErrorText = "Connection failed. Please check your voice credentials."

// Indicator is the activity indicator shown next to the status.
type Indicator string

const (
	IndicatorOffline   Indicator = "offline"
	IndicatorIdle      Indicator = "idle"
	IndicatorListening Indicator = "listening"
	IndicatorSpeaking  Indicator = "speaking"
)

// Snapshot is the derived view state.
type Snapshot struct {
	Status           string           `json:"status"`
	StatusText       string           `json:"status_text"`
	Indicator        Indicator        `json:"indicator"`
	AgentSpeaking    bool             `json:"agent_speaking"`
	MicrophoneActive bool             `json:"microphone_active"`
	Error            string           `json:"error,omitempty"`
	Transcript       []TranscriptLine `json:"transcript"`
}

// View folds controller callbacks into a Snapshot. OnChange, when set, is
// called after every change with the new snapshot.
type View struct {
	OnChange func(Snapshot)

	mu         sync.Mutex
	status     Status
	speaking   bool
	listening  bool
	errText    string
	transcript []TranscriptLine
}

// Bind wires the view's callbacks into cfg, keeping any OnAudio already set.
func (v *View) Bind(cfg *Config) {
	cfg.OnStatusChange = v.SetStatus
	cfg.OnMessage = v.AppendLine
	cfg.OnAgentSpeaking = v.SetAgentSpeaking
	cfg.OnMicrophoneActive = v.SetMicrophoneActive
}

// SetStatus records a status change.
func (v *View) SetStatus(s Status, err error) {
	v.update(func() {
		v.status = s
		if s == StatusError {
			v.errText = userFacingError(err)
		}
	})
}

// AppendLine appends a transcript line.
func (v *View) AppendLine(line TranscriptLine) {
	v.update(func() { v.transcript = append(v.transcript, line) })
}

// SetAgentSpeaking records the agent-speaking flag.
func (v *View) SetAgentSpeaking(on bool) {
	v.update(func() { v.speaking = on })
}

// SetMicrophoneActive records the microphone-active flag.
func (v *View) SetMicrophoneActive(on bool) {
	v.update(func() { v.listening = on })
}

func (v *View) update(fn func()) {
	v.mu.Lock()
	fn()
	snap := v.snapshotLocked()
	onChange := v.OnChange
	v.mu.Unlock()
	if onChange != nil {
		onChange(snap)
	}
}

// Snapshot returns the current derived state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:           v.status.String(),
		StatusText:       statusText(v.status, v.speaking, v.listening, v.errText),
		Indicator:        indicator(v.status, v.speaking, v.listening),
		AgentSpeaking:    v.speaking,
		MicrophoneActive: v.listening,
		Transcript:       make([]TranscriptLine, len(v.transcript)),
	}
	if v.status == StatusError {
		snap.Error = v.errText
	}
	copy(snap.Transcript, v.transcript)
	return snap
}

func statusText(s Status, speaking, listening bool, errText string) string {
	switch s {
	case StatusConnecting:
		return "Connecting to Regulation Buddy..."
	case StatusConnected:
		if speaking {
			return "Regulation Buddy is speaking..."
		}
		if listening {
			return "Listening..."
		}
		return "Connected - You can talk now!"
	case StatusDisconnected:
		return "Disconnected"
	case StatusError:
		if errText != "" {
			return errText
		}
		return "Connection error"
	default:
		return "Starting..."
	}
}

func indicator(s Status, speaking, listening bool) Indicator {
	if s != StatusConnected {
		return IndicatorOffline
	}
	switch {
	case speaking:
		return IndicatorSpeaking
	case listening:
		return IndicatorListening
	default:
		return IndicatorIdle
	}
}

func userFacingError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrCredentialsMissing):
		return CredentialsErrorText
	case errors.Is(err, ErrMicrophoneDenied):
		return "Microphone access is needed to talk. Please allow it and try again."
	case errors.Is(err, domain.ErrNetwork):
		return "Connection failed. Please try again."
	default:
		var initErr *InitializationError
		if errors.As(err, &initErr) {
			return "Failed to start voice chat"
		}
		return "Connection error"
	}
}
