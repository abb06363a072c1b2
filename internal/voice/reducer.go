package voice

import (
	"errors"
	"strings"
)

// Status is the connection status of a voice session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Activity says who is talking. Speaking and listening are exclusive by
// construction.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityListening
	ActivitySpeaking
)

func (a Activity) String() string {
	switch a {
	case ActivityListening:
		return "listening"
	case ActivitySpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

// AgentSpeaking reports whether the agent is talking.
func (a Activity) AgentSpeaking() bool { return a == ActivitySpeaking }

// MicrophoneActive reports whether the local speaker is talking.
func (a Activity) MicrophoneActive() bool { return a == ActivityListening }

// Role is the author of a transcript line.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TranscriptLine is one finished utterance. Lines are append-only.
type TranscriptLine struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// State is the reducer state of one session.
type State struct {
	Status     Status
	Activity   Activity
	Configured bool
	TurnID     string
	Partial    string
}

// Effect is an instruction produced by Reduce for the controller to carry out.
type Effect interface {
	effect()
}

// StatusChanged reports a new connection status.
type StatusChanged struct {
	Status Status
	Err    error
}

// ActivityChanged reports a new activity.
type ActivityChanged struct {
	From, To Activity
}

// LineAppended reports a finished transcript line.
type LineAppended struct {
	Line TranscriptLine
}

// ConfigureSession asks the controller to send the session configuration.
type ConfigureSession struct{}

// PlayAudio forwards agent audio to the listener.
type PlayAudio struct {
	Audio []byte
}

// LogUnknown asks for an unhandled vendor event to be logged.
type LogUnknown struct {
	Type string
}

// Teardown asks the controller to release the session.
type Teardown struct{}

func (StatusChanged) effect()    {}
func (ActivityChanged) effect()  {}
func (LineAppended) effect()     {}
func (ConfigureSession) effect() {}
func (PlayAudio) effect()        {}
func (LogUnknown) effect()       {}
func (Teardown) effect()         {}

// Reduce applies ev to s. It is pure: every side effect is returned as an
// Effect. A disconnected session ignores all events. An errored session
// only reacts to transport failure.
func Reduce(s State, ev Event) (State, []Effect) {
	if s.Status == StatusDisconnected {
		return s, nil
	}

	if s.Status == StatusError {
		switch e := ev.(type) {
		case TransportFailed:
			return s, []Effect{Teardown{}}
		case Unknown:
			return s, []Effect{LogUnknown{Type: e.Type}}
		}
		return s, nil
	}

	var effects []Effect
	switch e := ev.(type) {
	case SessionCreated:
		if !s.Configured {
			s.Configured = true
			effects = append(effects, ConfigureSession{})
		}

	case SessionReady:
		if s.Status != StatusConnected {
			s.Status = StatusConnected
			effects = append(effects, StatusChanged{Status: StatusConnected})
		}

	case SpeechStarted:
		s, effects = setActivity(s, effects, ActivityListening)

	case SpeechStopped:
		if s.Activity == ActivityListening {
			s, effects = setActivity(s, effects, ActivityIdle)
		}

	case UserTranscript:
		if text := strings.TrimSpace(e.Text); text != "" {
			effects = append(effects, LineAppended{Line: TranscriptLine{Role: RoleUser, Text: text}})
		}

	case TranscriptDelta:
		if e.TurnID != s.TurnID {
			s.TurnID = e.TurnID
			s.Partial = ""
		}
		s.Partial += e.Delta

	case TranscriptDone:
		text := e.Text
		if text == "" && (e.TurnID == "" || e.TurnID == s.TurnID) {
			text = s.Partial
		}
		if text = strings.TrimSpace(text); text != "" {
			effects = append(effects, LineAppended{Line: TranscriptLine{Role: RoleAgent, Text: text}})
		}
		s.TurnID, s.Partial = "", ""

	case AgentSpeechStarted:
		s, effects = setActivity(s, effects, ActivitySpeaking)

	case AgentAudio:
		if len(e.Audio) > 0 {
			effects = append(effects, PlayAudio{Audio: e.Audio})
		}
		if s.Activity == ActivityIdle {
			s, effects = setActivity(s, effects, ActivitySpeaking)
		}

	case AgentSpeechStopped:
		if s.Activity == ActivitySpeaking {
			s, effects = setActivity(s, effects, ActivityIdle)
		}
		s.TurnID, s.Partial = "", ""

	case VendorError:
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = "voice service error"
		}
		s, effects = setActivity(s, effects, ActivityIdle)
		s.Status = StatusError
		effects = append(effects, StatusChanged{Status: StatusError, Err: errors.New(msg)})

	case TransportFailed:
		err := e.Err
		if err == nil {
			err = errors.New("connection lost")
		}
		s, effects = setActivity(s, effects, ActivityIdle)
		s.Status = StatusError
		effects = append(effects, StatusChanged{Status: StatusError, Err: err}, Teardown{})

	case Unknown:
		effects = append(effects, LogUnknown{Type: e.Type})

	default:
		effects = append(effects, LogUnknown{Type: ev.EventType()})
	}

	return s, effects
}

func setActivity(s State, effects []Effect, to Activity) (State, []Effect) {
	if s.Activity == to {
		return s, effects
	}
	effects = append(effects, ActivityChanged{From: s.Activity, To: to})
	s.Activity = to
	return s, effects
}
