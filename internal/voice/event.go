package voice

// Event is a vendor event normalized for the reducer. The concrete types
// below are the only implementations.
type Event interface {
	EventType() string
}

// SessionCreated means the vendor channel is open and accepts configuration.
type SessionCreated struct{}

// SessionReady means the vendor applied the session configuration.
type SessionReady struct{}

// SpeechStarted means the local speaker started talking.
type SpeechStarted struct{}

// SpeechStopped means the local speaker stopped talking.
type SpeechStopped struct{}

// UserTranscript is a finished transcription of the local speaker.
type UserTranscript struct {
	Text string
}

// TranscriptDelta is a partial agent transcript for one response turn.
type TranscriptDelta struct {
	TurnID string
	Delta  string
}

// TranscriptDone ends an agent turn. Text may be empty, in which case the
// accumulated deltas are used.
type TranscriptDone struct {
	TurnID string
	Text   string
}

// AgentSpeechStarted means agent audio playback started.
type AgentSpeechStarted struct{}

// AgentAudio carries one chunk of agent audio.
type AgentAudio struct {
	Audio []byte
}

// AgentSpeechStopped means agent audio playback ended.
type AgentSpeechStopped struct{}

// VendorError is an error reported in-band by the vendor.
type VendorError struct {
	Message string
}

// TransportFailed means the underlying connection broke.
type TransportFailed struct {
	Err error
}

// Unknown wraps a vendor event type the reducer does not handle.
type Unknown struct {
	Type string
}

func (SessionCreated) EventType() string     { return "session_created" }
func (SessionReady) EventType() string       { return "session_ready" }
func (SpeechStarted) EventType() string      { return "speech_started" }
func (SpeechStopped) EventType() string      { return "speech_stopped" }
func (UserTranscript) EventType() string     { return "user_transcript" }
func (TranscriptDelta) EventType() string    { return "transcript_delta" }
func (TranscriptDone) EventType() string     { return "transcript_done" }
func (AgentSpeechStarted) EventType() string { return "agent_speech_started" }
func (AgentAudio) EventType() string         { return "agent_audio" }
func (AgentSpeechStopped) EventType() string { return "agent_speech_stopped" }
func (VendorError) EventType() string        { return "vendor_error" }
func (TransportFailed) EventType() string    { return "transport_failed" }
func (Unknown) EventType() string            { return "unknown" }
