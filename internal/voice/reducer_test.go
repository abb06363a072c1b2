package voice

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected() State {
	return State{Status: StatusConnected, Configured: true}
}

func TestReduceSpeechStartedForcesAgentSpeakingOff(t *testing.T) {
	pool := []Event{
		SessionCreated{}, SessionReady{}, SpeechStarted{}, SpeechStopped{},
		UserTranscript{Text: "hi"}, TranscriptDelta{TurnID: "r1", Delta: "he"},
		TranscriptDone{TurnID: "r1"}, AgentSpeechStarted{}, AgentAudio{Audio: []byte{1}},
		AgentSpeechStopped{}, Unknown{Type: "rate_limits.updated"},
	}
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 200; run++ {
		s := State{Status: StatusConnecting}
		for step := 0; step < 50; step++ {
			ev := pool[rng.Intn(len(pool))]
			s, _ = Reduce(s, ev)
			if _, ok := ev.(SpeechStarted); ok {
				require.Equal(t, ActivityListening, s.Activity)
				require.False(t, s.Activity.AgentSpeaking())
			}
			require.False(t, s.Activity.AgentSpeaking() && s.Activity.MicrophoneActive())
		}
	}
}

func TestReduceConfiguresOnce(t *testing.T) {
	s := State{Status: StatusConnecting}
	s, effects := Reduce(s, SessionCreated{})
	assert.Equal(t, []Effect{ConfigureSession{}}, effects)

	s, effects = Reduce(s, SessionCreated{})
	assert.Empty(t, effects)

	s, effects = Reduce(s, SessionReady{})
	assert.Equal(t, StatusConnected, s.Status)
	assert.Equal(t, []Effect{StatusChanged{Status: StatusConnected}}, effects)
}

func TestReduceTranscriptBuffer(t *testing.T) {
	s := connected()
	s, _ = Reduce(s, TranscriptDelta{TurnID: "r1", Delta: "Hello "})
	s, _ = Reduce(s, TranscriptDelta{TurnID: "r1", Delta: "friend"})
	assert.Equal(t, "Hello friend", s.Partial)

	s, effects := Reduce(s, TranscriptDone{TurnID: "r1"})
	assert.Equal(t, []Effect{LineAppended{Line: TranscriptLine{Role: RoleAgent, Text: "Hello friend"}}}, effects)
	assert.Empty(t, s.Partial)
	assert.Empty(t, s.TurnID)

	// Vendor text wins over the buffer.
	s, _ = Reduce(s, TranscriptDelta{TurnID: "r2", Delta: "partial"})
	s, effects = Reduce(s, TranscriptDone{TurnID: "r2", Text: "Final text"})
	assert.Equal(t, []Effect{LineAppended{Line: TranscriptLine{Role: RoleAgent, Text: "Final text"}}}, effects)

	// A new turn discards a stale buffer.
	s, _ = Reduce(s, TranscriptDelta{TurnID: "r3", Delta: "old"})
	s, _ = Reduce(s, TranscriptDelta{TurnID: "r4", Delta: "new"})
	assert.Equal(t, "new", s.Partial)

	// Empty results emit nothing.
	_, effects = Reduce(connected(), TranscriptDone{})
	assert.Empty(t, effects)
}

func TestReduceAgentStopResetsBuffer(t *testing.T) {
	s := connected()
	s, _ = Reduce(s, AgentSpeechStarted{})
	s, _ = Reduce(s, TranscriptDelta{TurnID: "r1", Delta: "abc"})
	s, effects := Reduce(s, AgentSpeechStopped{})
	assert.Equal(t, ActivityIdle, s.Activity)
	assert.Empty(t, s.Partial)
	assert.Equal(t, []Effect{ActivityChanged{From: ActivitySpeaking, To: ActivityIdle}}, effects)
}

func TestReduceAgentAudioDoesNotOverrideListening(t *testing.T) {
	s := connected()
	s, _ = Reduce(s, SpeechStarted{})
	s, effects := Reduce(s, AgentAudio{Audio: []byte{1, 2}})
	assert.Equal(t, ActivityListening, s.Activity)
	assert.Equal(t, []Effect{PlayAudio{Audio: []byte{1, 2}}}, effects)

	s, _ = Reduce(s, SpeechStopped{})
	s, effects = Reduce(s, AgentAudio{Audio: []byte{3}})
	assert.Equal(t, ActivitySpeaking, s.Activity)
	assert.Len(t, effects, 2)
}

func TestReduceUserTranscript(t *testing.T) {
	_, effects := Reduce(connected(), UserTranscript{Text: "  I'm sad "})
	assert.Equal(t, []Effect{LineAppended{Line: TranscriptLine{Role: RoleUser, Text: "I'm sad"}}}, effects)

	_, effects = Reduce(connected(), UserTranscript{Text: "   "})
	assert.Empty(t, effects)
}

func TestReduceErrorIsTerminal(t *testing.T) {
	s := connected()
	s, _ = Reduce(s, AgentSpeechStarted{})
	s, effects := Reduce(s, VendorError{Message: "bad request"})
	require.Equal(t, StatusError, s.Status)
	require.Len(t, effects, 2)
	assert.Equal(t, ActivityChanged{From: ActivitySpeaking, To: ActivityIdle}, effects[0])
	status := effects[1].(StatusChanged)
	assert.EqualError(t, status.Err, "bad request")

	s, effects = Reduce(s, SessionReady{})
	assert.Equal(t, StatusError, s.Status)
	assert.Empty(t, effects)

	_, effects = Reduce(s, TransportFailed{Err: errors.New("eof")})
	assert.Equal(t, []Effect{Teardown{}}, effects)
}

func TestReduceTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	s, effects := Reduce(connected(), TransportFailed{Err: boom})
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, []Effect{StatusChanged{Status: StatusError, Err: boom}, Teardown{}}, effects)
}

func TestReduceUnknownIsLoggedOnly(t *testing.T) {
	before := connected()
	after, effects := Reduce(before, Unknown{Type: "rate_limits.updated"})
	assert.Equal(t, before, after)
	assert.Equal(t, []Effect{LogUnknown{Type: "rate_limits.updated"}}, effects)
}

func TestReduceDisconnectedIgnoresEvents(t *testing.T) {
	s, effects := Reduce(State{}, SessionReady{})
	assert.Equal(t, StatusDisconnected, s.Status)
	assert.Empty(t, effects)
}
