package voice

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewStatusText(t *testing.T) {
	tests := []struct {
		name  string
		apply func(v *View)
		want  string
		ind   Indicator
	}{
		{"connecting", func(v *View) { v.SetStatus(StatusConnecting, nil) }, "Connecting to Regulation Buddy...", IndicatorOffline},
		{"connected idle", func(v *View) { v.SetStatus(StatusConnected, nil) }, "Connected - You can talk now!", IndicatorIdle},
		{"speaking", func(v *View) {
			v.SetStatus(StatusConnected, nil)
			v.SetAgentSpeaking(true)
		}, "Regulation Buddy is speaking...", IndicatorSpeaking},
		{"listening", func(v *View) {
			v.SetStatus(StatusConnected, nil)
			v.SetMicrophoneActive(true)
		}, "Listening...", IndicatorListening},
		{"disconnected", func(v *View) { v.SetStatus(StatusDisconnected, nil) }, "Disconnected", IndicatorOffline},
		{"credentials", func(v *View) {
			v.SetStatus(StatusError, fmt.Errorf("obtain: %w", domain.ErrCredentialsMissing))
		}, CredentialsErrorText, IndicatorOffline},
		{"vendor error hidden", func(v *View) {
			v.SetStatus(StatusError, errors.New(`{"code":"invalid_value"}`))
		}, "Connection error", IndicatorOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &View{}
			tt.apply(v)
			snap := v.Snapshot()
			assert.Equal(t, tt.want, snap.StatusText)
			assert.Equal(t, tt.ind, snap.Indicator)
		})
	}
}

func TestViewBindAndOnChange(t *testing.T) {
	var got []Snapshot
	v := &View{OnChange: func(s Snapshot) { got = append(got, s) }}
	cfg := Config{}
	v.Bind(&cfg)

	cfg.OnStatusChange(StatusConnected, nil)
	cfg.OnMessage(TranscriptLine{Role: RoleAgent, Text: "Hi!"})
	cfg.OnMicrophoneActive(true)

	require.Len(t, got, 3)
	last := got[2]
	assert.Equal(t, "connected", last.Status)
	assert.True(t, last.MicrophoneActive)
	assert.Equal(t, []TranscriptLine{{Role: RoleAgent, Text: "Hi!"}}, last.Transcript)

	// Snapshots do not alias view state.
	got[2].Transcript[0].Text = "changed"
	assert.Equal(t, "Hi!", v.Snapshot().Transcript[0].Text)
}

func TestPersona(t *testing.T) {
	assert.NotContains(t, PersonaPrompt(""), "currently feeling")
	assert.Contains(t, PersonaPrompt(domain.MoodSad), "\n\nThe child is currently feeling: sad")

	assert.Equal(t,
		"Hi there! I heard you're feeling angry today. That's totally okay - all feelings are welcome here. Want to tell me more about it?",
		FirstMessage(domain.MoodAngry))
	assert.Contains(t, FirstMessage(""), "I'm your Regulation Buddy")
}
