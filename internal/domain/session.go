package domain

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mood is the check-in mood a chat session starts with.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodSad     Mood = "sad"
	MoodAngry   Mood = "angry"
	MoodWorried Mood = "worried"
	MoodCalm    Mood = "calm"
	MoodExcited Mood = "excited"
	MoodScared  Mood = "scared"
)

// Moods lists every selectable mood in display order.
var Moods = []Mood{MoodHappy, MoodSad, MoodAngry, MoodWorried, MoodCalm, MoodExcited, MoodScared}

var titleCaser = cases.Title(language.English)

// Valid reports whether m is one of the selectable moods.
func (m Mood) Valid() bool {
	for _, known := range Moods {
		if m == known {
			return true
		}
	}
	return false
}

// Label returns the display label, e.g. "Worried".
func (m Mood) Label() string {
	return titleCaser.String(string(m))
}

// Session is one mood check-in with its chat and optional exercise.
type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Mood            Mood      `json:"mood,omitempty"`
	ToolUsed        Tool      `json:"tool_used,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	Completed       bool      `json:"completed"`
	CreatedAt       time.Time `json:"created_at"`
}
