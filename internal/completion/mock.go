package completion

import (
	"context"
	"strings"
)

// Mock returns canned replies keyed on the last user turn. It lets the
// service run without vendor keys.
type Mock struct{}

// NewMock creates a Mock.
func NewMock() *Mock { return &Mock{} }

// Complete implements Client.
func (Mock) Complete(_ context.Context, _ string, turns []Turn) (string, error) {
	last := ""
	if len(turns) > 0 {
		last = strings.ToLower(turns[len(turns)-1].Content)
	}
	switch {
	case strings.Contains(last, "angry"), strings.Contains(last, "anxious"), strings.Contains(last, "scared"):
		return "That sounds like a really big feeling, and it's okay to feel that way. Would you like to try breathing together?", nil
	case strings.Contains(last, "tired"), strings.Contains(last, "sad"), strings.Contains(last, "restless"):
		return "Thank you for telling me how you feel. Would you like to try a little movement together?", nil
	case strings.Contains(last, "can't"), strings.Contains(last, "bad at"):
		return "You are doing your best, and that matters. Would you like to try an affirmation together?", nil
	default:
		return "Thanks for sharing that with me. Can you tell me a bit more about how you're feeling?", nil
	}
}
