package chat

import (
	"strings"

	"github.com/ashureev/regbuddy/internal/domain"
)

// SuggestionReason is attached to every keyword-derived suggestion.
const SuggestionReason = "Suggested by AI"

// toolKeywords is checked in order; the first category with a match wins.
var toolKeywords = []struct {
	tool     domain.Tool
	keywords []string
}{
	{domain.ToolBreathing, []string{"breathing", "breathe"}},
	{domain.ToolMovement, []string{"movement", "move", "stretch"}},
	{domain.ToolAffirmation, []string{"affirmation", "remind yourself"}},
}

// DetectToolSuggestion scans reply text for exercise keywords,
// case-insensitively. It returns nil when nothing matches.
func DetectToolSuggestion(text string) *domain.ToolSuggestion {
	lower := strings.ToLower(text)
	for _, category := range toolKeywords {
		for _, kw := range category.keywords {
			if strings.Contains(lower, kw) {
				return &domain.ToolSuggestion{Tool: category.tool, Reason: SuggestionReason}
			}
		}
	}
	return nil
}
