package dispatch

import "strings"

var lowComplexityKeywords = []string{
	"typo", "rename", "minor", "small", "css", "style", "copy", "wording", "change color",
}

var highComplexityKeywords = []string{
	"architect", "refactor", "redesign", "system-wide", "migration",
	"database schema", "security", "performance", "infrastructure", "multi-service",
}

// SelectLevel implements the level-selection fallback (spec §4.5): a
// keyword heuristic over title+description, used only when the caller
// doesn't supply a level. Roles with one level always return it; roles
// with exactly two levels collapse the heuristic to a complex/not-complex
// binary between the lowest and highest level.
func SelectLevel(levels []string, defaultLevel, title, description string) string {
	if len(levels) == 0 {
		return defaultLevel
	}
	if len(levels) == 1 {
		return levels[0]
	}

	text := strings.ToLower(title + " " + description)
	wordCount := len(strings.Fields(text))

	lowest, highest := levels[0], levels[len(levels)-1]

	isLow := containsAny(text, lowComplexityKeywords) && wordCount < 100
	isHigh := containsAny(text, highComplexityKeywords) || wordCount > 500

	switch {
	case len(levels) == 2:
		if isHigh {
			return highest
		}
		return lowest
	case isLow:
		return lowest
	case isHigh:
		return highest
	default:
		return defaultLevel
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
