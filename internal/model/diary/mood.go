package diary

import (
	"fmt"
	"strings"
)

// Mood is the user's self-reported state picked at the start of a session.
type Mood string

const (
	MoodGood   Mood = "good"
	MoodNormal Mood = "normal"
	MoodBad    Mood = "bad"
)

// ParseMood validates a raw mood value.
func ParseMood(raw string) (Mood, error) {
	switch m := Mood(strings.ToLower(strings.TrimSpace(raw))); m {
	case MoodGood, MoodNormal, MoodBad:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mood %q", raw)
	}
}

// Label returns the Korean word used for the mood in prompts.
func (m Mood) Label() string {
	switch m {
	case MoodGood:
		return "좋음"
	case MoodNormal:
		return "보통"
	case MoodBad:
		return "나쁨"
	default:
		return "알 수 없음"
	}
}
