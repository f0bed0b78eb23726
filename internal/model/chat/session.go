package chat

import (
	"time"

	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
)

// Stage tracks where a diary session is in the mood → chat → summary → music → save flow.
type Stage string

const (
	StageMoodSelect Stage = "mood_select"
	StageChatting   Stage = "chatting"
	StageSummarized Stage = "summarized"
	StageGenerating Stage = "generating"
	StageReady      Stage = "ready"
)

// MaxSelectedEmotions caps how many emotions a user can pin to one entry.
const MaxSelectedEmotions = 2

// Session captures the single-user state of one diary session.
type Session struct {
	ID               string             `json:"id"`
	PersonaID        string             `json:"personaId"`
	Mood             diary.Mood         `json:"mood,omitempty"`
	Stage            Stage              `json:"stage"`
	TurnCount        int                `json:"turnCount"`
	Messages         []Message          `json:"messages"`
	SelectedEmotions []string           `json:"selectedEmotions"`
	Summary          *diary.SummaryData `json:"summary,omitempty"`
	MusicTaskID      string             `json:"musicTaskId,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// NewSession returns a session in its initial state.
func NewSession(id, personaID string, now time.Time) Session {
	s := Session{ID: id, PersonaID: personaID, CreatedAt: now}
	s.Reset()
	return s
}

// Reset restores every session-scoped field to its initial value. The identity
// of the session (ID, persona, creation time) is kept.
func (s *Session) Reset() {
	s.Mood = ""
	s.Stage = StageMoodSelect
	s.TurnCount = 0
	s.Messages = []Message{}
	s.SelectedEmotions = []string{}
	s.Summary = nil
	s.MusicTaskID = ""
}

// SelectEmotion pins an emotion. Once two are selected, a new selection evicts
// the oldest one. Selecting an already pinned emotion changes nothing.
func (s *Session) SelectEmotion(emotion string) {
	for _, existing := range s.SelectedEmotions {
		if existing == emotion {
			return
		}
	}
	selected := append(s.SelectedEmotions, emotion)
	if len(selected) > MaxSelectedEmotions {
		selected = selected[len(selected)-MaxSelectedEmotions:]
	}
	s.SelectedEmotions = append([]string(nil), selected...)
}

// Clone returns a deep copy that is safe to hand out of a locked section.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message{}, s.Messages...)
	out.SelectedEmotions = append([]string{}, s.SelectedEmotions...)
	if s.Summary != nil {
		summary := s.Summary.Clone()
		out.Summary = &summary
	}
	return out
}
