package diary

import (
	"time"

	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
)

// Entry is the persisted record of one completed chat → summary → music session.
type Entry struct {
	ID                  string         `json:"id"`
	Date                string         `json:"date"`
	Time                string         `json:"time"`
	Mood                Mood           `json:"mood"`
	Summary             string         `json:"summary"`
	Keywords            []string       `json:"keywords"`
	SelectedEmotions    []string       `json:"selectedEmotions"`
	CustomEmotion       string         `json:"customEmotion,omitempty"`
	RecommendedEmotions []string       `json:"recommendedEmotions,omitempty"`
	ActionItems         []string       `json:"actionItems,omitempty"`
	MusicTasks          []music.Task   `json:"musicTasks"`
	ChatMessages        []EntryMessage `json:"chatMessages"`
	CreatedAt           time.Time      `json:"createdAt"`
	DeletedAt           *time.Time     `json:"deletedAt,omitempty"`
}

// EntryMessage mirrors a transcript turn inside a saved entry. It is kept
// separate from the live chat model so the persisted shape stays stable.
type EntryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Track returns the music task of the entry, if any.
func (e Entry) Track() (music.Task, bool) {
	if len(e.MusicTasks) == 0 {
		return music.Task{}, false
	}
	return e.MusicTasks[0], true
}

// PublicMusic is a track a user chose to share on the public list.
type PublicMusic struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entryId"`
	Title     string    `json:"title"`
	Style     string    `json:"style"`
	Mood      Mood      `json:"mood"`
	MusicURL  string    `json:"musicUrl"`
	StreamURL string    `json:"streamUrl,omitempty"`
	SharedAt  time.Time `json:"sharedAt"`
}
