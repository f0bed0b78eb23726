// Package diary assembles finished sessions into diary entries and persists
// them, together with genre preferences and the shared-music list.
package diary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
	"github.com/zhouzirui/mood-diary/backend/internal/storage"
)

var (
	ErrSummaryRequired    = errors.New("summary is required before this step")
	ErrMusicPending       = errors.New("music is not ready yet")
	ErrMusicFailed        = errors.New("music generation failed")
	ErrEntryNotFound      = errors.New("diary entry not found")
	ErrNoTrack            = errors.New("diary entry has no playable track")
	ErrTranscriptTooShort = errors.New("at least two messages are required to summarize")
)

// Sessions is the part of the chat service the diary needs. *chat.Service implements it.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	Update(ctx context.Context, sessionID string, fn func(*chat.Session) error) (chat.Session, error)
}

// TaskSource looks up music tasks by id. *music.Requestor implements it.
type TaskSource interface {
	Get(taskID string) (music.Task, error)
}

// SaveRequest carries what the user adds at save time.
type SaveRequest struct {
	CustomEmotion string `json:"customEmotion"`
}

// Service owns the persisted collections. Every mutation is a whole-collection
// read-modify-write serialized by mu.
type Service struct {
	mu       sync.Mutex
	store    storage.Store
	sessions Sessions
	tasks    TaskSource
	now      func() time.Time
}

// NewService creates the diary store.
func NewService(store storage.Store, sessions Sessions, tasks TaskSource) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		tasks:    tasks,
		now:      time.Now,
	}
}

// Save turns the session into an entry, prepends it and resets the session.
// A failed track sends the session back to the summary step without saving.
func (s *Service) Save(ctx context.Context, sessionID string, req SaveRequest) (diary.Entry, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return diary.Entry{}, err
	}
	if session.Summary == nil {
		return diary.Entry{}, ErrSummaryRequired
	}
	if session.MusicTaskID == "" || s.tasks == nil {
		return diary.Entry{}, ErrMusicPending
	}

	task, err := s.tasks.Get(session.MusicTaskID)
	if err != nil {
		return diary.Entry{}, fmt.Errorf("%w: %v", ErrMusicPending, err)
	}
	switch task.Status {
	case music.StatusCompleted:
	case music.StatusFailed:
		if _, err := s.sessions.Update(ctx, sessionID, func(sess *chat.Session) error {
			sess.MusicTaskID = ""
			sess.Stage = chat.StageSummarized
			return nil
		}); err != nil {
			return diary.Entry{}, err
		}
		if task.Error != "" {
			return diary.Entry{}, fmt.Errorf("%w: %s", ErrMusicFailed, task.Error)
		}
		return diary.Entry{}, ErrMusicFailed
	default:
		return diary.Entry{}, ErrMusicPending
	}

	// Claim the session and reset it in one step so a concurrent save of the
	// same session finds nothing left to save.
	var claimed chat.Session
	if _, err := s.sessions.Update(ctx, sessionID, func(sess *chat.Session) error {
		if sess.Summary == nil {
			return ErrSummaryRequired
		}
		if sess.MusicTaskID != task.TaskID {
			return ErrMusicPending
		}
		claimed = sess.Clone()
		sess.Reset()
		return nil
	}); err != nil {
		return diary.Entry{}, err
	}

	entry := buildEntry(claimed, task, strings.TrimSpace(req.CustomEmotion), s.now())

	s.mu.Lock()
	entries, err := s.loadEntries(ctx, storage.KeyDiaryEntries)
	if err == nil {
		entries = append([]diary.Entry{entry}, entries...)
		err = s.store.Put(ctx, storage.KeyDiaryEntries, entries)
	}
	s.mu.Unlock()
	if err != nil {
		if _, restoreErr := s.sessions.Update(ctx, sessionID, func(sess *chat.Session) error {
			*sess = claimed
			return nil
		}); restoreErr != nil {
			log.Error("failed to restore session after save error", "session", sessionID, "err", restoreErr)
		}
		return diary.Entry{}, fmt.Errorf("persist diary entry: %w", err)
	}

	log.Info("diary entry saved", "entry", entry.ID, "session", sessionID, "task", task.TaskID, "fallback", task.Fallback)
	return entry, nil
}

func buildEntry(session chat.Session, task music.Task, customEmotion string, now time.Time) diary.Entry {
	summary := session.Summary.Clone()

	messages := make([]diary.EntryMessage, 0, len(session.Messages))
	for _, m := range session.Messages {
		messages = append(messages, diary.EntryMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	return diary.Entry{
		ID:                  uuid.NewString(),
		Date:                now.Format("2006-01-02"),
		Time:                now.Format("15:04"),
		Mood:                session.Mood,
		Summary:             summary.Summary,
		Keywords:            summary.Keywords,
		SelectedEmotions:    append([]string{}, session.SelectedEmotions...),
		CustomEmotion:       customEmotion,
		RecommendedEmotions: summary.RecommendedEmotions,
		ActionItems:         summary.ActionItems,
		MusicTasks:          []music.Task{task},
		ChatMessages:        messages,
		CreatedAt:           now.UTC(),
	}
}

func (s *Service) loadEntries(ctx context.Context, key string) ([]diary.Entry, error) {
	var entries []diary.Entry
	if _, err := s.store.Get(ctx, key, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []diary.Entry{}
	}
	return entries, nil
}

// List returns saved entries, newest first.
func (s *Service) List(ctx context.Context) ([]diary.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEntries(ctx, storage.KeyDiaryEntries)
}

// Get returns one saved entry.
func (s *Service) Get(ctx context.Context, id string) (diary.Entry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return diary.Entry{}, err
	}
	if i := indexOf(entries, id); i >= 0 {
		return entries[i], nil
	}
	return diary.Entry{}, ErrEntryNotFound
}

// ListTrash returns trashed entries, most recently trashed first.
func (s *Service) ListTrash(ctx context.Context) ([]diary.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEntries(ctx, storage.KeyTrashEntries)
}

// Trash moves an entry from the diary list to the trash list.
func (s *Service) Trash(ctx context.Context, id string) (diary.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.move(ctx, id, storage.KeyDiaryEntries, storage.KeyTrashEntries, func(e *diary.Entry) {
		at := s.now().UTC()
		e.DeletedAt = &at
	})
	if err != nil {
		return diary.Entry{}, err
	}
	log.Info("diary entry trashed", "entry", id)
	return entry, nil
}

// Restore moves a trashed entry back into the diary list at its original position by creation time.
func (s *Service) Restore(ctx context.Context, id string) (diary.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.move(ctx, id, storage.KeyTrashEntries, storage.KeyDiaryEntries, func(e *diary.Entry) {
		e.DeletedAt = nil
	})
	if err != nil {
		return diary.Entry{}, err
	}
	log.Info("diary entry restored", "entry", id)
	return entry, nil
}

// move migrates one entry between lists; the target list is kept newest first.
// Callers hold mu.
func (s *Service) move(ctx context.Context, id, fromKey, toKey string, touch func(*diary.Entry)) (diary.Entry, error) {
	from, err := s.loadEntries(ctx, fromKey)
	if err != nil {
		return diary.Entry{}, err
	}
	i := indexOf(from, id)
	if i < 0 {
		return diary.Entry{}, ErrEntryNotFound
	}
	to, err := s.loadEntries(ctx, toKey)
	if err != nil {
		return diary.Entry{}, err
	}

	entry := from[i]
	touch(&entry)
	from = append(from[:i], from[i+1:]...)
	to = append([]diary.Entry{entry}, to...)
	if toKey == storage.KeyDiaryEntries {
		sort.SliceStable(to, func(a, b int) bool { return to[a].CreatedAt.After(to[b].CreatedAt) })
	}

	if err := s.store.Put(ctx, toKey, to); err != nil {
		return diary.Entry{}, err
	}
	if err := s.store.Put(ctx, fromKey, from); err != nil {
		return diary.Entry{}, err
	}
	return entry, nil
}

// PurgeTrash permanently removes every trashed entry and reports how many were dropped.
func (s *Service) PurgeTrash(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trash, err := s.loadEntries(ctx, storage.KeyTrashEntries)
	if err != nil {
		return 0, err
	}
	if err := s.store.Delete(ctx, storage.KeyTrashEntries); err != nil {
		return 0, err
	}
	log.Info("trash purged", "count", len(trash))
	return len(trash), nil
}

// Preferences returns the stored music genre preferences.
func (s *Service) Preferences(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := []string{}
	if _, err := s.store.Get(ctx, storage.KeyMusicPreferences, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetPreferences replaces the genre list. Blank and repeated genres are dropped.
func (s *Service) SetPreferences(ctx context.Context, genres []string) ([]string, error) {
	seen := make(map[string]struct{}, len(genres))
	clean := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		clean = append(clean, g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(ctx, storage.KeyMusicPreferences, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// PublicMusic returns the shared tracks, newest first.
func (s *Service) PublicMusic(ctx context.Context) ([]diary.PublicMusic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPublic(ctx)
}

func (s *Service) loadPublic(ctx context.Context) ([]diary.PublicMusic, error) {
	list := []diary.PublicMusic{}
	if _, err := s.store.Get(ctx, storage.KeyPublicMusic, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Share publishes the track of an entry. Sharing an entry again returns the existing record.
func (s *Service) Share(ctx context.Context, entryID string) (diary.PublicMusic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadEntries(ctx, storage.KeyDiaryEntries)
	if err != nil {
		return diary.PublicMusic{}, err
	}
	i := indexOf(entries, entryID)
	if i < 0 {
		return diary.PublicMusic{}, ErrEntryNotFound
	}
	entry := entries[i]
	track, ok := entry.Track()
	if !ok || track.MusicURL == "" {
		return diary.PublicMusic{}, ErrNoTrack
	}

	list, err := s.loadPublic(ctx)
	if err != nil {
		return diary.PublicMusic{}, err
	}
	for _, shared := range list {
		if shared.EntryID == entryID {
			return shared, nil
		}
	}

	shared := diary.PublicMusic{
		ID:        uuid.NewString(),
		EntryID:   entry.ID,
		Title:     track.Title,
		Style:     track.Style,
		Mood:      entry.Mood,
		MusicURL:  track.MusicURL,
		StreamURL: track.StreamURL,
		SharedAt:  s.now().UTC(),
	}
	list = append([]diary.PublicMusic{shared}, list...)
	if err := s.store.Put(ctx, storage.KeyPublicMusic, list); err != nil {
		return diary.PublicMusic{}, err
	}
	log.Info("track shared", "entry", entryID)
	return shared, nil
}

func indexOf(entries []diary.Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
