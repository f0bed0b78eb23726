package diary_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
	chatsvc "github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	diarysvc "github.com/zhouzirui/mood-diary/backend/internal/service/diary"
	musicsvc "github.com/zhouzirui/mood-diary/backend/internal/service/music"
	"github.com/zhouzirui/mood-diary/backend/internal/service/summary"
	"github.com/zhouzirui/mood-diary/backend/internal/storage"
)

type fakeRequester struct {
	tasks    map[string]music.Task
	requests []musicsvc.GenerateRequest
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{tasks: make(map[string]music.Task)}
}

func (f *fakeRequester) Get(taskID string) (music.Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return music.Task{}, musicsvc.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeRequester) Request(_ context.Context, req musicsvc.GenerateRequest) (music.Task, error) {
	f.requests = append(f.requests, req)
	now := time.Now().UTC()
	t := music.Task{
		TaskID:    fmt.Sprintf("task-%d", len(f.requests)),
		Status:    music.StatusPending,
		Prompt:    req.Prompt,
		Style:     req.Style,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.tasks[t.TaskID] = t
	return t, nil
}

func (f *fakeRequester) complete(taskID string) {
	t := f.tasks[taskID]
	_ = t.Complete("https://cdn/track.mp3", "https://cdn/track.stream", "", time.Now().UTC())
	f.tasks[taskID] = t
}

func (f *fakeRequester) fail(taskID, reason string) {
	t := f.tasks[taskID]
	_ = t.Fail(reason, time.Now().UTC())
	f.tasks[taskID] = t
}

type fixture struct {
	chat     *chatsvc.Service
	diary    *diarysvc.Service
	workflow *diarysvc.Workflow
	music    *fakeRequester
	store    storage.Store
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	chats := chatsvc.NewService(persona.NewMemoryStore(persona.Seed()))
	requester := newFakeRequester()
	diaries := diarysvc.NewService(store, chats, requester)
	return &fixture{
		chat:     chats,
		diary:    diaries,
		workflow: diarysvc.NewWorkflow(chats, summary.NewService(nil), requester, diaries),
		music:    requester,
		store:    store,
	}
}

// chatted returns a session with a mood, two turns and one pinned emotion.
func (f *fixture) chatted(t *testing.T) chat.Session {
	t.Helper()
	ctx := context.Background()
	session, err := f.chat.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = f.chat.SelectMood(ctx, session.ID, diary.MoodGood)
	require.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, session.ID, "오늘 친구랑 맛있는 걸 먹었어")
	require.NoError(t, err)
	_, err = f.chat.SelectEmotion(ctx, session.ID, "기쁨")
	require.NoError(t, err)
	got, err := f.chat.GetSession(ctx, session.ID)
	require.NoError(t, err)
	return got
}

// ready returns a session whose music task has completed.
func (f *fixture) ready(t *testing.T) (chat.Session, music.Task) {
	t.Helper()
	ctx := context.Background()
	session := f.chatted(t)
	_, err := f.workflow.Summarize(ctx, session.ID)
	require.NoError(t, err)
	task, err := f.workflow.RequestMusic(ctx, session.ID)
	require.NoError(t, err)
	f.music.complete(task.TaskID)
	return session, f.music.tasks[task.TaskID]
}

func TestSaveBuildsEntryAndResetsSession(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()
	session, task := f.ready(t)

	entry, err := f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{CustomEmotion: "  뿌듯함 "})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, diary.MoodGood, entry.Mood)
	assert.Equal(t, diary.DefaultSummary().Summary, entry.Summary)
	assert.Equal(t, []string{"기쁨"}, entry.SelectedEmotions)
	assert.Equal(t, "뿌듯함", entry.CustomEmotion)
	require.Len(t, entry.MusicTasks, 1)
	assert.Equal(t, task.TaskID, entry.MusicTasks[0].TaskID)
	assert.Len(t, entry.ChatMessages, 2)
	assert.Equal(t, "user", entry.ChatMessages[0].Role)

	got, err := f.chat.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Mood)
	assert.Empty(t, got.Messages)
	assert.Empty(t, got.SelectedEmotions)
	assert.Nil(t, got.Summary)
	assert.Empty(t, got.MusicTaskID)
	assert.Zero(t, got.TurnCount)
	assert.Equal(t, chat.StageMoodSelect, got.Stage)
}

func TestSavePrependsEntries(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()

	first, _ := f.ready(t)
	e1, err := f.diary.Save(ctx, first.ID, diarysvc.SaveRequest{})
	require.NoError(t, err)
	second, _ := f.ready(t)
	e2, err := f.diary.Save(ctx, second.ID, diarysvc.SaveRequest{})
	require.NoError(t, err)

	entries, err := f.diary.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e2.ID, entries[0].ID)
	assert.Equal(t, e1.ID, entries[1].ID)
}

func TestDiaryListRoundTripsThroughSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diary.db")
	store, err := storage.OpenSQLite(path)
	require.NoError(t, err)

	f := newFixture(t, store)
	ctx := context.Background()
	session, task := f.ready(t)
	entry, err := f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	require.NoError(t, err)

	before, err := f.diary.List(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := storage.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := diarysvc.NewService(reopened, f.chat, f.music).List(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, entry.ID, after[0].ID)
	assert.Equal(t, diary.MoodGood, after[0].Mood)
	assert.Equal(t, entry.Summary, after[0].Summary)
	assert.Equal(t, task.TaskID, after[0].MusicTasks[0].TaskID)

	wantJSON, _ := json.Marshal(before)
	gotJSON, _ := json.Marshal(after)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestSaveRequiresSummaryAndFinishedMusic(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()
	session := f.chatted(t)

	_, err := f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	assert.ErrorIs(t, err, diarysvc.ErrSummaryRequired)

	_, err = f.workflow.Summarize(ctx, session.ID)
	require.NoError(t, err)
	_, err = f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	assert.ErrorIs(t, err, diarysvc.ErrMusicPending)

	_, err = f.workflow.RequestMusic(ctx, session.ID)
	require.NoError(t, err)
	_, err = f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	assert.ErrorIs(t, err, diarysvc.ErrMusicPending)

	entries, _ := f.diary.List(ctx)
	assert.Empty(t, entries)
}

func TestSaveWithFailedMusicReturnsToSummary(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()
	session := f.chatted(t)
	_, err := f.workflow.Summarize(ctx, session.ID)
	require.NoError(t, err)
	task, err := f.workflow.RequestMusic(ctx, session.ID)
	require.NoError(t, err)
	f.music.fail(task.TaskID, "sensitive words")

	_, err = f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	require.ErrorIs(t, err, diarysvc.ErrMusicFailed)
	assert.Contains(t, err.Error(), "sensitive words")

	got, _ := f.chat.GetSession(ctx, session.ID)
	assert.Equal(t, chat.StageSummarized, got.Stage)
	assert.Empty(t, got.MusicTaskID)
	assert.NotNil(t, got.Summary)
	assert.Len(t, got.Messages, 2)

	entries, _ := f.diary.List(ctx)
	assert.Empty(t, entries)
}

func TestConcurrentSavesOfOneSessionSaveOnce(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()
	session, _ := f.ready(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
		}()
	}
	wg.Wait()

	saved := 0
	for _, err := range errs {
		if err == nil {
			saved++
		}
	}
	assert.Equal(t, 1, saved)

	entries, err := f.diary.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type failingPutStore struct {
	storage.Store
}

func (failingPutStore) Put(context.Context, string, any) error {
	return errors.New("disk full")
}

func TestSavePersistFailureKeepsSession(t *testing.T) {
	f := newFixture(t, failingPutStore{Store: storage.NewMemoryStore()})
	ctx := context.Background()
	session, task := f.ready(t)

	_, err := f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	require.Error(t, err)

	got, err := f.chat.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, task.TaskID, got.MusicTaskID)
	assert.Len(t, got.Messages, 2)
}

func TestTrashRestoreAndPurge(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		session, _ := f.ready(t)
		entry, err := f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
		time.Sleep(2 * time.Millisecond)
	}

	trashed, err := f.diary.Trash(ctx, ids[1])
	require.NoError(t, err)
	require.NotNil(t, trashed.DeletedAt)

	entries, _ := f.diary.List(ctx)
	assert.Len(t, entries, 2)
	trash, _ := f.diary.ListTrash(ctx)
	require.Len(t, trash, 1)
	assert.Equal(t, ids[1], trash[0].ID)

	_, err = f.diary.Get(ctx, ids[1])
	assert.ErrorIs(t, err, diarysvc.ErrEntryNotFound)

	restored, err := f.diary.Restore(ctx, ids[1])
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)

	entries, _ = f.diary.List(ctx)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{entries[0].ID, entries[1].ID, entries[2].ID})

	_, err = f.diary.Restore(ctx, ids[1])
	assert.ErrorIs(t, err, diarysvc.ErrEntryNotFound)

	_, err = f.diary.Trash(ctx, ids[0])
	require.NoError(t, err)
	n, err := f.diary.PurgeTrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	trash, _ = f.diary.ListTrash(ctx)
	assert.Empty(t, trash)
}

func TestPreferencesAreTrimmedAndDeduplicated(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()

	prefs, err := f.diary.Preferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, prefs)

	saved, err := f.diary.SetPreferences(ctx, []string{" jazz ", "Jazz", "", "lo-fi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jazz", "lo-fi"}, saved)

	prefs, err = f.diary.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jazz", "lo-fi"}, prefs)
}

func TestShareIsIdempotent(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()
	session, _ := f.ready(t)
	entry, err := f.diary.Save(ctx, session.ID, diarysvc.SaveRequest{})
	require.NoError(t, err)

	first, err := f.diary.Share(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/track.mp3", first.MusicURL)
	assert.Equal(t, diary.MoodGood, first.Mood)

	second, err := f.diary.Share(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := f.diary.PublicMusic(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.diary.Share(ctx, "missing")
	assert.ErrorIs(t, err, diarysvc.ErrEntryNotFound)
}
