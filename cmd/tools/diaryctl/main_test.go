package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diarymodel "github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
	"github.com/zhouzirui/mood-diary/backend/internal/storage"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diary.db")
	store, err := storage.OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	entries := []diarymodel.Entry{
		{
			ID: "e2", Date: "2026-03-02", Time: "21:10", Mood: diarymodel.MoodGood,
			Summary: "산책을 했다", CreatedAt: created.Add(24 * time.Hour),
			MusicTasks: []music.Task{{TaskID: "mock-1", Status: music.StatusCompleted, Fallback: true}},
		},
		{ID: "e1", Date: "2026-03-01", Time: "09:30", Mood: diarymodel.MoodBad, Summary: "피곤한 하루", CreatedAt: created},
	}
	require.NoError(t, store.Put(context.Background(), storage.KeyDiaryEntries, entries))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListPrintsNewestFirst(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "--db", db, "list")
	require.NoError(t, err)

	assert.Contains(t, out, "e2")
	assert.Contains(t, out, "(placeholder)")
	assert.Less(t, bytes.Index([]byte(out), []byte("e2")), bytes.Index([]byte(out), []byte("e1")))
}

func TestTrashRestoreRoundTrip(t *testing.T) {
	db := seedDB(t)

	_, err := run(t, "--db", db, "trash", "e1")
	require.NoError(t, err)

	out, err := run(t, "--db", db, "list", "--trash")
	require.NoError(t, err)
	assert.Contains(t, out, "e1")

	out, err = run(t, "--db", db, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "e1")

	_, err = run(t, "--db", db, "restore", "e1")
	require.NoError(t, err)

	out, err = run(t, "--db", db, "list", "--trash")
	require.NoError(t, err)
	assert.Contains(t, out, "No entries.")
}

func TestShowUnknownEntry(t *testing.T) {
	db := seedDB(t)
	_, err := run(t, "--db", db, "show", "nope")
	assert.Error(t, err)
}

func TestPrefsAndExport(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "--db", db, "prefs", "jazz", "Jazz", "lofi")
	require.NoError(t, err)
	assert.Equal(t, "jazz, lofi\n", out)

	out, err = run(t, "--db", db, "export")
	require.NoError(t, err)

	var doc exportDoc
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc.Entries, 2)
	assert.Empty(t, doc.Trash)
	assert.Equal(t, []string{"jazz", "lofi"}, doc.Preferences)
}
