package diary

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diarymodel "github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	diaryservice "github.com/zhouzirui/mood-diary/backend/internal/service/diary"
	musicservice "github.com/zhouzirui/mood-diary/backend/internal/service/music"
	"github.com/zhouzirui/mood-diary/backend/internal/service/summary"
	"github.com/zhouzirui/mood-diary/backend/internal/storage"
)

type env struct {
	router    *chi.Mux
	chat      *chatservice.Service
	requestor *musicservice.Requestor
}

func setup(t *testing.T) *env {
	t.Helper()
	chats := chatservice.NewService(persona.NewMemoryStore(persona.Seed()))
	requestor := musicservice.NewRequestor(nil, nil, musicservice.Options{
		PollInterval:  time.Millisecond,
		ProgressEvery: time.Millisecond,
		MaxAttempts:   3,
	})
	t.Cleanup(requestor.Shutdown)

	diaries := diaryservice.NewService(storage.NewMemoryStore(), chats, requestor)
	workflow := diaryservice.NewWorkflow(chats, summary.NewService(nil), requestor, diaries)

	r := chi.NewRouter()
	New(diaries, workflow).RegisterRoutes(r)
	return &env{router: r, chat: chats, requestor: requestor}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *env) chattedSession(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	session, err := e.chat.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = e.chat.SelectMood(ctx, session.ID, diarymodel.MoodGood)
	require.NoError(t, err)
	_, err = e.chat.SendMessage(ctx, session.ID, "산책을 했어")
	require.NoError(t, err)
	return session.ID
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func TestFullFlowOverHTTP(t *testing.T) {
	e := setup(t)
	id := e.chattedSession(t)

	resp := e.do(t, http.MethodPost, "/session/"+id+"/diary", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = e.do(t, http.MethodPost, "/session/"+id+"/summary", "")
	require.Equal(t, http.StatusOK, resp.Code)
	data := decode[diarymodel.SummaryData](t, resp)
	assert.Equal(t, diarymodel.DefaultSummary().Summary, data.Summary)

	resp = e.do(t, http.MethodPost, "/session/"+id+"/music", "")
	require.Equal(t, http.StatusAccepted, resp.Code)
	task := decode[music.Task](t, resp)
	assert.True(t, task.IsMock())

	require.Eventually(t, func() bool {
		resp := e.do(t, http.MethodGet, "/session/"+id+"/music", "")
		var got music.Task
		return resp.Code == http.StatusOK && json.Unmarshal(resp.Body.Bytes(), &got) == nil && got.Status == music.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	resp = e.do(t, http.MethodPost, "/session/"+id+"/diary", `{"customEmotion":"상쾌함"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	entry := decode[diarymodel.Entry](t, resp)
	assert.Equal(t, "상쾌함", entry.CustomEmotion)

	resp = e.do(t, http.MethodGet, "/diaries", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]diarymodel.Entry](t, resp), 1)

	resp = e.do(t, http.MethodGet, "/diaries/"+entry.ID, "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = e.do(t, http.MethodPost, "/diaries/"+entry.ID+"/share", "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = e.do(t, http.MethodGet, "/music/public", "")
	assert.Len(t, decode[[]diarymodel.PublicMusic](t, resp), 1)

	resp = e.do(t, http.MethodPost, "/diaries/"+entry.ID+"/trash", "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = e.do(t, http.MethodGet, "/trash", "")
	assert.Len(t, decode[[]diarymodel.Entry](t, resp), 1)

	resp = e.do(t, http.MethodPost, "/trash/"+entry.ID+"/restore", "")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = e.do(t, http.MethodGet, "/diaries/"+entry.ID, "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = e.do(t, http.MethodDelete, "/trash", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, decode[map[string]int](t, resp)["purged"])
}

func TestSummaryNeedsTranscript(t *testing.T) {
	e := setup(t)
	session, err := e.chat.CreateSession(context.Background(), "")
	require.NoError(t, err)

	resp := e.do(t, http.MethodPost, "/session/"+session.ID+"/summary", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = e.do(t, http.MethodPost, "/session/missing/summary", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSaveBeforeMusicIsConflict(t *testing.T) {
	e := setup(t)
	id := e.chattedSession(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/session/"+id+"/summary", "").Code)

	resp := e.do(t, http.MethodPost, "/session/"+id+"/diary", "")
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestGenrePreferences(t *testing.T) {
	e := setup(t)

	resp := e.do(t, http.MethodPut, "/preferences/genres", `{"genres":["jazz"," jazz ","pop"]}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = e.do(t, http.MethodGet, "/preferences/genres", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"jazz", "pop"}, decode[genresPayload](t, resp).Genres)

	resp = e.do(t, http.MethodPut, "/preferences/genres", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownEntry(t *testing.T) {
	e := setup(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/diaries/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/trash/nope/restore", "").Code)
}
