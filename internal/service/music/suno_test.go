package music

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SunoClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSunoClient(config.MusicConfig{
		APIKey:       "secret",
		BaseURL:      srv.URL,
		Model:        "V4",
		CallbackURL:  "https://diary.example/api/callback",
		NegativeTags: "metal",
		Instrumental: true,
		PollInterval: time.Millisecond,
	}, srv.Client())
}

func TestSunoGenerate(t *testing.T) {
	var got generatePayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, generatePath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc123"}}`))
	})

	id, err := client.Generate(context.Background(), GenerateRequest{
		Prompt: "soft piano",
		Style:  "piano",
		Title:  strings.Repeat("가", 100),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.True(t, got.CustomMode)
	assert.True(t, got.Instrumental)
	assert.Equal(t, "V4", got.Model)
	assert.Equal(t, "https://diary.example/api/callback", got.CallBackURL)
	assert.Equal(t, "metal", got.NegativeTags)
	assert.Len(t, []rune(got.Title), maxTitleRunes)
}

func TestSunoGenerateVendorError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":429,"msg":"insufficient credits","data":null}`))
	})
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVendor))
	assert.Contains(t, err.Error(), "insufficient credits")
}

func TestSunoGenerateHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrVendor)
}

func TestSunoStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, statusPath, r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("taskId"))
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc123","status":"SUCCESS",
			"response":{"sunoData":[{"id":"0","audioUrl":"","streamAudioUrl":""},
			{"id":"1","audioUrl":"https://cdn/1.mp3","streamAudioUrl":"https://cdn/1.stream","imageUrl":"https://cdn/1.png"}]},
			"errorMessage":null}}`))
	})

	res, err := client.Status(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", res.Status)
	assert.Equal(t, "https://cdn/1.mp3", res.AudioURL)
	assert.Equal(t, "https://cdn/1.stream", res.StreamURL)
	assert.Equal(t, "https://cdn/1.png", res.ImageURL)
}

func TestSunoStatusPending(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc","status":"PENDING","response":{"sunoData":null}}}`))
	})
	res, err := client.Status(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", res.Status)
	assert.Empty(t, res.AudioURL)
}
