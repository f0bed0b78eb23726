// Package relay receives vendor callbacks and keeps them until the music
// requestor asks for them.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/mood-diary/backend/internal/service/music"
)

// Record is one relayed callback payload.
type Record struct {
	TaskID     string          `json:"taskId"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

type callbackTrack struct {
	AudioURL       string `json:"audio_url"`
	StreamAudioURL string `json:"stream_audio_url"`
	ImageURL       string `json:"image_url"`
}

type callbackBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		CallbackType string          `json:"callbackType"`
		TaskID       string          `json:"task_id"`
		TaskIDCamel  string          `json:"taskId"`
		Tracks       []callbackTrack `json:"data"`
	} `json:"data"`
	TaskID      string `json:"taskId"`
	TaskIDSnake string `json:"task_id"`
}

func (r Record) decode() callbackBody {
	var body callbackBody
	_ = json.Unmarshal(r.Payload, &body)
	return body
}

func (r Record) track() callbackTrack {
	for _, t := range r.decode().Data.Tracks {
		if t.AudioURL != "" || t.StreamAudioURL != "" {
			return t
		}
	}
	return callbackTrack{}
}

// Status maps the callback type onto a vendor status string.
// "complete" means the audio files exist, "first" only the first of two tracks,
// "text" only the lyrics. A non-200 code is a failure.
func (r Record) Status() string {
	body := r.decode()
	if body.Code != 0 && body.Code != 200 {
		return "GENERATE_AUDIO_FAILED"
	}
	switch strings.ToLower(body.Data.CallbackType) {
	case "complete":
		return "SUCCESS"
	case "first":
		return "FIRST_SUCCESS"
	case "text":
		return "TEXT_SUCCESS"
	case "error":
		return "GENERATE_AUDIO_FAILED"
	default:
		return "PROCESSING"
	}
}

// AudioURL returns the first playable file url in the payload.
func (r Record) AudioURL() string { return r.track().AudioURL }

// StreamURL returns the stream url of the first playable track.
func (r Record) StreamURL() string { return r.track().StreamAudioURL }

func (r Record) errorMessage() string {
	body := r.decode()
	if r.Status() == "GENERATE_AUDIO_FAILED" {
		return body.Msg
	}
	return ""
}

// ExtractTaskID finds the task id in a vendor payload. The vendor has used
// several spellings over time.
func ExtractTaskID(payload []byte) string {
	var body callbackBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	for _, id := range []string{body.Data.TaskID, body.Data.TaskIDCamel, body.TaskID, body.TaskIDSnake} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

// Store keeps every relayed callback in memory. Entries are never evicted.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Put stores the payload for taskID, replacing any earlier callback.
func (s *Store) Put(taskID string, payload []byte) Record {
	rec := Record{
		TaskID:     taskID,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: s.now(),
	}
	s.mu.Lock()
	s.records[taskID] = rec
	s.mu.Unlock()
	return rec
}

// Get returns the stored callback for taskID.
func (s *Store) Get(taskID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taskID]
	return rec, ok
}

// Len reports how many callbacks are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// StatusResult converts the payload into the shape the music requestor polls with.
func (r Record) StatusResult() music.StatusResult {
	track := r.track()
	return music.StatusResult{
		Status:    r.Status(),
		AudioURL:  track.AudioURL,
		StreamURL: track.StreamAudioURL,
		ImageURL:  track.ImageURL,
		Error:     r.errorMessage(),
	}
}

// LookupStatus satisfies music.CallbackSource.
func (s *Store) LookupStatus(_ context.Context, taskID string) (music.StatusResult, bool) {
	rec, ok := s.Get(taskID)
	if !ok {
		return music.StatusResult{}, false
	}
	return rec.StatusResult(), true
}
