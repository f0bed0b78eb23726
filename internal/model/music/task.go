package music

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the canonical state of a generation task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MockTaskPrefix marks task ids synthesized locally when the vendor is unavailable.
const MockTaskPrefix = "mock_"

// ErrTerminalState is returned when a finished task is asked to change state.
var ErrTerminalState = errors.New("music task already finished")

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one text-to-music generation job.
type Task struct {
	TaskID    string    `json:"taskId"`
	Status    Status    `json:"status"`
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	MusicURL  string    `json:"musicUrl,omitempty"`
	StreamURL string    `json:"streamUrl,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
	Progress  int       `json:"progress"`
	Attempts  int       `json:"attempts"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// IsMock reports whether the task id was synthesized locally.
func (t Task) IsMock() bool {
	return strings.HasPrefix(t.TaskID, MockTaskPrefix)
}

// Transition moves the task to next. Terminal tasks never change.
func (t *Task) Transition(next Status, at time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, t.Status, next)
	}
	switch next {
	case StatusPending:
		if t.Status != StatusPending {
			return fmt.Errorf("invalid transition %s -> %s", t.Status, next)
		}
	case StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", next)
	}
	t.Status = next
	t.UpdatedAt = at
	return nil
}

// Complete marks the task completed with the given audio location.
func (t *Task) Complete(musicURL, streamURL, imageURL string, at time.Time) error {
	if err := t.Transition(StatusCompleted, at); err != nil {
		return err
	}
	t.MusicURL = musicURL
	t.StreamURL = streamURL
	if streamURL == "" {
		t.StreamURL = musicURL
	}
	t.ImageURL = imageURL
	t.Progress = 100
	return nil
}

// Fail marks the task failed with a reason.
func (t *Task) Fail(reason string, at time.Time) error {
	if err := t.Transition(StatusFailed, at); err != nil {
		return err
	}
	if reason == "" {
		reason = "music generation failed"
	}
	t.Error = reason
	t.Progress = 100
	return nil
}
