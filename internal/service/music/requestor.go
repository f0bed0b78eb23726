package music

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
)

var (
	ErrTaskNotFound = errors.New("music task not found")
	ErrEmptyPrompt  = errors.New("music prompt is required")
)

// progressCeiling is where the cosmetic progress stops until a terminal state arrives.
const progressCeiling = 95

// Options tune the polling loop.
type Options struct {
	PollInterval   time.Duration
	MaxAttempts    int
	ProgressStep   int
	ProgressEvery  time.Duration
	PlaceholderURL string
	RequestTimeout time.Duration
}

// OptionsFromConfig derives requestor options from the music configuration.
func OptionsFromConfig(cfg config.MusicConfig) Options {
	return Options{
		PollInterval:   cfg.PollInterval,
		MaxAttempts:    cfg.MaxAttempts,
		ProgressStep:   cfg.ProgressStep,
		ProgressEvery:  cfg.ProgressEvery,
		PlaceholderURL: cfg.PlaceholderURL,
		RequestTimeout: cfg.RequestTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 60
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = 2
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = time.Second
	}
	if o.PlaceholderURL == "" {
		o.PlaceholderURL = config.PlaceholderTrackURL
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	return o
}

type tracked struct {
	task    music.Task
	subs    map[int]chan music.Task
	nextSub int
	done    chan struct{}
}

// Requestor submits briefs and drives every task to a terminal state.
type Requestor struct {
	client    Client
	callbacks CallbackSource
	opts      Options
	now       func() time.Time

	mu    sync.RWMutex
	tasks map[string]*tracked

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRequestor creates a requestor. A nil client makes every task a mock task.
// callbacks may be nil.
func NewRequestor(client Client, callbacks CallbackSource, opts Options) *Requestor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Requestor{
		client:    client,
		callbacks: callbacks,
		opts:      opts.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
		tasks:     make(map[string]*tracked),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Request submits a brief. When the vendor is unavailable or rejects the
// request, a local mock task is created instead; the caller always gets a task.
func (r *Requestor) Request(ctx context.Context, req GenerateRequest) (music.Task, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return music.Task{}, ErrEmptyPrompt
	}

	taskID := ""
	if r.client != nil {
		id, err := r.client.Generate(ctx, req)
		if err != nil {
			log.Warn("music generation request failed, using mock task", "err", err)
		} else {
			taskID = id
		}
	}
	if taskID == "" {
		taskID = music.MockTaskPrefix + uuid.NewString()
	}

	now := r.now()
	t := &tracked{
		task: music.Task{
			TaskID:    taskID,
			Status:    music.StatusPending,
			Prompt:    req.Prompt,
			Style:     req.Style,
			Title:     req.Title,
			CreatedAt: now,
			UpdatedAt: now,
		},
		subs: make(map[int]chan music.Task),
		done: make(chan struct{}),
	}

	snapshot := t.task

	r.mu.Lock()
	r.tasks[taskID] = t
	r.mu.Unlock()

	log.Info("music task created", "taskId", taskID, "mock", snapshot.IsMock())

	// t.task is guarded by r.mu once registered.
	r.wg.Add(2)
	go r.pollLoop(taskID, t.done)
	go r.progressLoop(taskID, t.done)

	return snapshot, nil
}

// Get returns a snapshot of a task.
func (r *Requestor) Get(taskID string) (music.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return music.Task{}, ErrTaskNotFound
	}
	return t.task, nil
}

// Subscribe streams snapshots of a task. The current snapshot is delivered
// first; the channel is closed once the task is terminal. Slow readers may miss
// intermediate snapshots, never the closing. Call cancel to stop early.
func (r *Requestor) Subscribe(taskID string) (<-chan music.Task, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, nil, ErrTaskNotFound
	}

	ch := make(chan music.Task, 16)
	ch <- t.task
	if t.task.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Shutdown stops every running loop and waits for them to return.
func (r *Requestor) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

func (r *Requestor) pollLoop(taskID string, done <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-r.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
		}

		if r.poll(taskID, attempt) {
			return
		}

		if attempt >= r.opts.MaxAttempts {
			r.forceComplete(taskID, attempt)
			return
		}
	}
}

// poll runs one status check and reports whether the task reached a terminal state.
func (r *Requestor) poll(taskID string, attempt int) bool {
	snapshot, err := r.Get(taskID)
	if err != nil {
		return true
	}

	if snapshot.IsMock() {
		return r.mutate(taskID, func(t *music.Task, now time.Time) error {
			t.Attempts = attempt
			t.Fallback = true
			return t.Complete(r.opts.PlaceholderURL, r.opts.PlaceholderURL, "", now)
		})
	}

	result, source, err := r.fetchStatus(taskID)
	if err != nil {
		log.Warn("music status poll failed", "taskId", taskID, "attempt", attempt, "err", err)
		r.mutate(taskID, func(t *music.Task, _ time.Time) error {
			t.Attempts = attempt
			return nil
		})
		return false
	}

	next := music.MapVendorStatus(result.Status)
	log.Debug("music status", "taskId", taskID, "attempt", attempt, "vendor", result.Status, "status", next, "source", source)

	return r.mutate(taskID, func(t *music.Task, now time.Time) error {
		t.Attempts = attempt
		switch next {
		case music.StatusCompleted:
			if result.AudioURL == "" && result.StreamURL == "" {
				// Finished without a playable file yet; keep polling.
				return t.Transition(music.StatusProcessing, now)
			}
			audio := result.AudioURL
			if audio == "" {
				audio = result.StreamURL
			}
			return t.Complete(audio, result.StreamURL, result.ImageURL, now)
		case music.StatusFailed:
			return t.Fail(result.Error, now)
		case music.StatusPending:
			if t.Status == music.StatusPending {
				return t.Transition(music.StatusPending, now)
			}
			return nil
		default:
			return t.Transition(music.StatusProcessing, now)
		}
	})
}

// fetchStatus prefers a relayed callback, but only one that settles the task.
// Lyrics-only or in-progress callbacks fall through to the vendor.
func (r *Requestor) fetchStatus(taskID string) (StatusResult, string, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.RequestTimeout)
	defer cancel()

	if r.callbacks != nil {
		if result, ok := r.callbacks.LookupStatus(ctx, taskID); ok && settles(result) {
			return result, "callback", nil
		}
	}
	if r.client == nil {
		return StatusResult{}, "", fmt.Errorf("no music client configured")
	}

	result, err := r.client.Status(ctx, taskID)
	return result, "vendor", err
}

func settles(result StatusResult) bool {
	switch music.MapVendorStatus(result.Status) {
	case music.StatusFailed:
		return true
	case music.StatusCompleted:
		return result.AudioURL != "" || result.StreamURL != ""
	default:
		return false
	}
}

// forceComplete ends a task that never reached a terminal vendor state with the placeholder track.
func (r *Requestor) forceComplete(taskID string, attempts int) {
	log.Warn("music task exceeded attempt ceiling, completing with placeholder", "taskId", taskID, "attempts", attempts)
	r.mutate(taskID, func(t *music.Task, now time.Time) error {
		t.Attempts = attempts
		t.Fallback = true
		return t.Complete(r.opts.PlaceholderURL, r.opts.PlaceholderURL, "", now)
	})
}

func (r *Requestor) progressLoop(taskID string, done <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.ProgressEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
		}

		r.mutate(taskID, func(t *music.Task, _ time.Time) error {
			if t.Progress < progressCeiling {
				t.Progress = min(t.Progress+r.opts.ProgressStep, progressCeiling)
			}
			return nil
		})
	}
}

// mutate applies fn under the lock, fans the new snapshot out to subscribers and
// reports whether the task is now terminal. A rejected transition leaves the
// task as it was.
func (r *Requestor) mutate(taskID string, fn func(*music.Task, time.Time) error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return true
	}
	if t.task.Status.Terminal() {
		return true
	}

	next := t.task
	if err := fn(&next, r.now()); err != nil {
		log.Warn("music task update rejected", "taskId", taskID, "err", err)
		return t.task.Status.Terminal()
	}
	if next == t.task {
		return false
	}
	t.task = next

	for _, sub := range t.subs {
		select {
		case sub <- next:
		default:
		}
	}

	if next.Status.Terminal() {
		for id, sub := range t.subs {
			delete(t.subs, id)
			close(sub)
		}
		close(t.done)
		log.Info("music task finished", "taskId", taskID, "status", next.Status, "fallback", next.Fallback)
		return true
	}
	return false
}
