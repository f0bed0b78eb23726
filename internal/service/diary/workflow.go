package diary

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
	musicsvc "github.com/zhouzirui/mood-diary/backend/internal/service/music"
)

// Summarizer extracts the summary of a transcript. *summary.Service implements it.
type Summarizer interface {
	Summarize(ctx context.Context, mood diary.Mood, transcript []chat.Message) diary.SummaryData
}

// Requester submits music briefs. *music.Requestor implements it.
type Requester interface {
	TaskSource
	Request(ctx context.Context, req musicsvc.GenerateRequest) (music.Task, error)
}

// PreferenceSource supplies the genre preferences folded into the brief.
type PreferenceSource interface {
	Preferences(ctx context.Context) ([]string, error)
}

// Workflow drives a session through summary and music generation.
type Workflow struct {
	sessions   Sessions
	summarizer Summarizer
	music      Requester
	prefs      PreferenceSource
}

// NewWorkflow wires the steps between chatting and saving. prefs may be nil.
func NewWorkflow(sessions Sessions, summarizer Summarizer, requester Requester, prefs PreferenceSource) *Workflow {
	return &Workflow{
		sessions:   sessions,
		summarizer: summarizer,
		music:      requester,
		prefs:      prefs,
	}
}

// Summarize extracts the summary of the session and moves it to the summary step.
func (w *Workflow) Summarize(ctx context.Context, sessionID string) (diary.SummaryData, error) {
	session, err := w.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return diary.SummaryData{}, err
	}
	if len(session.Messages) < 2 {
		return diary.SummaryData{}, ErrTranscriptTooShort
	}

	data := w.summarizer.Summarize(ctx, session.Mood, session.Messages)

	if _, err := w.sessions.Update(ctx, sessionID, func(sess *chat.Session) error {
		summary := data.Clone()
		sess.Summary = &summary
		sess.MusicTaskID = ""
		sess.Stage = chat.StageSummarized
		return nil
	}); err != nil {
		return diary.SummaryData{}, err
	}
	return data, nil
}

// RequestMusic submits the session's brief. A session whose task is still
// running or already completed gets that task back instead of a new one.
func (w *Workflow) RequestMusic(ctx context.Context, sessionID string) (music.Task, error) {
	session, err := w.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return music.Task{}, err
	}
	if session.Summary == nil {
		return music.Task{}, ErrSummaryRequired
	}
	if session.MusicTaskID != "" {
		if task, err := w.music.Get(session.MusicTaskID); err == nil && task.Status != music.StatusFailed {
			return task, nil
		}
	}

	var prefs []string
	if w.prefs != nil {
		prefs, err = w.prefs.Preferences(ctx)
		if err != nil {
			log.Warn("failed to load genre preferences", "err", err)
		}
	}

	task, err := w.music.Request(ctx, BuildBrief(*session.Summary, prefs))
	if err != nil {
		return music.Task{}, err
	}

	if _, err := w.sessions.Update(ctx, sessionID, func(sess *chat.Session) error {
		sess.MusicTaskID = task.TaskID
		sess.Stage = chat.StageGenerating
		return nil
	}); err != nil {
		return music.Task{}, err
	}
	return task, nil
}

// Track reports the session's music task and advances the stage once it is terminal.
func (w *Workflow) Track(ctx context.Context, sessionID string) (music.Task, error) {
	session, err := w.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return music.Task{}, err
	}
	if session.MusicTaskID == "" {
		return music.Task{}, ErrMusicPending
	}
	task, err := w.music.Get(session.MusicTaskID)
	if err != nil {
		return music.Task{}, err
	}

	var stage chat.Stage
	switch task.Status {
	case music.StatusCompleted:
		stage = chat.StageReady
	case music.StatusFailed:
		stage = chat.StageSummarized
	default:
		return task, nil
	}
	_, err = w.sessions.Update(ctx, sessionID, func(sess *chat.Session) error {
		if sess.MusicTaskID == task.TaskID {
			sess.Stage = stage
		}
		return nil
	})
	return task, err
}

// BuildBrief turns summary fields and genre preferences into a generation request.
// Missing fields fall back to the default summary.
func BuildBrief(summary diary.SummaryData, prefs []string) musicsvc.GenerateRequest {
	def := diary.DefaultSummary()
	prompt := firstNonEmpty(summary.MusicPrompt, def.MusicPrompt)
	style := firstNonEmpty(summary.MusicStyle, def.MusicStyle)
	title := firstNonEmpty(summary.MusicTitle, def.MusicTitle)

	if len(summary.Keywords) > 0 {
		prompt += ". Mood keywords: " + strings.Join(summary.Keywords, ", ")
	}
	for _, genre := range prefs {
		if genre = strings.TrimSpace(genre); genre != "" && !strings.Contains(strings.ToLower(style), strings.ToLower(genre)) {
			style += ", " + genre
		}
	}

	return musicsvc.GenerateRequest{Prompt: prompt, Style: style, Title: title}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
