package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zhouzirui/mood-diary/backend/internal/analysis/emotion"
	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
	"github.com/zhouzirui/mood-diary/backend/internal/service/ai"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrMoodRequired    = errors.New("mood must be selected before chatting")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrEmptyEmotion    = errors.New("emotion is empty")
)

// ApologyReply replaces the companion's answer whenever the completion call fails.
const ApologyReply = "미안해요, 지금은 답장을 드리기 어려워요. 잠시 후에 다시 이야기해 주세요."

// Responder produces the companion's reply to one turn. *ai.Service implements it.
type Responder interface {
	Reply(ctx context.Context, in ai.ReplyInput) (string, error)
}

// PreferenceSource supplies the stored music genre preferences folded into prompts.
type PreferenceSource interface {
	Preferences(ctx context.Context) ([]string, error)
}

// Turn is a user message that has been accepted but not answered yet.
type Turn struct {
	Input       ai.ReplyInput
	UserMessage chat.Message
}

// Service holds diary sessions and drives the conversation.
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]*chat.Session
	personas  persona.Store
	responder Responder
	prefs     PreferenceSource
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithResponder sets the completion backend. Without one, canned replies are used.
func WithResponder(r Responder) Option {
	return func(s *Service) { s.responder = r }
}

// WithPreferences sets where genre preferences are read from.
func WithPreferences(p PreferenceSource) Option {
	return func(s *Service) { s.prefs = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// SetPreferenceSource replaces the preference source after construction, for
// sources that themselves depend on the session service.
func (s *Service) SetPreferenceSource(p PreferenceSource) {
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
}

// NewService bootstraps the in-memory session service.
func NewService(personas persona.Store, opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]*chat.Session),
		personas: personas,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions a session bound to a companion. An empty id picks the default.
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Session, error) {
	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	session := chat.NewSession(uuid.NewString(), p.ID, s.now())

	s.mu.Lock()
	s.sessions[session.ID] = &session
	s.mu.Unlock()

	return session.Clone(), nil
}

// GetSession retrieves a snapshot of a session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update applies fn to the session under the write lock and returns the new snapshot.
func (s *Service) Update(_ context.Context, sessionID string, fn func(*chat.Session) error) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	if err := fn(session); err != nil {
		return chat.Session{}, err
	}
	return session.Clone(), nil
}

// SelectMood records the mood of the day and opens the chat.
func (s *Service) SelectMood(ctx context.Context, sessionID string, mood diary.Mood) (chat.Session, error) {
	parsed, err := diary.ParseMood(string(mood))
	if err != nil {
		return chat.Session{}, err
	}
	return s.Update(ctx, sessionID, func(session *chat.Session) error {
		session.Mood = parsed
		if session.Stage == chat.StageMoodSelect {
			session.Stage = chat.StageChatting
		}
		return nil
	})
}

// SelectEmotion pins an emotion to the session; a third pin evicts the oldest.
func (s *Service) SelectEmotion(ctx context.Context, sessionID, value string) (chat.Session, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return chat.Session{}, ErrEmptyEmotion
	}
	return s.Update(ctx, sessionID, func(session *chat.Session) error {
		session.SelectEmotion(value)
		return nil
	})
}

// Transcript returns the messages of a session.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Messages, nil
}

// Reset clears every session-scoped field back to its initial value.
func (s *Service) Reset(ctx context.Context, sessionID string) (chat.Session, error) {
	return s.Update(ctx, sessionID, func(session *chat.Session) error {
		session.Reset()
		return nil
	})
}

// SendMessage runs one full turn: accept the user message, ask the companion,
// append the reply. Empty input or a missing mood leaves the session untouched.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string) (chat.Message, error) {
	turn, err := s.BeginTurn(ctx, sessionID, content)
	if err != nil {
		return chat.Message{}, err
	}

	var reply string
	var replyErr error
	if s.responder == nil {
		reply = cannedReply(turn.Input)
	} else {
		reply, replyErr = s.responder.Reply(ctx, turn.Input)
	}

	return s.FinishTurn(ctx, sessionID, reply, replyErr)
}

// BeginTurn validates and appends the user message, bumps the turn counter and
// returns the prompt input for the companion.
func (s *Service) BeginTurn(ctx context.Context, sessionID, content string) (Turn, error) {
	content = strings.TrimSpace(content)

	s.mu.RLock()
	source := s.prefs
	s.mu.RUnlock()

	var preferences []string
	if source != nil {
		prefs, err := source.Preferences(ctx)
		if err != nil {
			log.Warn("failed to load genre preferences", "err", err)
		}
		preferences = prefs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Turn{}, ErrSessionNotFound
	}
	if content == "" {
		return Turn{}, ErrEmptyMessage
	}
	if session.Mood == "" {
		return Turn{}, ErrMoodRequired
	}

	detected := emotion.Analyze(content)
	userMsg := chat.Message{
		Role:      chat.RoleUser,
		Content:   content,
		Timestamp: s.now(),
	}
	if detected.Score > 0 {
		userMsg.Emotion = string(detected.Emotion)
	}

	history := append([]chat.Message(nil), session.Messages...)
	if len(history) > ai.HistoryLimit {
		history = history[len(history)-ai.HistoryLimit:]
	}

	session.Messages = append(session.Messages, userMsg)
	session.TurnCount++
	if session.Stage == chat.StageMoodSelect {
		session.Stage = chat.StageChatting
	}

	var companion *persona.Persona
	if p, ok := s.personas.FindByID(session.PersonaID); ok {
		companion = &p
	}

	input := ai.ReplyInput{
		SessionID:   session.ID,
		Persona:     companion,
		Mood:        session.Mood,
		Preferences: preferences,
		TurnNumber:  session.TurnCount,
		History:     history,
		Message:     content,
	}
	if detected.Score > 0 {
		input.Emotion = detected.Emotion.Korean()
	}

	return Turn{Input: input, UserMessage: userMsg}, nil
}

// FinishTurn appends the companion reply. A non-nil replyErr is logged and the
// apology text is appended instead.
func (s *Service) FinishTurn(_ context.Context, sessionID, reply string, replyErr error) (chat.Message, error) {
	if replyErr != nil || strings.TrimSpace(reply) == "" {
		log.Warn("companion reply unavailable, using apology", "session", sessionID, "err", replyErr)
		reply = ApologyReply
	}

	msg := chat.Message{
		Role:      chat.RoleAssistant,
		Content:   strings.TrimSpace(reply),
		Timestamp: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}
	session.Messages = append(session.Messages, msg)
	return msg, nil
}

var cannedReplies = map[ai.TurnStage]string{
	ai.StageGreet:       "안녕하세요! 오늘 하루는 어떠셨어요? 편하게 이야기해 주세요.",
	ai.StageAcknowledge: "그런 일이 있었군요. 그때 기분은 어떠셨어요?",
	ai.StageEmpathize:   "충분히 그렇게 느낄 수 있어요. 오늘도 정말 수고 많으셨어요.",
}

func cannedReply(in ai.ReplyInput) string {
	return cannedReplies[ai.StageForTurn(in.TurnNumber)]
}
