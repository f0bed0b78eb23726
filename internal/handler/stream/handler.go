package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
	aiService "github.com/zhouzirui/mood-diary/backend/internal/service/ai"
	chatService "github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	"github.com/zhouzirui/mood-diary/backend/pkg/utils"
)

// Companion is the completion backend used for streamed replies. *ai.Service implements it.
type Companion interface {
	StreamingEnabled() bool
	Reply(ctx context.Context, in aiService.ReplyInput) (string, error)
	StreamReply(ctx context.Context, in aiService.ReplyInput) (*schema.StreamReader[*schema.Message], error)
}

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	companion Companion
	chatSvc   *chatService.Service
	personas  persona.Store
}

// New creates a new stream handler. A nil companion streams the canned replies.
func New(companion Companion, chatSvc *chatService.Service, personas persona.Store) *Handler {
	return &Handler{
		companion: companion,
		chatSvc:   chatSvc,
		personas:  personas,
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes registers the streaming chat route
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := strings.TrimSpace(r.URL.Query().Get("message"))
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, flusher, sessionID, userMessage); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chatService.ErrSessionNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chatService.ErrMoodRequired), errors.Is(err, chatService.ErrEmptyMessage):
			status = http.StatusUnprocessableEntity
		}
		utils.RespondError(w, status, err.Error())
	}
}

// HandleStreamRequest runs one turn and streams the reply. Errors are returned
// only before the event stream has started, so the caller can still answer with JSON.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, userMessage string) error {
	if h.companion == nil {
		return h.streamCanned(ctx, w, flusher, sessionID, userMessage)
	}

	turn, err := h.chatSvc.BeginTurn(ctx, sessionID, userMessage)
	if err != nil {
		return err
	}

	utils.SetupSSEHeaders(w)
	h.sendStart(w, flusher, sessionID, turn.Input.Persona)

	var content string
	var replyErr error
	if h.companion.StreamingEnabled() {
		content, replyErr = h.streamAIResponse(ctx, w, flusher, sessionID, turn.Input)
	} else {
		content, replyErr = h.companion.Reply(ctx, turn.Input)
	}

	msg, err := h.chatSvc.FinishTurn(ctx, sessionID, content, replyErr)
	if err != nil {
		log.Warn("failed to store streamed reply", "session", sessionID, "err", err)
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: err.Error()})
		return nil
	}

	h.finish(w, flusher, sessionID, msg.Content, turn.UserMessage.Emotion)
	log.Info("stream completed", "session", sessionID, "turn", turn.Input.TurnNumber)
	return nil
}

func (h *Handler) streamCanned(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, userMessage string) error {
	reply, err := h.chatSvc.SendMessage(ctx, sessionID, userMessage)
	if err != nil {
		return err
	}

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	var companion *persona.Persona
	if p, ok := h.personas.FindByID(session.PersonaID); ok {
		companion = &p
	}

	var emotion string
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Role == chat.RoleUser {
			emotion = session.Messages[i].Emotion
			break
		}
	}

	utils.SetupSSEHeaders(w)
	h.sendStart(w, flusher, sessionID, companion)
	h.finish(w, flusher, sessionID, reply.Content, emotion)
	return nil
}

func (h *Handler) sendStart(w http.ResponseWriter, flusher http.Flusher, sessionID string, p *persona.Persona) {
	start := StreamResponse{Event: "start", SessionID: sessionID}
	if p != nil {
		start.Content = p.Name
	}
	utils.SendSSEChunk(w, flusher, start)
}

func (h *Handler) finish(w http.ResponseWriter, flusher http.Flusher, sessionID, content, emotion string) {
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   content,
		Emotion:   emotion,
	})
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})
}

// streamAIResponse forwards deltas as they arrive and returns the concatenated reply.
func (h *Handler) streamAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, in aiService.ReplyInput) (string, error) {
	stream, err := h.companion.StreamReply(ctx, in)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	if len(chunks) == 0 {
		return "", nil
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}
