package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mood-diary/backend/internal/model/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	chatService "github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	"github.com/zhouzirui/mood-diary/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{id}", h.handleGetSession)
	r.Post("/session/{id}/mood", h.handleSelectMood)
	r.Post("/session/{id}/messages", h.handleSendMessage)
	r.Post("/session/{id}/emotions", h.handleSelectEmotion)
	r.Post("/session/{id}/reset", h.handleReset)
}

// MessageResponse 是一轮对话的结果
type MessageResponse struct {
	Message chat.Message `json:"message"`
	Session chat.Session `json:"session"`
}

// handleCreateSession 创建会话，personaId 为空时使用默认角色
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSelectMood(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mood string `json:"mood"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mood, err := diary.ParseMood(payload.Mood)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.SelectMood(r.Context(), chi.URLParam(r, "id"), mood)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSendMessage 发送一条用户消息并返回陪伴角色的回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	reply, err := h.chatSvc.SendMessage(r.Context(), id, payload.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, MessageResponse{Message: reply, Session: session})
}

func (h *Handler) handleSelectEmotion(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Emotion string `json:"emotion"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.SelectEmotion(r.Context(), chi.URLParam(r, "id"), payload.Emotion)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrPersonaNotFound):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrMoodRequired),
		errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrEmptyEmotion):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
