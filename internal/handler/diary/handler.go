package diary

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	diaryService "github.com/zhouzirui/mood-diary/backend/internal/service/diary"
	musicService "github.com/zhouzirui/mood-diary/backend/internal/service/music"
	"github.com/zhouzirui/mood-diary/backend/pkg/utils"
)

// Handler serves the diary flow: summary, music and save, plus the diary list, trash, preferences and sharing.
type Handler struct {
	diaries  *diaryService.Service
	workflow *diaryService.Workflow
}

// New creates a diary handler.
func New(diaries *diaryService.Service, workflow *diaryService.Workflow) *Handler {
	return &Handler{diaries: diaries, workflow: workflow}
}

// RegisterRoutes registers the diary routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/{id}/summary", h.handleSummarize)
	r.Post("/session/{id}/music", h.handleRequestMusic)
	r.Get("/session/{id}/music", h.handleTrack)
	r.Post("/session/{id}/diary", h.handleSave)

	r.Get("/diaries", h.handleList)
	r.Get("/diaries/{id}", h.handleGet)
	r.Post("/diaries/{id}/trash", h.handleTrash)
	r.Post("/diaries/{id}/share", h.handleShare)

	r.Get("/trash", h.handleListTrash)
	r.Post("/trash/{id}/restore", h.handleRestore)
	r.Delete("/trash", h.handlePurge)

	r.Get("/preferences/genres", h.handleGetPreferences)
	r.Put("/preferences/genres", h.handleSetPreferences)
	r.Get("/music/public", h.handlePublicMusic)
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	data, err := h.workflow.Summarize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, data)
}

func (h *Handler) handleRequestMusic(w http.ResponseWriter, r *http.Request) {
	task, err := h.workflow.RequestMusic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, task)
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	task, err := h.workflow.Track(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, task)
}

// handleSave saves the session as an entry and resets it.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload diaryService.SaveRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.diaries.Save(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.diaries.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.diaries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTrash(w http.ResponseWriter, r *http.Request) {
	entry, err := h.diaries.Trash(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	shared, err := h.diaries.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, shared)
}

func (h *Handler) handleListTrash(w http.ResponseWriter, r *http.Request) {
	entries, err := h.diaries.ListTrash(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	entry, err := h.diaries.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := h.diaries.PurgeTrash(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int{"purged": n})
}

type genresPayload struct {
	Genres []string `json:"genres"`
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	genres, err := h.diaries.Preferences(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, genresPayload{Genres: genres})
}

func (h *Handler) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var payload genresPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	genres, err := h.diaries.SetPreferences(r.Context(), payload.Genres)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, genresPayload{Genres: genres})
}

func (h *Handler) handlePublicMusic(w http.ResponseWriter, r *http.Request) {
	list, err := h.diaries.PublicMusic(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, list)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, diaryService.ErrEntryNotFound),
		errors.Is(err, musicService.ErrTaskNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, diaryService.ErrSummaryRequired),
		errors.Is(err, diaryService.ErrTranscriptTooShort),
		errors.Is(err, diaryService.ErrNoTrack),
		errors.Is(err, musicService.ErrEmptyPrompt):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, diaryService.ErrMusicPending),
		errors.Is(err, diaryService.ErrMusicFailed):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
