package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mood-diary/backend/pkg/utils"
)

const maxPayloadBytes = 1 << 20

// Handler exposes the relay over HTTP.
type Handler struct {
	store      *Store
	forwardURL string
	client     *http.Client
}

// Option customizes a Handler.
type Option func(*Handler)

// WithForward makes vendor pushes go to an upstream relay instead of the local store.
// A RemoteSource on the same base URL reads them back.
func WithForward(baseURL string, client *http.Client) Option {
	return func(h *Handler) {
		h.forwardURL = strings.TrimRight(baseURL, "/")
		if client != nil {
			h.client = client
		}
	}
}

// NewHandler creates the relay handler.
func NewHandler(store *Store, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the callback endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/callback", h.handleVendorPush)
	r.Post("/callback/{taskId}", h.handleStore)
	r.Get("/callback/{taskId}", h.handleGet)
}

func (h *Handler) handleVendorPush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	taskID := ExtractTaskID(payload)
	if taskID == "" {
		utils.RespondError(w, http.StatusBadRequest, "task id not found in payload")
		return
	}

	if h.forwardURL != "" {
		if err := h.forward(r.Context(), taskID, payload); err != nil {
			log.Error("relay forward failed", "taskId", taskID, "err", err)
			utils.RespondError(w, http.StatusBadGateway, "forward failed")
			return
		}
		log.Info("callback forwarded", "taskId", taskID)
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "forwarded", "taskId": taskID})
		return
	}

	h.store.Put(taskID, payload)
	log.Info("callback stored", "taskId", taskID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "stored", "taskId": taskID})
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "empty payload")
		return
	}

	h.store.Put(taskID, payload)
	log.Info("callback stored", "taskId", taskID, "via", "relay")
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "stored", "taskId": taskID})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.store.Get(chi.URLParam(r, "taskId"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "callback not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, rec)
}

func (h *Handler) forward(ctx context.Context, taskID string, payload []byte) error {
	target := h.forwardURL + "/" + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("upstream relay answered %d", resp.StatusCode)
	}
	return nil
}
