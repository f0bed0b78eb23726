package music

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mood-diary/backend/internal/model/music"
	musicService "github.com/zhouzirui/mood-diary/backend/internal/service/music"
	"github.com/zhouzirui/mood-diary/backend/pkg/utils"
)

const (
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Tasks is the read side of the music requestor. *music.Requestor implements it.
type Tasks interface {
	Get(taskID string) (music.Task, error)
	Subscribe(taskID string) (<-chan music.Task, func(), error)
}

// Handler serves music task snapshots over HTTP and WebSocket.
type Handler struct {
	tasks    Tasks
	upgrader websocket.Upgrader
}

// New creates a music task handler.
func New(tasks Tasks) *Handler {
	return &Handler{
		tasks: tasks,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the music task routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/music/tasks/{taskId}", h.handleGetTask)
	r.Get("/ws/music/{taskId}", h.handleWebSocket)
}

type outgoingMessage struct {
	Type      string     `json:"type"`
	TaskID    string     `json:"taskId"`
	Data      music.Task `json:"data"`
	Timestamp int64      `json:"timestamp"`
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(chi.URLParam(r, "taskId"))
	if err != nil {
		if errors.Is(err, musicService.ErrTaskNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, task)
}

// handleWebSocket pushes task snapshots, then a final message and a close frame once the task is terminal.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	updates, unsubscribe, err := h.tasks.Subscribe(taskID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "taskId", taskID, "err", err)
		return
	}
	defer conn.Close()

	log.Debug("music websocket opened", "taskId", taskID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends data; reading only notices when it goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case snapshot, ok := <-updates:
			if !ok {
				h.sendFinal(conn, taskID)
				return
			}
			if err := h.send(conn, "snapshot", snapshot); err != nil {
				log.Debug("music websocket write failed", "taskId", taskID, "err", err)
				return
			}
		}
	}
}

// sendFinal re-reads the task so the terminal snapshot arrives even when a
// buffered update was dropped.
func (h *Handler) sendFinal(conn *websocket.Conn, taskID string) {
	task, err := h.tasks.Get(taskID)
	if err != nil {
		return
	}
	msgType := "final"
	if !task.Status.Terminal() {
		msgType = "snapshot"
	}
	if err := h.send(conn, msgType, task); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(task.Status)),
		time.Now().Add(writeTimeout))
}

func (h *Handler) send(conn *websocket.Conn, msgType string, task music.Task) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		TaskID:    task.TaskID,
		Data:      task,
		Timestamp: time.Now().Unix(),
	})
}
