package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/mood-diary/backend/internal/handler/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/handler/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/handler/music"
	"github.com/zhouzirui/mood-diary/backend/internal/handler/persona"
	"github.com/zhouzirui/mood-diary/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/mood-diary/backend/internal/middleware"
	personaModel "github.com/zhouzirui/mood-diary/backend/internal/model/persona"
	"github.com/zhouzirui/mood-diary/backend/internal/relay"
	chatService "github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	diaryService "github.com/zhouzirui/mood-diary/backend/internal/service/diary"
	"github.com/zhouzirui/mood-diary/backend/pkg/utils"
)

// Deps collects the services the routes need. Companion and Relay may be nil.
type Deps struct {
	Personas       personaModel.Store
	Chat           *chatService.Service
	Companion      stream.Companion
	Diaries        *diaryService.Service
	Workflow       *diaryService.Workflow
	Tasks          music.Tasks
	Relay          *relay.Handler
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins...))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		chat.New(deps.Chat).RegisterRoutes(api)
		stream.New(deps.Companion, deps.Chat, deps.Personas).RegisterRoutes(api)
		diary.New(deps.Diaries, deps.Workflow).RegisterRoutes(api)
		music.New(deps.Tasks).RegisterRoutes(api)

		if deps.Relay != nil {
			deps.Relay.RegisterRoutes(api)
		}
	})

	return r
}

// NewRelayRouter serves only the callback relay, for standalone deployments.
func NewRelayRouter(h *relay.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", h.RegisterRoutes)
	return r
}
