package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
	"github.com/zhouzirui/mood-diary/backend/internal/handler"
	"github.com/zhouzirui/mood-diary/backend/internal/logging"
	"github.com/zhouzirui/mood-diary/backend/internal/model/persona"
	"github.com/zhouzirui/mood-diary/backend/internal/relay"
	"github.com/zhouzirui/mood-diary/backend/internal/service/ai"
	"github.com/zhouzirui/mood-diary/backend/internal/service/chat"
	"github.com/zhouzirui/mood-diary/backend/internal/service/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/service/music"
	"github.com/zhouzirui/mood-diary/backend/internal/service/summary"
	"github.com/zhouzirui/mood-diary/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	logging.Setup(cfg.Log.Level)
	if envErr != nil {
		log.Debug("no .env file loaded, using system environment only", "err", envErr)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal("server error", "err", err)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage %q: %w", cfg.Storage.Path, err)
	}
	defer store.Close()

	personaStore := persona.NewMemoryStore(persona.Seed())

	// Initialize AI service
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn("failed to initialize AI service, continuing with canned replies", "err", err)
			aiService = nil
		} else {
			log.Info("AI service initialized", "model", cfg.AI.Model, "stream", cfg.AI.StreamResponse)
		}
	} else {
		log.Info("ark credentials not configured, using canned replies")
	}

	chatOpts := []chat.Option{}
	var summarizer *summary.Service
	if aiService != nil {
		chatOpts = append(chatOpts, chat.WithResponder(aiService))
		summarizer = summary.NewService(aiService)
	} else {
		summarizer = summary.NewService(nil)
	}
	chatService := chat.NewService(personaStore, chatOpts...)

	callbacks := relay.NewStore()
	// With forwarding on, callbacks land on the upstream relay and are read back from there.
	var callbackSource music.CallbackSource = callbacks
	if cfg.Relay.ForwardURL != "" {
		callbackSource = relay.NewRemoteSource(cfg.Relay.ForwardURL, nil)
	}

	var musicClient music.Client
	if cfg.Music.Enabled() {
		musicClient = music.NewSunoClient(cfg.Music, nil)
		log.Info("music vendor configured", "baseURL", cfg.Music.BaseURL, "model", cfg.Music.Model)
	} else {
		log.Info("MUSIC_API_KEY not configured, music tasks will use the placeholder track")
	}
	requestor := music.NewRequestor(musicClient, callbackSource, music.OptionsFromConfig(cfg.Music))
	defer requestor.Shutdown()

	diaryService := diary.NewService(store, chatService, requestor)
	workflow := diary.NewWorkflow(chatService, summarizer, requestor, diaryService)

	relayOpts := []relay.Option{}
	if cfg.Relay.ForwardURL != "" {
		relayOpts = append(relayOpts, relay.WithForward(cfg.Relay.ForwardURL, nil))
	}
	relayHandler := relay.NewHandler(callbacks, relayOpts...)

	deps := handler.Deps{
		Personas:       personaStore,
		Chat:           chatService,
		Diaries:        diaryService,
		Workflow:       workflow,
		Tasks:          requestor,
		Relay:          relayHandler,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if aiService != nil {
		deps.Companion = aiService
	}

	// Preferences feed back into the companion prompt.
	chatService.SetPreferenceSource(diaryService)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runServer(gctx, newServer(cfg.Server.Addr, handler.NewRouter(deps)), "api")
	})
	if cfg.Relay.Addr != "" {
		g.Go(func() error {
			return runServer(gctx, newServer(cfg.Relay.Addr, handler.NewRelayRouter(relayHandler)), "relay")
		})
	}

	return g.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func runServer(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "server", name, "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
