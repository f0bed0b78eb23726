// Command relay runs the vendor callback relay on its own.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/mood-diary/backend/internal/config"
	"github.com/zhouzirui/mood-diary/backend/internal/handler"
	"github.com/zhouzirui/mood-diary/backend/internal/logging"
	"github.com/zhouzirui/mood-diary/backend/internal/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	logging.Setup(cfg.Log.Level)

	addr := cfg.Relay.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	var opts []relay.Option
	if cfg.Relay.ForwardURL != "" {
		opts = append(opts, relay.WithForward(cfg.Relay.ForwardURL, nil))
		log.Info("forwarding vendor callbacks", "upstream", cfg.Relay.ForwardURL)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.NewRelayRouter(relay.NewHandler(relay.NewStore(), opts...)),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("callback relay listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("relay server error", "err", err)
	}
}
