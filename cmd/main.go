package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sachinggsingh/synceditor-relay/config"
	"github.com/sachinggsingh/synceditor-relay/internal/auth"
	"github.com/sachinggsingh/synceditor-relay/internal/exec"
	"github.com/sachinggsingh/synceditor-relay/internal/registry"
	httpx "github.com/sachinggsingh/synceditor-relay/internal/transport/http"
	"github.com/sachinggsingh/synceditor-relay/internal/transport/ws"
	"github.com/sachinggsingh/synceditor-relay/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting relay-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- external collaborators ---
	verifier, err := auth.NewClient(auth.Options{
		URL:     cfg.Auth.VerifyURL,
		Timeout: cfg.Auth.ParsedTimeout(),
	})
	if err != nil {
		log.Fatalf("auth client: %v", err)
	}
	runner, err := exec.NewClient(exec.Options{
		URL:     cfg.Exec.EngineURL,
		Timeout: cfg.Exec.ParsedTimeout(),
	})
	if err != nil {
		log.Fatalf("exec client: %v", err)
	}

	// --- room state & gateway ---
	reg := registry.New(cfg.Room.MaxMembers)
	router := registry.NewRouter(reg)
	wsServer := ws.NewServer(reg, router, verifier, cfg.HTTP.FrontendURL)

	// --- HTTP ---
	handler := httpx.NewHandler(runner)
	mux := httpx.NewRouter(handler, wsServer, httpx.RouterOptions{
		FrontendURL:   cfg.HTTP.FrontendURL,
		Verifier:      verifier,
		JoinPerMinute: cfg.RateLimit.JoinPerMinute,
		APIBurst:      cfg.RateLimit.APIBurst,
		APIWindow:     cfg.RateLimit.ParsedAPIWindow(),
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
