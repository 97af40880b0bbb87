package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"execdash/api/internal/app"
	"execdash/api/internal/config"
	"execdash/api/internal/github"
	"execdash/api/internal/logger"
	"execdash/api/internal/session"
	"execdash/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	logger.Init()
	defer logger.Sync()

	cfg := config.Load()
	if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" || cfg.GitHubToken == "" {
		logger.Log.Fatal("GITHUB_OWNER, GITHUB_REPO and GITHUB_TOKEN are required")
	}

	contents := github.New(github.Config{
		APIBase:    cfg.GitHubAPIBase,
		Owner:      cfg.GitHubOwner,
		Repo:       cfg.GitHubRepo,
		Branch:     cfg.GitHubBranch,
		Token:      cfg.GitHubToken,
		APIVersion: cfg.GitHubAPIVersion,
	})

	sessions := newSessionStore(cfg)
	defer sessions.Close()

	svc := app.New(cfg,
		store.NewIndexStore(contents, cfg.DataRoot),
		store.NewDocumentStore(contents, cfg.DataRoot),
		store.NewUsersStore(contents, cfg.DataRoot),
		sessions,
	)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      app.NewHTTPServer(svc, cfg).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("api listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("shutdown failed", zap.Error(err))
	}
}

// newSessionStore prefers Redis when configured and falls back to the
// in-process store otherwise.
func newSessionStore(cfg config.Config) session.Store {
	if cfg.RedisURL == "" {
		logger.Log.Info("REDIS_URL not set, using in-memory session store")
		return session.NewMemoryStore()
	}
	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis session store", zap.Error(err))
	}
	logger.Log.Info("using redis session store")
	return sessions
}
