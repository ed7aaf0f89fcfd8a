package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxquery-backend/internal/analytics"
	"taxquery-backend/internal/config"
	"taxquery-backend/internal/db"
	"taxquery-backend/internal/events"
	"taxquery-backend/internal/intent"
	"taxquery-backend/internal/server"
	"taxquery-backend/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	for _, w := range cfg.Warnings {
		slog.Warn(w)
	}

	slog.Info("taxquery server starting", "port", cfg.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	vocab, err := intent.LoadVocabulary(cfg.IntentVocabularyFile)
	if err != nil {
		slog.Error("failed to load intent vocabulary", "error", err)
		os.Exit(1)
	}

	analyst := analytics.NewClient(cfg.AnalyticsBaseURL, cfg.AnalyticsTimeout, slog.Default())

	deps := server.Deps{
		Sessions:   store.NewMemoryStore(cfg.SessionTTL),
		Classifier: intent.NewClassifier(vocab),
		Analyst:    analyst,
		Logger:     slog.Default(),
	}

	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, slog.Default())
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.Info("database connected")

		if cfg.RunMigrations {
			if err := database.RunMigrations(ctx, migrations(cfg.MigrationsDir)); err != nil {
				slog.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
			slog.Info("database migrations completed")
		}
		deps.Database = database
		deps.Transcripts = store.NewDatabaseStore(database)
	} else {
		slog.Warn("DB_URL not provided, storing transcripts on disk", "dir", cfg.TranscriptDir)
		deps.Transcripts = store.NewFileTranscriptStore(cfg.TranscriptDir)
	}

	if cfg.NatsURL != "" {
		pub, err := events.NewPublisher(ctx, cfg.NatsURL, cfg.NatsToken, cfg.NatsSubjectPrefix, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		deps.Publisher = pub
		slog.Info("NATS connected", "url", cfg.NatsURL, "prefix", cfg.NatsSubjectPrefix)
	}

	s, err := server.NewServer(cfg, deps)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if cfg.SessionTTL > 0 {
		go deps.Sessions.RunSweeper(ctx, cfg.SessionTTL/2)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()
	slog.Info("taxquery server ready", "addr", srv.Addr, "analytics", cfg.AnalyticsBaseURL)

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
	slog.Info("taxquery server stopped")
}

func migrations(dir string) fs.FS {
	if dir == "" {
		return db.EmbeddedMigrations()
	}
	return os.DirFS(dir)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
