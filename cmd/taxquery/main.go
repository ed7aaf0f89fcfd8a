package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"taxquery-backend/internal/analytics"
	"taxquery-backend/internal/config"
	"taxquery-backend/internal/dispatch"
	"taxquery-backend/internal/intent"
	"taxquery-backend/internal/tui"
)

func main() {
	cfg := config.Load()
	baseURL := flag.String("base-url", cfg.AnalyticsBaseURL, "analytics service base URL")
	timeout := flag.Duration("timeout", cfg.AnalyticsTimeout, "timeout for each analytics request")
	vocabPath := flag.String("vocabulary", cfg.IntentVocabularyFile, "YAML file replacing the built-in intent vocabulary")
	logPath := flag.String("log-file", "", "write logs to this file (logs are discarded by default)")
	noAltScreen := flag.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	flag.Parse()

	logger, closeLog, err := openLogger(*logPath)
	if err != nil {
		fmt.Println("failed to open log file:", err)
		os.Exit(1)
	}
	defer closeLog()
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	vocab, err := intent.LoadVocabulary(*vocabPath)
	if err != nil {
		fmt.Println("failed to load intent vocabulary:", err)
		os.Exit(1)
	}

	analyst := analytics.NewClient(*baseURL, *timeout, logger)
	engine := dispatch.New(nil, intent.NewClassifier(vocab), analyst, logger)

	opts := []tea.ProgramOption{}
	if !*noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tui.New(tui.Config{Engine: engine, Endpoint: *baseURL}), opts...)

	if _, err := program.Run(); err != nil {
		fmt.Println("program error:", err)
		os.Exit(1)
	}
}

// openLogger keeps log output off the terminal the program draws on.
func openLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}

