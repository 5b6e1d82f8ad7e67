package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"murmur/internal/app"
	"murmur/internal/classify"
	"murmur/internal/config"
	"murmur/internal/db"
	"murmur/internal/record"
	"murmur/internal/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		os.Exit(1)
	}

	logger, logFile := newLogger(cfg)
	if logFile != nil {
		defer logFile.Close()
	}

	store, err := db.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open transcript store", "err", err)
		runBootError(fmt.Errorf("open transcript store: %w", err))
		return
	}
	defer store.Close()

	recorder := record.New(
		record.PortAudioDevice{},
		record.NewGate(record.SystemAuthorizer{}),
		cfg.Record.Dir,
		logger,
	)

	transcriber := transcribe.New(transcribe.Config{
		Endpoint: cfg.API.TranscribeURL,
		APIKey:   cfg.API.Key,
		Model:    cfg.API.TranscribeModel,
		Language: cfg.API.Language,
		Timeout:  cfg.API.UploadTimeout,
	})

	classifier := classify.New(classify.Config{
		Endpoint: cfg.API.ChatURL,
		APIKey:   cfg.API.Key,
		Model:    cfg.API.ChatModel,
		Timeout:  cfg.API.ChatTimeout,
	})

	model := app.New(app.Deps{
		Recorder:     recorder,
		Transcriber:  transcriber,
		Classifier:   classifier,
		Store:        store,
		HistoryLimit: cfg.History.Limit,
		Compressed:   cfg.Record.Compressed,
		CredErr:      cfg.Validate(),
		Logger:       logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("program exited", "err", err)
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		os.Exit(1)
	}
}

// runBootError shows the startup failure in the TUI so it is not lost behind
// the alternate screen.
func runBootError(bootErr error) {
	p := tea.NewProgram(app.NewBootError(bootErr), tea.WithAltScreen())
	_, _ = p.Run()
	fmt.Fprintf(os.Stderr, "murmur: %v\n", bootErr)
	os.Exit(1)
}

// newLogger writes structured logs to a file next to the database; stdout
// belongs to the TUI. Logging degrades to stderr when the file is unusable.
func newLogger(cfg config.Config) (*log.Logger, *os.File) {
	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	path := filepath.Join(filepath.Dir(cfg.Store.Path), "murmur.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			logger := log.NewWithOptions(f, log.Options{Level: level, ReportTimestamp: true})
			return logger, f
		}
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Level: level, ReportTimestamp: true})
	return logger, nil
}
