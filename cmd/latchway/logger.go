package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/version"
)

// setupLogger builds the process logger and installs it as the slog default.
func setupLogger(level slog.Level, format string) *slog.Logger {
	logger := slog.New(newLogHandler(os.Stderr, level, format))
	slog.SetDefault(logger)
	return logger
}

func newLogHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "pretty":
		return tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.RFC3339})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
}

// levelFor maps a configured level name to a slog level. debug forces
// LevelDebug.
func levelFor(name string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printStartupBanner(cfg *config.Config) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Latchway %s - Sticky OpenAI-Compatible Gateway\n", version.Version)
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "Proxy API:  http://localhost%s/v1/chat/completions\n", cfg.ServerPort)
	fmt.Fprintf(os.Stderr, "Status:     http://localhost%s/api/status\n", cfg.ServerPort)
	fmt.Fprintf(os.Stderr, "Metrics:    http://localhost%s/metrics\n", cfg.ServerPort)
	fmt.Fprintf(os.Stderr, "Config:     %s\n", cfg.ConfigPath)
	fmt.Fprintf(os.Stderr, "State:      %s (%s)\n", cfg.State.Backend, stateLocation(cfg.State))
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "\n")
}

func stateLocation(s config.StateConfig) string {
	if s.Backend == "redis" {
		return s.RedisURL
	}
	return s.Path
}
