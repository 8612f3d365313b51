// Package logging provides the indexer's structured logging wrapper around
// log/slog, matching the thin compatibility-layer style the rest of the
// ecosystem uses around its own logging packages.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the type every package in this module accepts and returns.
type Logger = *slog.Logger

const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
)

var root Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Root returns the process-wide default logger.
func Root() Logger { return root }

// SetDefault installs l as the process-wide default logger.
func SetDefault(l Logger) { root = l }

// New builds a JSON logger at the given level, optionally also writing to a
// rotating log file when logFile is non-empty.
func New(levelName string, logFile string) (Logger, error) {
	level, err := LevelFromString(levelName)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	if logFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h), nil
}

// LevelFromString parses the CLI --log-level flag value.
func LevelFromString(s string) (slog.Level, error) {
	switch s {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, &InvalidLevelError{Value: s}
	}
}

// InvalidLevelError is returned by LevelFromString for an unrecognised level.
type InvalidLevelError struct{ Value string }

func (e *InvalidLevelError) Error() string {
	return "invalid log level: " + e.Value
}

// WithBlock returns a child logger tagged with the given block height, the
// attribute every indexer log line about a specific block carries.
func WithBlock(l Logger, height int64) Logger {
	return l.With("block_height", height)
}

// WithEndpoint returns a child logger tagged with the RPC endpoint label
// used across preprocessing metrics and logs.
func WithEndpoint(l Logger, endpoint string) Logger {
	return l.With("node_endpoint", endpoint)
}

// Discard returns a logger that drops everything, used in tests.
func Discard() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
