package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"

	"virtual_sensors/config"
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	base    = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.DateTime}))
	logFile *os.File
)

// Init initializes the logging system using configuration
func Init(cfg *config.Config) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	logPath := filepath.Join(cwd, cfg.Logging.LogFile)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	level.Set(ParseLevel(cfg.Logging.LogLevel))

	handlers := fanout{slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})}
	if cfg.Logging.LogToConsole {
		handlers = append(handlers, tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.DateTime}))
	}

	mu.Lock()
	logFile = file
	base = slog.New(handlers)
	mu.Unlock()

	Printf("=== Session started at %s ===", time.Now().Format(time.DateTime))
	Printf("Log file: %s", logPath)
	Printf("Log level: %s", cfg.Logging.LogLevel)
	LogDivider()
	return nil
}

// Close closes the log file
func Close() error {
	mu.Lock()
	file := logFile
	logFile = nil
	mu.Unlock()
	if file == nil {
		return nil
	}

	LogDivider()
	Printf("=== Session ended at %s ===", time.Now().Format(time.DateTime))

	mu.Lock()
	base = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.DateTime}))
	mu.Unlock()
	return file.Close()
}

// ParseLevel maps a configured level name to slog; unknown names default to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the current structured logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a structured logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

func logf(lvl slog.Level, format string, v ...any) {
	l := L()
	if !l.Enabled(context.Background(), lvl) {
		return
	}
	l.Log(context.Background(), lvl, strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

// Printf prints formatted text to log at info level
func Printf(format string, v ...any) {
	logf(slog.LevelInfo, format, v...)
}

// Println prints a line to log at info level
func Println(v ...any) {
	logf(slog.LevelInfo, "%s", fmt.Sprintln(v...))
}

// Debugf prints formatted debug text
func Debugf(format string, v ...any) {
	logf(slog.LevelDebug, format, v...)
}

// Warnf prints formatted warning text
func Warnf(format string, v ...any) {
	logf(slog.LevelWarn, format, v...)
}

// Errorf prints formatted error text
func Errorf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
}

// Fatalf prints formatted fatal error and exits
func Fatalf(format string, v ...any) {
	logf(slog.LevelError, "FATAL: "+format, v...)
	Close()
	os.Exit(1)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v", command, args[1:])
		return
	}
	Printf("Command executed: %s", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println(strings.Repeat("-", 60))
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	if details != "" {
		Printf("%s: %s - %s", operation, status, details)
		return
	}
	Printf("%s: %s", operation, status)
}

// LogProgress logs progress information
func LogProgress(current, total int, item string) {
	Printf("Progress: [%d/%d] %s", current, total, item)
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	mu.RLock()
	defer mu.RUnlock()
	if logFile != nil {
		return logFile.Name()
	}
	return "result.log"
}

// fanout writes every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
