// Package logging provides component-scoped structured logging with file rotation.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field (shorthand for structured logging)
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Config holds logger configuration
type Config struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error
	File       string `mapstructure:"file"`         // log file path (empty = ~/.config/embress/logs/embress.log)
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // max size before rotation (default: 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of rotated files to keep (default: 5)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep rotated files (0 = forever)
	Console    bool   `mapstructure:"console"`      // also write to stdout
}

// DefaultConfig returns default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		File:       "",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Console:    true,
	}
}

// Logger wraps a zerolog logger with the component/message call style used across the codebase.
type Logger struct {
	mu       sync.RWMutex
	zl       zerolog.Logger
	level    Level
	filePath string
	closer   io.Closer
}

// New creates a new Logger with the given configuration
func New(cfg Config) (*Logger, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}

	if cfg.File == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("unable to get config dir: %w", err)
		}
		cfg.File = filepath.Join(configDir, "embress", "logs", "embress.log")
	}

	if strings.HasPrefix(cfg.File, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("unable to get home dir: %w", err)
		}
		cfg.File = filepath.Join(home, cfg.File[1:])
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	writers := []io.Writer{rotator}
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	level := ParseLevel(cfg.Level)
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level.zerolog()).
		With().Timestamp().Logger()

	return &Logger{
		zl:       zl,
		level:    level,
		filePath: cfg.File,
		closer:   rotator,
	}, nil
}

// NewWriter creates a Logger that writes JSON lines to w. Used by tests and tools
// that capture output.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{
		zl:    zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger(),
		level: level,
	}
}

func consoleWriter(f *os.File) io.Writer {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	return f
}

func (l *Logger) event(level Level, component string) *zerolog.Event {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()

	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = zl.Debug()
	case LevelInfo:
		ev = zl.Info()
	case LevelWarn:
		ev = zl.Warn()
	default:
		ev = zl.Error()
	}
	if ev == nil {
		return nil
	}
	return ev.Str("component", component)
}

func (l *Logger) log(level Level, component, msg string, err error, fields ...Field) {
	ev := l.event(level, component)
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(component, msg string, fields ...Field) {
	l.log(LevelDebug, component, msg, nil, fields...)
}

// Info logs an info message
func (l *Logger) Info(component, msg string, fields ...Field) {
	l.log(LevelInfo, component, msg, nil, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(component, msg string, fields ...Field) {
	l.log(LevelWarn, component, msg, nil, fields...)
}

// Error logs an error message with an error
func (l *Logger) Error(component, msg string, err error, fields ...Field) {
	l.log(LevelError, component, msg, err, fields...)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// FilePath returns the log file path
func (l *Logger) FilePath() string {
	return l.filePath
}

// Nop returns a no-operation logger that discards all output
func Nop() *Logger {
	return &Logger{
		zl:    zerolog.Nop(),
		level: LevelError + 1,
	}
}
