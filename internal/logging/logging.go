package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// Logger writes leveled log lines to a rotating file and stdout.
type Logger struct {
	loggers map[Level]*log.Logger
	level   Level
}

// Options configures log rotation.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      Level
}

// New creates a Logger writing to both the rotated file and stdout.
func New(opts Options) (*Logger, error) {
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	w := io.MultiWriter(rotator, os.Stdout)
	loggers := make(map[Level]*log.Logger, len(levelNames))
	for level, name := range levelNames {
		loggers[level] = log.New(w, fmt.Sprintf("[%s] ", name), log.LstdFlags)
	}

	return &Logger{loggers: loggers, level: opts.Level}, nil
}

// NewDiscard returns a logger that drops everything. Used in tests.
func NewDiscard() *Logger {
	loggers := make(map[Level]*log.Logger, len(levelNames))
	for level := range levelNames {
		loggers[level] = log.New(io.Discard, "", 0)
	}
	return &Logger{loggers: loggers, level: ERROR}
}

func (l *Logger) Debug(format string, v ...any) {
	if l.level <= DEBUG {
		l.loggers[DEBUG].Printf(format, v...)
	}
}

func (l *Logger) Info(format string, v ...any) {
	if l.level <= INFO {
		l.loggers[INFO].Printf(format, v...)
	}
}

func (l *Logger) Warn(format string, v ...any) {
	if l.level <= WARN {
		l.loggers[WARN].Printf(format, v...)
	}
}

func (l *Logger) Error(format string, v ...any) {
	if l.level <= ERROR {
		l.loggers[ERROR].Printf(format, v...)
	}
}

// ParseLevel maps a level name to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}
