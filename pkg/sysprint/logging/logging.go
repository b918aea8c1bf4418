// Package logging provides component loggers with file rotation for sysprint.
// The CLI, the progress view and the sysprintd daemon share this package.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("scanner")
//	logger.Info("scan started", "roots", roots)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to their log levels.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// TUIMode suppresses console output while the progress view owns the
	// terminal. Warnings and errors are kept in a Buffer instead; see Recent.
	TUIMode bool
}

// Logger wraps charmbracelet/log with component identification.
// It writes to the log file and, optionally, to stderr.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	buffer    *Buffer
	component string
	context   []interface{}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	emit(l.file, level, msg, args...)
	if l.console != nil {
		emit(l.console, level, msg, args...)
	}
	if l.buffer != nil && level >= LevelWarn {
		l.buffer.Add(Entry{
			Time:      time.Now(),
			Level:     level,
			Component: l.component,
			Message:   formatMessage(msg, append(append([]interface{}(nil), l.context...), args...)),
		})
	}
}

func emit(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a new logger with additional key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	child := &Logger{
		file:      l.file.With(args...),
		buffer:    l.buffer,
		component: l.component,
		context:   append(append([]interface{}(nil), l.context...), args...),
	}
	if l.console != nil {
		child.console = l.console.With(args...)
	}
	return child
}

type state struct {
	mu             sync.RWMutex
	initialized    bool
	writer         *RotatingWriter
	level          Level
	components     map[string]Level
	loggers        map[string]*Logger
	consoleEnabled bool
	consoleLevel   Level
	buffer         *Buffer
}

var global = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
}

// Init initializes the logging system. Before Init is called, all loggers
// write to io.Discard. Calling Init again replaces the previous configuration.
func Init(cfg Config) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.initialized && global.writer != nil {
		if err := global.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
		global.writer = nil
	}
	global.components = make(map[string]Level)

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	global.level = level

	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		global.components[comp] = parsed
	}

	global.buffer = nil
	if cfg.TUIMode {
		global.buffer = NewBuffer(DefaultBufferSize)
	}

	global.consoleEnabled = false
	if cfg.ConsoleLevel != "" && !cfg.TUIMode {
		consoleLevel, err := ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		global.consoleLevel = consoleLevel
		global.consoleEnabled = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}
	global.writer = writer
	global.initialized = true

	// Loggers handed out earlier are updated in place so package-level
	// references pick up the new sinks.
	for component, logger := range global.loggers {
		*logger = *newLogger(component)
	}

	return nil
}

// Get returns the logger for a component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	logger, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return logger
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if logger, ok := global.loggers[component]; ok {
		return logger
	}

	logger = newLogger(component)
	global.loggers[component] = logger
	return logger
}

// newLogger must be called with global.mu held.
func newLogger(component string) *Logger {
	level := global.level
	if compLevel, ok := global.components[component]; ok {
		level = compLevel
	}

	if !global.initialized {
		return &Logger{
			file: log.NewWithOptions(io.Discard, log.Options{
				Level:  level.charm(),
				Prefix: component,
			}),
			component: component,
		}
	}

	logger := &Logger{
		file: log.NewWithOptions(global.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		buffer:    global.buffer,
		component: component,
	}

	if global.consoleEnabled {
		logger.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           global.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}

	return logger
}

// Close flushes and closes the log file. Existing loggers discard their
// output until Init is called again.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.initialized {
		return nil
	}

	if global.writer != nil {
		if err := global.writer.Close(); err != nil {
			return fmt.Errorf("closing log writer: %w", err)
		}
		global.writer = nil
	}

	global.initialized = false
	global.buffer = nil
	global.components = make(map[string]Level)
	for component, logger := range global.loggers {
		*logger = *newLogger(component)
	}

	return nil
}

// Recent returns up to n of the newest warnings and errors captured in
// TUI mode, oldest first. It returns nil outside TUI mode.
func Recent(n int) []Entry {
	global.mu.RLock()
	buf := global.buffer
	global.mu.RUnlock()
	if buf == nil {
		return nil
	}
	return buf.Last(n)
}

// DefaultLogPath returns $XDG_STATE_HOME/sysprint/sysprint.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "sysprint", "sysprint.log")
}
