package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory represents specific debug categories for targeted debugging.
// Each subsystem of the camera firmware gets its own category so operators
// can narrow verbose logging to the component they are chasing.
type DebugCategory string

const (
	DebugHAL      DebugCategory = "hal"
	DebugChannel  DebugCategory = "channel"
	DebugFanout   DebugCategory = "fanout"
	DebugMP4      DebugCategory = "mp4"
	DebugRTSP     DebugCategory = "rtsp"
	DebugUDP      DebugCategory = "udp"
	DebugOSD      DebugCategory = "osd"
	DebugNight    DebugCategory = "night"
	DebugAudio    DebugCategory = "audio"
	DebugRecord   DebugCategory = "record"
	DebugAll      DebugCategory = "all"
)

var allCategories = []DebugCategory{
	DebugHAL, DebugChannel, DebugFanout, DebugMP4, DebugRTSP,
	DebugUDP, DebugOSD, DebugNight, DebugAudio, DebugRecord,
}

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Global logger instance
var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger wraps slog.Logger with category-based debugging
type Logger struct {
	*slog.Logger
	config *Config
	file   *os.File
}

// NewConfig creates a new logger configuration with defaults
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatText,
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	} else if cfg.Format == FormatText && isatty.IsTerminal(os.Stdout.Fd()) {
		// Wrap stdout so ANSI sequences survive on platforms (e.g. legacy
		// Windows consoles, or the vendor cross-toolchain's busybox tty)
		// that need explicit colorable translation.
		writer = colorable.NewColorableStdout()
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.Level.ToSlogLevel()}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
		file:   file,
	}, nil
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		for _, cat := range allCategories {
			c.EnabledCategories[cat] = true
		}
		return
	}
	c.EnabledCategories[category] = true
}

// IsCategoryEnabled checks if a debug category is enabled
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// IsDebugEnabled checks if any debug category is enabled
func (c *Config) IsDebugEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.EnabledCategories) > 0
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) logCategory(cat DebugCategory, msg string, args ...any) {
	if l.config.IsCategoryEnabled(cat) {
		args = append([]any{"category", string(cat)}, args...)
		l.Debug(msg, args...)
	}
}

// DebugHAL logs vendor HAL call details when the hal category is enabled.
func (l *Logger) DebugHAL(msg string, args ...any) { l.logCategory(DebugHAL, msg, args...) }

// DebugChannel logs channel registry transitions.
func (l *Logger) DebugChannel(msg string, args ...any) { l.logCategory(DebugChannel, msg, args...) }

// DebugFanout logs per-client broadcast decisions.
func (l *Logger) DebugFanout(msg string, args ...any) { l.logCategory(DebugFanout, msg, args...) }

// DebugMP4 logs fragment construction details.
func (l *Logger) DebugMP4(msg string, args ...any) { l.logCategory(DebugMP4, msg, args...) }

// DebugRTSP logs RTSP session state transitions.
func (l *Logger) DebugRTSP(msg string, args ...any) { l.logCategory(DebugRTSP, msg, args...) }

// DebugUDP logs UDP streamer fragmentation.
func (l *Logger) DebugUDP(msg string, args ...any) { l.logCategory(DebugUDP, msg, args...) }

// DebugOSD logs compositor render/attach decisions.
func (l *Logger) DebugOSD(msg string, args ...any) { l.logCategory(DebugOSD, msg, args...) }

// DebugNight logs day/night sampling and transitions.
func (l *Logger) DebugNight(msg string, args ...any) { l.logCategory(DebugNight, msg, args...) }

// DebugAudio logs audio encoder queue/frame accounting.
func (l *Logger) DebugAudio(msg string, args ...any) { l.logCategory(DebugAudio, msg, args...) }

// DebugRecord logs recorder segment rotation and footer decisions.
func (l *Logger) DebugRecord(msg string, args ...any) { l.logCategory(DebugRecord, msg, args...) }

// With returns a new Logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// SetDefault sets the global default logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
	slog.SetDefault(logger.Logger)
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		cfg := NewConfig()
		l, err := New(cfg)
		if err != nil {
			l = &Logger{Logger: slog.Default(), config: cfg}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs at Info level using the default logger
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at Error level using the default logger
func Error(msg string, args ...any) { Default().Error(msg, args...) }
