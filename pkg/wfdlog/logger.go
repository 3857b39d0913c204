// Package wfdlog provides the sink's structured operational logger: a
// thin wrapper over log/slog with debug-category gating, generalized
// from the category-gated RTP/NAL/track debug logger used elsewhere
// in this codebase's lineage, re-themed for the WFD protocol stack.
package wfdlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogLevel is a parseable wrapper around slog.Level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func ParseLevel(s string) (LogLevel, error) {
	switch LogLevel(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return LogLevel(s), nil
	default:
		return "", fmt.Errorf("wfdlog: unknown log level %q", s)
	}
}

func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OutputFormat selects the slog handler.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, FormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("wfdlog: unknown log format %q", s)
	}
}

// Category gates a set of Debug* helpers independently of the overall
// level, so a noisy subsystem can be enabled without drowning the rest
// of the log in debug output.
type Category string

const (
	CategoryRTSP       Category = "rtsp"
	CategoryRTCP       Category = "rtcp"
	CategoryTS         Category = "ts"
	CategoryNAL        Category = "nal"
	CategoryDispatcher Category = "dispatcher"
	CategoryDecoder    Category = "decoder"
	CategorySync       Category = "sync"
	CategorySession    Category = "session"
	CategoryAll        Category = "all"
)

// Config controls logger construction.
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[Category]bool
	mu                sync.RWMutex
}

func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatText,
		EnabledCategories: make(map[Category]bool),
	}
}

func (c *Config) EnableCategory(cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EnabledCategories[cat] = true
}

func (c *Config) IsCategoryEnabled(cat Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.EnabledCategories[CategoryAll] {
		return true
	}
	return c.EnabledCategories[cat]
}

// Logger wraps *slog.Logger with category-gated debug helpers.
type Logger struct {
	*slog.Logger
	config *Config
	file   *os.File
}

// New builds a Logger from Config, opening OutputFile if set.
func New(cfg *Config) (*Logger, error) {
	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("wfdlog: open output file: %w", err)
		}
		w = f
		file = f
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.ToSlogLevel()}
	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
		file:   file,
	}, nil
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) IsDebugEnabled(cat Category) bool {
	return l.config.IsCategoryEnabled(cat)
}

func (l *Logger) debugCategory(cat Category, msg string, args ...any) {
	if l.config.IsCategoryEnabled(cat) {
		l.Debug(msg, args...)
	}
}

func (l *Logger) DebugRTSP(msg string, args ...any)       { l.debugCategory(CategoryRTSP, msg, args...) }
func (l *Logger) DebugRTCP(msg string, args ...any)       { l.debugCategory(CategoryRTCP, msg, args...) }
func (l *Logger) DebugTS(msg string, args ...any)         { l.debugCategory(CategoryTS, msg, args...) }
func (l *Logger) DebugNAL(msg string, args ...any)        { l.debugCategory(CategoryNAL, msg, args...) }
func (l *Logger) DebugDispatcher(msg string, args ...any) { l.debugCategory(CategoryDispatcher, msg, args...) }
func (l *Logger) DebugDecoder(msg string, args ...any)    { l.debugCategory(CategoryDecoder, msg, args...) }
func (l *Logger) DebugSync(msg string, args ...any)       { l.debugCategory(CategorySync, msg, args...) }
func (l *Logger) DebugSession(msg string, args ...any)    { l.debugCategory(CategorySession, msg, args...) }

// DebugNALUnit logs a NAL unit's classification without the raw bytes.
func (l *Logger) DebugNALUnit(naluType byte, size int, fragmented bool) {
	if !l.config.IsCategoryEnabled(CategoryNAL) {
		return
	}
	l.Debug("nal unit", "type", nalTypeName(naluType), "size", size, "fragmented", fragmented)
}

func nalTypeName(t byte) string {
	switch t {
	case 1:
		return "non-idr-slice"
	case 5:
		return "idr-slice"
	case 6:
		return "sei"
	case 7:
		return "sps"
	case 8:
		return "pps"
	case 9:
		return "aud"
	default:
		return fmt.Sprintf("type-%d", t)
	}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config, file: l.file}
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
	defaultMu     sync.Mutex
)

// SetDefault installs the package-level default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the package-level logger, lazily building an
// info/text/stdout logger on first use.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger != nil {
		return defaultLogger
	}
	defaultOnce.Do(func() {
		l, _ := New(NewConfig())
		defaultLogger = l
	})
	return defaultLogger
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
