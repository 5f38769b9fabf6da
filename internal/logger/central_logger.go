package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below slog.LevelDebug so SQL tracing stays off by default.
const LevelTrace = slog.Level(-8)

type contextKey string

// TraceIDKey is the context key carrying a per-operation trace identifier.
const TraceIDKey contextKey = "trace_id"

// WithTraceID returns a context carrying the given trace id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// CentralLogger owns the output handlers and hands out module loggers.
type CentralLogger struct {
	config       *LoggingConfig
	timezone     *time.Location
	baseHandler  slog.Handler
	file         *os.File
	moduleLevels map[string]slog.Level
	mu           sync.Mutex
}

var (
	globalMu     sync.RWMutex
	globalLogger *CentralLogger
)

// SetGlobal installs the process-wide logger used by Global.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = cl
}

// Global returns the process-wide logger, falling back to console text at info level.
func Global() Logger {
	globalMu.RLock()
	cl := globalLogger
	globalMu.RUnlock()
	if cl == nil {
		return NewSlogLogger(os.Stderr, LogLevelInfo, nil)
	}
	return cl.root()
}

// NewCentralLogger builds the console and file handlers described by cfg.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		cfg = &LoggingConfig{}
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:       cfg,
		timezone:     tz,
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseSlogLevel(level)
	}

	if err := cl.createBaseHandler(); err != nil {
		return nil, err
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

func (cl *CentralLogger) createBaseHandler() error {
	var handlers []slog.Handler

	if cl.config.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseSlogLevel(cl.config.Console.Level), cl.timezone))
	}

	if cl.config.FileOutput.Enabled {
		if err := ensureFileDirectory(cl.config.FileOutput.Path); err != nil {
			return err
		}
		f, err := os.OpenFile(cl.config.FileOutput.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cl.config.FileOutput.Path, err)
		}
		cl.file = f
		handlers = append(handlers, newJSONHandler(f, parseSlogLevel(cl.config.FileOutput.Level), cl.timezone))
	}

	switch len(handlers) {
	case 0:
		cl.baseHandler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		cl.baseHandler = handlers[0]
	default:
		cl.baseHandler = newMultiWriterHandler(handlers...)
	}
	return nil
}

func ensureFileDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return nil
}

func (cl *CentralLogger) root() *moduleLogger {
	return &moduleLogger{
		logger:   slog.New(cl.baseHandler),
		level:    parseSlogLevel(cl.config.DefaultLevel),
		timezone: cl.timezone,
		central:  cl,
	}
}

// Module returns a logger scoped to name. Per-module levels from the
// configuration override the default level.
func (cl *CentralLogger) Module(name string) Logger {
	return cl.root().Module(name)
}

// Flush syncs the log file, if any.
func (cl *CentralLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Sync()
}

// Close flushes and closes the log file. Subsequent logging goes nowhere.
func (cl *CentralLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	_ = cl.file.Sync()
	err := cl.file.Close()
	cl.file = nil
	return err
}

func (cl *CentralLogger) levelFor(module string, fallback slog.Level) slog.Level {
	if cl == nil {
		return fallback
	}
	if lvl, ok := cl.moduleLevels[module]; ok {
		return lvl
	}
	// "datastore.gorm" inherits from "datastore"
	if i := strings.LastIndexByte(module, '.'); i > 0 {
		return cl.levelFor(module[:i], fallback)
	}
	return fallback
}

// NewSlogLogger returns a Logger writing text to w. A nil writer means stderr,
// a nil timezone means local time.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stderr
	}
	if tz == nil {
		tz = time.Local
	}
	lvl := parseSlogLevel(string(level))
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, lvl, tz)),
		level:    lvl,
		timezone: tz,
	}
}

func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(tz, false),
	})
}

func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(tz, true),
	})
}

func replaceAttr(tz *time.Location, keepTime bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if !keepTime {
				return slog.Attr{}
			}
			return slog.String(slog.TimeKey, a.Value.Time().In(tz).Format(time.RFC3339))
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
				return slog.String(slog.LevelKey, "TRACE")
			}
		}
		return a
	}
}

func parseSlogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
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

func toSlogLevel(level LogLevel) slog.Level {
	return parseSlogLevel(string(level))
}

// moduleLogger implements Logger on top of a slog.Logger
type moduleLogger struct {
	module   string
	logger   *slog.Logger
	level    slog.Level
	timezone *time.Location
	fields   []Field
	central  *CentralLogger
}

func (m *moduleLogger) Module(name string) Logger {
	full := name
	if m.module != "" {
		full = m.module + "." + name
	}
	return &moduleLogger{
		module:   full,
		logger:   m.logger,
		level:    m.central.levelFor(full, m.level),
		timezone: m.timezone,
		fields:   slices.Clone(m.fields),
		central:  m.central,
	}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(LevelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.log(toSlogLevel(level), msg, fields)
}

func (m *moduleLogger) With(fields ...Field) Logger {
	clone := *m
	clone.fields = slices.Concat(m.fields, fields)
	return &clone
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return m
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		return m.With(String(traceIDKey, traceID))
	}
	return m
}

func (m *moduleLogger) Flush() error {
	if m.central != nil {
		return m.central.Flush()
	}
	return nil
}

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if level < m.level {
		return
	}
	ctx := context.Background()
	if !m.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(m.fields)+len(fields)+1)
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range m.fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	m.logger.LogAttrs(ctx, level, msg, attrs...)
}

func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	case nil:
		return slog.Any(f.Key, nil)
	default:
		return slog.Any(f.Key, v)
	}
}
