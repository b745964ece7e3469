// Package logger wraps zerolog with a small typed-field API. Warn and Error
// lines can additionally be folded into a LogCollector that ships them to
// Kafka.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
}

// Logger is cheap to copy through With; every child shares the parent's
// collector slot, so a collector attached later sees all of them.
type Logger struct {
	zl        zerolog.Logger
	component string
	collector *atomic.Pointer[LogCollector]
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl, collector: new(atomic.Pointer[LogCollector])}, nil
}

func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), collector: new(atomic.Pointer[LogCollector])}
}

// With returns a child logger tagged with a component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		collector: l.collector,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), "", msg, fields) }
func (l *Logger) Info(msg string, fields ...Field) { l.emit(l.zl.Info(), "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field) { l.emit(l.zl.Warn(), "warn", msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), "error", msg, fields) }

// emit writes the event and, for a non-empty collect level, hands a copy
// of the line to the attached collector.
func (l *Logger) emit(ev *zerolog.Event, collect, msg string, fields []Field) {
	for _, f := range fields {
		f.apply(ev)
	}
	ev.Msg(msg)

	if collect == "" {
		return
	}
	c := l.collector.Load()
	if c == nil {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}
	values := make(map[string]any, len(fields)+1)
	if l.component != "" {
		values["component"] = l.component
	}
	for _, f := range fields {
		values[f.Key] = f.plain()
	}
	c.AddLog(collect, msg, values, caller)
}

// AddCollector starts a collector and attaches it to this logger and every
// logger derived from it. A previously attached collector is flushed.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if old := l.collector.Swap(NewLogCollector(cfg)); old != nil {
		old.Close()
	}
}

// RemoveCollector detaches and flushes the collector.
func (l *Logger) RemoveCollector() {
	if old := l.collector.Swap(nil); old != nil {
		old.Close()
	}
}
