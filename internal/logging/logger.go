// Package logging writes one JSON object per line. Records always open with
// time, level and msg, followed by the logger's bound fields and then the
// call's fields in the order they were given.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"idlegame/engine/internal/config"
)

// RequestIDField is the structured field carrying per-request identifiers.
const RequestIDField = "request_id"

// Level orders record severities.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "info"
	}
	return levelNames[l]
}

// ParseLevel reads IDLE_LOG_LEVEL style values. Blank selects info.
func ParseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	for i, candidate := range levelNames {
		if candidate == name {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("logging: unknown level %q", raw)
}

// Field is one key/value pair on a record.
type Field struct {
	Key   string
	Value any
}

// String, Int, Uint64 and Bool wrap a typed value.
func String(key, value string) Field { return Field{key, value} }

func Int(key string, value int) Field { return Field{key, value} }

func Uint64(key string, value uint64) Field { return Field{key, value} }

func Bool(key string, value bool) Field { return Field{key, value} }

// Duration renders d with time.Duration.String.
func Duration(key string, d time.Duration) Field { return Field{key, d.String()} }

// Error records err under "error"; a nil err is written as null.
func Error(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

// Sink is an output that can be flushed.
type Sink interface {
	io.Writer
	Sync() error
}

// Logger is safe for concurrent use. Derived loggers share their parent's sink
// and lock.
type Logger struct {
	mu     *sync.Mutex
	floor  Level
	sink   Sink
	now    func() time.Time
	fields []Field
}

// sinks fans one record out to several outputs.
type sinks []Sink

func (s sinks) Write(p []byte) (int, error) {
	for _, sink := range s {
		if _, err := sink.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (s sinks) Sync() error {
	var first error
	for _, sink := range s {
		if err := sink.Sync(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type flushless struct{ io.Writer }

func (flushless) Sync() error { return nil }

var fallback atomic.Pointer[Logger]

func init() {
	fallback.Store(NewTestLogger())
}

// New builds the daemon logger from cfg: stdout always, plus a rotated file
// when cfg.Path is set. It also becomes the logger returned by L.
func New(cfg config.LoggingConfig) (*Logger, error) {
	floor, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var out sinks
	if strings.TrimSpace(cfg.Path) != "" {
		file, err := newRotatingWriter(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	out = append(out, os.Stdout)
	logger := &Logger{mu: new(sync.Mutex), floor: floor, sink: out, now: time.Now}
	logger = logger.With(String("service", "idled"))
	fallback.Store(logger)
	return logger, nil
}

// NewWriter logs records at or above floor to w.
func NewWriter(w io.Writer, floor Level) *Logger {
	return &Logger{mu: new(sync.Mutex), floor: floor, sink: flushless{w}, now: time.Now}
}

// NewTestLogger discards everything.
func NewTestLogger() *Logger {
	return NewWriter(io.Discard, DebugLevel)
}

// L returns the process-wide logger.
func L() *Logger {
	return fallback.Load()
}

// With returns a logger that adds fields to every record. A key already bound
// is overwritten in place.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		l = L()
	}
	child := *l
	child.fields = append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...)
	for _, f := range fields {
		child.fields = upsert(child.fields, f)
	}
	return &child
}

func upsert(fields []Field, f Field) []Field {
	for i := range fields {
		if fields[i].Key == f.Key {
			fields[i] = f
			return fields
		}
	}
	return append(fields, f)
}

// Sync flushes the underlying sink.
func (l *Logger) Sync() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Sync()
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field) { l.write(InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field) { l.write(WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(ErrorLevel, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if l == nil {
		L().write(level, msg, fields)
		return
	}
	if level < l.floor {
		return
	}
	//1.- Call fields win over bound fields that share a key.
	merged := append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...)
	for _, f := range fields {
		merged = upsert(merged, f)
	}

	var line bytes.Buffer
	line.WriteString(`{"time":`)
	appendValue(&line, l.now().UTC().Format(time.RFC3339Nano))
	line.WriteString(`,"level":`)
	appendValue(&line, level.String())
	line.WriteString(`,"msg":`)
	appendValue(&line, msg)
	for _, f := range merged {
		switch f.Key {
		case "time", "level", "msg":
			continue
		}
		line.WriteByte(',')
		appendValue(&line, f.Key)
		line.WriteByte(':')
		appendValue(&line, f.Value)
	}
	line.WriteString("}\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.sink.Write(line.Bytes())
}

func appendValue(buf *bytes.Buffer, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprintf("!marshal: %v", err))
	}
	buf.Write(encoded)
}

type ctxKey struct{}

// ContextWithLogger attaches logger to ctx for FromContext.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or L.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return logger
		}
	}
	return L()
}
