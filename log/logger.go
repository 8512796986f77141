// Package log provides structured logging scoped to a request's
// LoggingContext, adapted from the teacher's run-scoped logger
// (contextual fields baked into a zap core at construction) to the
// resource driver core's per-request correlation model (spec §9):
// instead of a global mutable logging context, callers pass an explicit
// types.LoggingContext and get back a Logger carrying those fields.
package log

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/resourcedriver/types"
)

// Logger is a printf/keys-and-values style logger (zap's SugaredLogger
// convention) carrying a fixed set of contextual fields.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New creates a root Logger with no contextual fields, writing JSON to
// os.Stderr.
func New() *Logger {
	return newWithWriter(os.Stderr)
}

func newWithWriter(w io.Writer) *Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return &Logger{sugar: zap.New(core).Sugar()}
}

// WithOutput returns a new root Logger writing to w instead of stderr.
func WithOutput(w io.Writer) *Logger {
	return newWithWriter(w)
}

// WithContext returns a Logger with ctx's fields attached, in
// deterministic key order so log lines are stable across runs.
func (l *Logger) WithContext(ctx types.LoggingContext) *Logger {
	if len(ctx) == 0 {
		return l
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, ctx[k])
	}
	return &Logger{sugar: l.sugar.With(args...)}
}

// With returns a Logger with additional key/value pairs attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

func (l *Logger) Debugw(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Infow(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
