package log

import (
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

// Filter decides, call by call, whether a rate-limited record is written.
type Filter interface {
	allow() bool
}

// Limiter lets records through at a steady rate, allowing bursts of up to
// burst records. A nil Limiter lets everything through.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter allows one record per interval after an initial burst.
func NewLimiter(interval time.Duration, burst int) *Limiter {
	return &Limiter{l: rate.NewLimiter(rate.Every(interval), burst)}
}

func (l *Limiter) allow() bool {
	return l == nil || l.l.Allow()
}

type when bool

func (w when) allow() bool { return bool(w) }

func writeBy(f Filter, level slog.Level, msg string, ctx []interface{}) {
	if f == nil || f.allow() {
		Root().Write(level, msg, ctx...)
	}
}

// TraceBy writes a trace record when f allows it.
func TraceBy(f Filter, msg string, ctx ...interface{}) { writeBy(f, LevelTrace, msg, ctx) }

// DebugBy writes a debug record when f allows it.
func DebugBy(f Filter, msg string, ctx ...interface{}) { writeBy(f, slog.LevelDebug, msg, ctx) }

// WarnBy writes a warning when f allows it.
func WarnBy(f Filter, msg string, ctx ...interface{}) { writeBy(f, slog.LevelWarn, msg, ctx) }

// DebugIf writes a debug record when cond holds.
func DebugIf(cond bool, msg string, ctx ...interface{}) { writeBy(when(cond), slog.LevelDebug, msg, ctx) }

// InfoIf writes an info record when cond holds.
func InfoIf(cond bool, msg string, ctx ...interface{}) { writeBy(when(cond), slog.LevelInfo, msg, ctx) }

// WarnIf writes a warning when cond holds.
func WarnIf(cond bool, msg string, ctx ...interface{}) { writeBy(when(cond), slog.LevelWarn, msg, ctx) }
