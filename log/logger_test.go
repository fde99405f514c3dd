package log

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestTerminalHandlerFormat(t *testing.T) {
	out := new(bytes.Buffer)
	l := NewLogger(NewTerminalHandlerWithLevel(out, LevelInfo, false))
	l.Info("analysed method", "class", "demo/Foo", "order", 12, "err", errors.New("boom"))
	l.Debug("hidden")

	line := out.String()
	assert.True(t, strings.HasPrefix(line, "INFO ["), line)
	assert.Contains(t, line, "analysed method")
	assert.Contains(t, line, "class=demo/Foo")
	assert.Contains(t, line, "order=12")
	assert.Contains(t, line, "err=boom")
	assert.NotContains(t, line, "hidden")
	assert.Equal(t, 1, strings.Count(line, "\n"))
}

func TestLoggerWith(t *testing.T) {
	out := new(bytes.Buffer)
	l := NewLogger(NewTerminalHandler(out, false)).With("method", "m()V")
	l.Trace("visit", "order", 3)
	assert.Contains(t, out.String(), "method=m()V")
	assert.Contains(t, out.String(), "TRACE")
}

func TestOddArguments(t *testing.T) {
	out := new(bytes.Buffer)
	NewLogger(NewTerminalHandler(out, false)).Info("odd", "key")
	assert.Contains(t, out.String(), errorKey)
}

func TestLevelHandler(t *testing.T) {
	out := new(bytes.Buffer)
	h := NewLevelHandler(NewTerminalHandler(out, false))
	l := NewLogger(h)
	l.Debug("first")
	h.Verbosity(LevelWarn)
	l.Info("second")
	l.Error("third")
	assert.Contains(t, out.String(), "first")
	assert.NotContains(t, out.String(), "second")
	assert.Contains(t, out.String(), "third")
	assert.False(t, l.Enabled(context.Background(), LevelInfo))
}

func TestFilteredHelpers(t *testing.T) {
	out := new(bytes.Buffer)
	prev := Root()
	defer SetDefault(prev)
	SetDefault(NewLogger(NewTerminalHandler(out, false)))

	limit := NewLimiter(time.Hour, 3)
	for i := 0; i < 9; i++ {
		DebugBy(limit, "tick", "i", i)
	}
	assert.Equal(t, 3, strings.Count(out.String(), "tick"))

	var open *Limiter
	WarnBy(open, "unlimited")
	assert.Contains(t, out.String(), "unlimited")

	InfoIf(false, "skipped")
	InfoIf(true, "kept")
	assert.NotContains(t, out.String(), "skipped")
	assert.Contains(t, out.String(), "kept")
}

func TestLevelNames(t *testing.T) {
	assert.Equal(t, "trace", LevelString(LevelTrace))
	assert.Equal(t, "CRIT ", LevelAlignedString(LevelCrit))
	assert.Equal(t, LevelTrace, FromLegacyLevel(5))
	assert.Equal(t, slog.LevelWarn, FromLegacyLevel(2))
	assert.Equal(t, LevelTrace, FromLegacyLevel(9))
}

func TestFormatValues(t *testing.T) {
	require.Equal(t, "1,234,567", string(appendInt64(nil, 1234567)))
	require.Equal(t, "-123,456", string(appendInt64(nil, -123456)))
	require.Equal(t, `"a b"`, string(appendEscapeString(nil, "a b")))
	require.Equal(t, "1.5s", string(FormatSlogValue(slog.DurationValue(1500*time.Millisecond), nil)))
}
