package debug

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/log"
)

func TestSetupFileJSON(t *testing.T) {
	prev := log.Root()
	defer log.SetDefault(prev)

	file := filepath.Join(t.TempDir(), "logs", "jflow.log")
	require.NoError(t, Setup(LogConfig{Verbosity: 4, Format: "json", File: file}))
	log.Debug("Hello", "order", 3)
	log.Trace("Hidden")
	Exit()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var (
		lines   = splitLines(data)
		records []map[string]interface{}
	)
	for _, line := range lines {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &rec), string(line))
		records = append(records, rec)
	}
	require.Len(t, records, 2)
	assert.Equal(t, "Logging configured", records[0]["msg"])
	assert.Equal(t, "Hello", records[1]["msg"])
	assert.Equal(t, float64(3), records[1]["order"])
}

func TestSetupUnknownFormat(t *testing.T) {
	prev := log.Root()
	defer log.SetDefault(prev)
	assert.Error(t, Setup(LogConfig{Format: "xml"}))
}

func TestGoTrace(t *testing.T) {
	file := filepath.Join(t.TempDir(), "trace.out")
	end := StartRegion("idle")
	end()

	require.NoError(t, StartGoTrace(file))
	assert.Error(t, StartGoTrace(file))
	StartRegion("work")()
	require.NoError(t, StopGoTrace())
	require.NoError(t, StopGoTrace())

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range data {
		if c == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}
