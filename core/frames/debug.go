package frames

import (
	"os"
	"time"

	"github.com/jflow-project/jflow/log"
)

// DebugLogsEnabled switches on per-visit tracing of the fixed-point loop.
var DebugLogsEnabled = false

func init() {
	if os.Getenv("JFLOW_DEBUG") == "1" || os.Getenv("JFLOW_DEBUG") == "true" {
		DebugLogsEnabled = true
	}
}

// EnableDebugLogs toggles per-visit tracing.
func EnableDebugLogs(on bool) { DebugLogsEnabled = on }

// visitLog rate-limits per-visit trace lines; big methods revisit loop
// headers many times.
var visitLog = log.NewLimiter(time.Millisecond, 256)

func traceVisit(msg string, ctx ...interface{}) {
	if DebugLogsEnabled {
		log.TraceBy(visitLog, msg, ctx...)
	}
}

func debugWarn(msg string, ctx ...interface{}) {
	log.WarnIf(DebugLogsEnabled, msg, ctx...)
}
