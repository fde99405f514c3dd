package analyser

import "github.com/jflow-project/jflow/metrics"

var (
	methodsOkCounter     = metrics.NewRegisteredCounter("analyser/methods/ok", nil)
	methodsFailedCounter = metrics.NewRegisteredCounter("analyser/methods/failed", nil)
	methodTimer          = metrics.NewRegisteredTimer("analyser/method/time", nil)
)
