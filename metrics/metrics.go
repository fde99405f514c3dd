// Package metrics exposes the counters, meters, timers and gauges recorded by
// the analyser. It is a thin layer over go-metrics that honours a global
// enable switch so disabled builds pay nothing for instrumentation.
package metrics

import (
	"io"
	"os"
	"strings"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Enabled is checked by the constructor functions for all of the standard
// metrics. If it is false, the metric returned is a stub.
//
// This global kill-switch helps quantify the observer effect and makes for
// less cluttered pprof profiles.
var Enabled = false

// enablerFlags is the CLI flag names to use to enable metrics collections.
var enablerFlags = []string{"metrics"}

// Init enables or disables the metrics system. Since we need this to run
// before any other code gets to create meters and timers, we'll actually do
// an ugly hack and peek into the command line args for the metrics flag.
func init() {
	for _, arg := range os.Args {
		flag := strings.TrimLeft(arg, "-")

		for _, enabler := range enablerFlags {
			if !Enabled && flag == enabler {
				Enabled = true
			}
		}
	}
	gometrics.UseNilMetrics = !Enabled
}

// Enable switches metrics collection on for metrics created afterwards.
func Enable() {
	Enabled = true
	gometrics.UseNilMetrics = false
}

type (
	Registry = gometrics.Registry
	Counter  = gometrics.Counter
	Meter    = gometrics.Meter
	Timer    = gometrics.Timer
	Gauge    = gometrics.Gauge
)

// DefaultRegistry is the registry used when nil is passed to a constructor.
var DefaultRegistry = gometrics.DefaultRegistry

// NewRegistry creates an empty registry.
func NewRegistry() Registry { return gometrics.NewRegistry() }

func register(name string, metric interface{}, r Registry) {
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, metric)
}

// NewRegisteredCounter constructs and registers a new Counter.
func NewRegisteredCounter(name string, r Registry) Counter {
	c := gometrics.NewCounter()
	register(name, c, r)
	return c
}

// NewRegisteredMeter constructs and registers a new Meter.
func NewRegisteredMeter(name string, r Registry) Meter {
	m := gometrics.NewMeter()
	register(name, m, r)
	return m
}

// NewRegisteredTimer constructs and registers a new Timer.
func NewRegisteredTimer(name string, r Registry) Timer {
	t := gometrics.NewTimer()
	register(name, t, r)
	return t
}

// NewRegisteredGauge constructs and registers a new Gauge.
func NewRegisteredGauge(name string, r Registry) Gauge {
	g := gometrics.NewGauge()
	register(name, g, r)
	return g
}

// Since records the time elapsed since start on the timer.
func Since(t Timer, start time.Time) {
	t.UpdateSince(start)
}

// WriteOnce dumps every metric and label of the registry in a human
// readable form.
func WriteOnce(r Registry, w io.Writer) {
	if r == nil {
		r = DefaultRegistry
	}
	gometrics.WriteOnce(r, w)
	writeLabels(r, w)
}
