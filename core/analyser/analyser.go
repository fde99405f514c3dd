// Package analyser runs the per-method pipeline: first-pass building,
// placeholder resolution, variable table, control-flow graph and frame
// propagation. Each method is analysed independently and every failure is
// attributed to the method and, where known, to the instruction order.
package analyser

import (
	"runtime/debug"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jflow-project/jflow/common/gopool"
	"github.com/jflow-project/jflow/core/cfg"
	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/frames"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/variables"
	"github.com/jflow-project/jflow/log"
)

// Method is the reader's view of one method body.
type Method struct {
	ID     instruction.MethodID
	Static bool
	// Emit feeds the body to the builder in program order.
	Emit     func(b *instruction.Builder) error
	Locals   []variables.Declaration
	Handlers []instruction.TryCatch
}

// Outcome is the result of analysing one method of a batch. Exactly one of
// Result and Err is set.
type Outcome struct {
	Result *Result
	Err    *Error
	Events []Event
}

// Analyser turns methods into results. It is safe for concurrent use.
type Analyser struct {
	config Config
	cache  *descriptor.Cache
}

// New creates an analyser. Non-positive DescriptorCache and MaxIterations
// fall back to Defaults; the remaining fields are used as given, so callers
// should start from Defaults.
func New(config Config) (*Analyser, error) {
	if config.DescriptorCache <= 0 {
		config.DescriptorCache = Defaults.DescriptorCache
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = Defaults.MaxIterations
	}
	cache, err := descriptor.NewCache(config.DescriptorCache)
	if err != nil {
		return nil, err
	}
	return &Analyser{config: config, cache: cache}, nil
}

// Config returns the effective configuration.
func (a *Analyser) Config() Config { return a.config }

// Analyse runs the pipeline on one method. The returned events always start
// with MethodStarted and end with MethodFinished, with MethodFailed before it
// when err is non-nil.
func (a *Analyser) Analyse(m Method) (*Result, []Event, *Error) {
	var (
		start  = time.Now()
		events = []Event{{Kind: MethodStarted, Method: m.ID}}
	)
	res, iterations, err := a.analyse(m)
	elapsed := time.Since(start)
	methodTimer.Update(elapsed)

	if err != nil {
		failed := newError(m.ID, err)
		methodsFailedCounter.Inc(1)
		log.Debug("Method analysis failed", "class", m.ID.Class, "method", m.ID.Name, "desc", m.ID.Desc,
			"order", failed.Order, "err", err)
		events = append(events,
			Event{Kind: MethodFailed, Method: m.ID, Err: failed},
			Event{Kind: MethodFinished, Method: m.ID, Iterations: iterations, Elapsed: elapsed},
		)
		return nil, events, failed
	}
	methodsOkCounter.Inc(1)
	log.Trace("Method analysed", "class", m.ID.Class, "method", m.ID.Name, "desc", m.ID.Desc,
		"instructions", res.Len(), "iterations", iterations, "elapsed", elapsed)
	events = append(events, Event{Kind: MethodFinished, Method: m.ID, Success: true, Iterations: iterations, Elapsed: elapsed})
	return res, events, nil
}

// analyse runs the pipeline. A panic in the reader's Emit or in the pipeline
// fails the method as malformed input. The iteration count is only reported
// for completed propagations.
func (a *Analyser) analyse(m Method) (res *Result, iterations int, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Method analysis panicked", "class", m.ID.Class, "method", m.ID.Name, "desc", m.ID.Desc,
				"panic", r, "stack", string(debug.Stack()))
			res, iterations, err = nil, 0, failure.Malformed(failure.NoOrder, "panic: %v", r)
		}
	}()
	b, err := instruction.NewBuilder(m.ID, m.Static, a.cache)
	if err != nil {
		return nil, 0, err
	}
	if m.Emit == nil {
		return nil, 0, failure.Malformed(failure.NoOrder, "method has no body")
	}
	if err := m.Emit(b); err != nil {
		return nil, 0, err
	}
	prog := b.Program()
	instrs, err := prog.Resolve()
	if err != nil {
		return nil, 0, err
	}
	vars, err := variables.New(m.Locals, prog.Method, m.Static, len(instrs))
	if err != nil {
		return nil, 0, err
	}
	var table []instruction.TryCatch
	if a.config.ExceptionEdges {
		table = m.Handlers
	}
	g, err := cfg.Build(instrs, table)
	if err != nil {
		return nil, 0, err
	}
	if dead := g.Unreachable(); dead.Cardinality() > 0 {
		orders := dead.ToSlice()
		slices.Sort(orders)
		if a.config.Strict {
			return nil, 0, failure.Malformed(orders[0], "unreachable instruction")
		}
		log.Warn("Unreachable instructions", "class", m.ID.Class, "method", m.ID.Name, "desc", m.ID.Desc,
			"orders", orders)
	}
	fr, err := frames.Propagate(g, frames.Options{Variables: vars, MaxIterations: a.config.MaxIterations})
	if err != nil {
		return nil, 0, err
	}
	return &Result{
		ID:           m.ID,
		Static:       m.Static,
		Instructions: instrs,
		Graph:        g,
		Variables:    vars,
		Frames:       fr,
		HasJumps:     prog.HasJumps(),
	}, fr.Iterations, nil
}

// AnalyseAll analyses methods concurrently on the shared worker pool. The
// outcomes are in the order of methods; a failing method never affects its
// siblings.
func (a *Analyser) AnalyseAll(methods []Method) []Outcome {
	out := make([]Outcome, len(methods))
	gopool.Run(len(methods), a.config.Workers, func(i int) {
		res, events, err := a.Analyse(methods[i])
		out[i] = Outcome{Result: res, Err: err, Events: events}
	})
	return out
}
