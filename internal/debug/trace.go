package debug

import (
	"context"
	"errors"
	"os"
	"runtime/trace"
	"sync"

	"github.com/jflow-project/jflow/log"
)

// goTrace is the execution trace of the running command.
var goTrace struct {
	mu   sync.Mutex
	file string
	w    *os.File
	ctx  context.Context
	task *trace.Task
}

// StartGoTrace turns on execution tracing, writing to the given file. All
// regions started afterwards belong to one task.
func StartGoTrace(file string) error {
	goTrace.mu.Lock()
	defer goTrace.mu.Unlock()
	if goTrace.w != nil {
		return errors.New("trace already in progress")
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	goTrace.file, goTrace.w = file, f
	goTrace.ctx, goTrace.task = trace.NewTask(context.Background(), "analysis")
	log.Info("Go tracing started", "dump", file)
	return nil
}

// StopGoTrace stops an ongoing trace. It does nothing when none is running.
func StopGoTrace() error {
	goTrace.mu.Lock()
	defer goTrace.mu.Unlock()
	if goTrace.w == nil {
		return nil
	}
	goTrace.task.End()
	trace.Stop()
	err := goTrace.w.Close()
	log.Info("Done writing Go trace", "dump", goTrace.file)
	goTrace.w, goTrace.task, goTrace.ctx = nil, nil, nil
	return err
}

// StartRegion opens a trace region and returns the function ending it. It
// is cheap when no trace is running.
func StartRegion(name string) func() {
	goTrace.mu.Lock()
	ctx := goTrace.ctx
	goTrace.mu.Unlock()
	if ctx == nil {
		return func() {}
	}
	region := trace.StartRegion(ctx, name)
	return region.End
}
