package analyser

import (
	"fmt"
	"time"

	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/lattice"
)

// EventKind identifies what an Event records.
type EventKind int

const (
	MethodStarted EventKind = iota
	MethodFinished
	MethodFailed
	// LoadTypeChanged is produced when a method is analysed again and a load
	// at the same order is typed differently.
	LoadTypeChanged
)

func (k EventKind) String() string {
	switch k {
	case MethodStarted:
		return "started"
	case MethodFinished:
		return "finished"
	case MethodFailed:
		return "failed"
	case LoadTypeChanged:
		return "load-type-changed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one entry of the record an analysis leaves behind. Consumers fold
// over the list after the fact.
type Event struct {
	Kind   EventKind
	Method instruction.MethodID

	// MethodFinished
	Success    bool
	Iterations int
	Elapsed    time.Duration

	// MethodFailed
	Err *Error

	// LoadTypeChanged
	Order    int
	Old, New lattice.Set
}

func (e Event) String() string {
	switch e.Kind {
	case MethodFinished:
		return fmt.Sprintf("%v %v success=%t iterations=%d", e.Kind, e.Method, e.Success, e.Iterations)
	case MethodFailed:
		return fmt.Sprintf("%v %v", e.Kind, e.Err)
	case LoadTypeChanged:
		return fmt.Sprintf("%v %v at %d: %v -> %v", e.Kind, e.Method, e.Order, e.Old, e.New)
	}
	return fmt.Sprintf("%v %v", e.Kind, e.Method)
}

// Stats counts what a list of events records.
type Stats struct {
	Started    int
	Succeeded  int
	Failed     int
	Malformed  int
	Lattice    int
	Ambiguous  int
	Iterations int
	Elapsed    time.Duration
	// LoadTypeChanges counts loads retyped across analyses of one method.
	LoadTypeChanges int
}

// Fold adds events to the counters.
func (s *Stats) Fold(events []Event) {
	for _, ev := range events {
		switch ev.Kind {
		case MethodStarted:
			s.Started++
		case MethodFinished:
			if ev.Success {
				s.Succeeded++
			}
			s.Iterations += ev.Iterations
			s.Elapsed += ev.Elapsed
		case MethodFailed:
			s.Failed++
			if ev.Err == nil {
				continue
			}
			switch ev.Err.Kind {
			case failure.ErrMalformed:
				s.Malformed++
			case failure.ErrLattice:
				s.Lattice++
			case failure.ErrAmbiguous:
				s.Ambiguous++
			}
		case LoadTypeChanged:
			s.LoadTypeChanges++
		}
	}
}
