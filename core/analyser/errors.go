package analyser

import (
	"fmt"

	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
)

// Error attributes a failed analysis to a method and, where known, to the
// order of the instruction that caused it.
type Error struct {
	Method instruction.MethodID
	Order  int
	// Kind is one of failure.ErrMalformed, failure.ErrLattice and
	// failure.ErrAmbiguous.
	Kind error
	Err  error
}

func newError(id instruction.MethodID, err error) *Error {
	kind := failure.KindOf(err)
	if kind == nil {
		kind = failure.ErrMalformed
	}
	return &Error{Method: id, Order: failure.OrderOf(err), Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Order == failure.NoOrder {
		return fmt.Sprintf("%v: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("%v at %d: %v", e.Method, e.Order, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
