// Package failure defines the error taxonomy shared by the method analysis
// pipeline. Every error produced while analysing a method wraps exactly one
// of the kind sentinels below, and is usually attributed to the order of the
// instruction that triggered it.
package failure

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformed is reported for ill-formed input: bad switch tables,
	// unresolved or doubly resolved placeholders, jumps out of range and
	// out-of-range literals.
	ErrMalformed = errors.New("malformed input")

	// ErrLattice is reported when stack types cannot be reconciled, either
	// because a merge produced an empty set or because an instruction
	// consumed more values than the stack holds.
	ErrLattice = errors.New("lattice inconsistency")

	// ErrAmbiguous is reported when the local variable metadata describes
	// more than one live variable in the same slot at the same instruction.
	ErrAmbiguous = errors.New("ambiguous typing")
)

// NoOrder marks errors that are not tied to a single instruction.
const NoOrder = -1

// OrderError attributes an error to the instruction at Order.
type OrderError struct {
	Order int
	Err   error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %d: %v", e.Order, e.Err)
}

// Unwrap returns the wrapped error.
func (e *OrderError) Unwrap() error { return e.Err }

// Cause returns the wrapped error for errors.Cause.
func (e *OrderError) Cause() error { return e.Err }

// At builds an error of the given kind attributed to an instruction order.
func At(order int, kind error, format string, args ...interface{}) error {
	return &OrderError{Order: order, Err: errors.Wrapf(kind, format, args...)}
}

// Wrap attributes an existing error to an instruction order. Errors already
// carrying an order keep their original attribution.
func Wrap(order int, err error) error {
	if err == nil {
		return nil
	}
	var oe *OrderError
	if errors.As(err, &oe) {
		return err
	}
	return &OrderError{Order: order, Err: err}
}

// Malformed is shorthand for At(order, ErrMalformed, ...).
func Malformed(order int, format string, args ...interface{}) error {
	return At(order, ErrMalformed, format, args...)
}

// OrderOf returns the instruction order an error is attributed to, or NoOrder.
func OrderOf(err error) int {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Order
	}
	return NoOrder
}

// KindOf returns the taxonomy sentinel wrapped by err, or nil when err was
// not produced by the analysis pipeline.
func KindOf(err error) error {
	for _, kind := range []error{ErrMalformed, ErrLattice, ErrAmbiguous} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
