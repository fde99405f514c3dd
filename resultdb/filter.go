package resultdb

import (
	"github.com/hashicorp/go-bexpr"
	"github.com/pkg/errors"
)

// Filter selects summaries with a boolean expression over the Summary
// fields, for example `HasJumps == true and Error is empty`.
type Filter struct {
	expr string
	eval *bexpr.Evaluator
}

// NewFilter compiles expr. An empty expression matches everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid filter %q", expr)
	}
	return &Filter{expr: expr, eval: eval}, nil
}

// Match reports whether s satisfies the filter.
func (f *Filter) Match(s *Summary) (bool, error) {
	if f == nil || f.eval == nil {
		return true, nil
	}
	ok, err := f.eval.Evaluate(s)
	if err != nil {
		return false, errors.Wrapf(err, "filter %q on %v", f.expr, s.ID())
	}
	return ok, nil
}
