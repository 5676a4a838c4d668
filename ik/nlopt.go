//go:build !windows && !no_cgo

package ik

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

var errBadBounds = errors.New("cannot set upper or lower bounds for nlopt, slice is empty")

// nloptOptimizer runs SLSQP through nlopt. nlopt returns no point when it stops with an error, so the best
// objective evaluation is tracked here.
type nloptOptimizer struct {
	opt   *nlopt.NLopt
	bestX []float64
	bestF float64
}

func newLocalOptimizer(s optimizerSettings, objective objectiveFunc, equality, inequality []objectiveFunc) (localOptimizer, error) {
	if len(s.lower) == 0 || len(s.upper) == 0 {
		return nil, errBadBounds
	}
	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(len(s.lower)))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	o := &nloptOptimizer{opt: opt}
	tracked := func(x, gradient []float64) float64 {
		f := objective(x, gradient)
		if o.bestX == nil || f < o.bestF {
			o.bestX = append(o.bestX[:0], x...)
			o.bestF = f
		}
		return f
	}

	err = multierr.Combine(
		opt.SetLowerBounds(s.lower),
		opt.SetUpperBounds(s.upper),
		opt.SetFtolAbs(s.ftolAbs),
		opt.SetXtolAbs1(s.xtolAbs),
		opt.SetMaxTime(s.maxTime.Seconds()),
		opt.SetMinObjective(tracked),
	)
	if !math.IsNaN(s.stopVal) {
		err = multierr.Append(err, opt.SetStopVal(s.stopVal))
	}
	for _, h := range equality {
		err = multierr.Append(err, opt.AddEqualityConstraint(nlopt.Func(h), s.constraintTol))
	}
	for _, fc := range inequality {
		err = multierr.Append(err, opt.AddInequalityConstraint(nlopt.Func(fc), s.constraintTol))
	}
	if err != nil {
		opt.Destroy()
		return nil, err
	}
	return o, nil
}

func (o *nloptOptimizer) optimize(ctx context.Context, x0 []float64) ([]float64, error) {
	o.bestX = nil
	type result struct {
		x   []float64
		err error
	}
	done := make(chan result, 1)
	utils.PanicCapturingGo(func() {
		x, _, err := o.opt.Optimize(append([]float64(nil), x0...))
		done <- result{x, err}
	})
	var r result
	select {
	case <-ctx.Done():
		err := o.opt.ForceStop()
		r = <-done
		r.err = multierr.Combine(r.err, err, ctx.Err())
	case r = <-done:
	}
	if r.x != nil && r.err == nil {
		return r.x, nil
	}
	if o.bestX == nil {
		return nil, r.err
	}
	// the lowest objective seen need not satisfy the equality constraints; Solve checks the hard constraints
	// before reporting success
	return append([]float64(nil), o.bestX...), r.err
}

func (o *nloptOptimizer) close() {
	o.opt.Destroy()
}
