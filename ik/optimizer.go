package ik

import (
	"context"
	"time"
)

// objectiveFunc evaluates a function at x and fills gradient when it is not empty.
type objectiveFunc func(x, gradient []float64) float64

type optimizerSettings struct {
	lower, upper []float64
	// stopVal is NaN when the optimizer should not stop on the objective value.
	stopVal       float64
	ftolAbs       float64
	xtolAbs       float64
	maxTime       time.Duration
	constraintTol float64
}

// localOptimizer is a bound constrained local NLP solver. optimize returns the best point it saw, or nil when
// it never evaluated the objective, together with whatever error made it stop.
type localOptimizer interface {
	optimize(ctx context.Context, x0 []float64) ([]float64, error)
	close()
}
