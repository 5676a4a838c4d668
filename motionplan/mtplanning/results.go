package mtplanning

import (
	"time"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// Result describes the outcome of one problem.
type Result struct {
	ID              string
	Index           int
	Solved          bool
	Cycles          int
	TreeSize        int
	PlanningTime    time.Duration
	Points          int
	Length          float64
	OptimizedPoints int
	OptimizedLength float64
	CollisionChecks int64
}

// Summary aggregates the results of all solved problems.
type Summary struct {
	Problems           int
	Solved             int
	MeanPlanningTime   time.Duration
	MedianPlanningTime time.Duration
	MeanLength         float64
	MeanOptimized      float64
	MeanCycles         float64
}

// Results returns one entry per problem in build order.
func (s *Scenery) Results() []Result {
	return lo.Map(s.Problems(), func(p *Problem, _ int) Result {
		ps := p.Planner.Stats()
		r := Result{
			ID:              p.ID.String(),
			Index:           p.Index,
			Solved:          p.Solution() != nil,
			Cycles:          ps.Cycles,
			TreeSize:        ps.TreeSize,
			PlanningTime:    ps.PlanningTime,
			CollisionChecks: p.CSpace.Stats().CollisionChecks,
		}
		if sol := p.Solution(); sol != nil {
			r.Points, r.Length = sol.Len(), sol.Length()
		}
		if opt := p.Optimized(); opt != nil {
			r.OptimizedPoints, r.OptimizedLength = opt.Len(), opt.Length()
		}
		return r
	})
}

// Summarize computes statistics over the solved results. Fields stay zero when nothing was solved.
func Summarize(results []Result) (Summary, error) {
	solved := lo.Filter(results, func(r Result, _ int) bool { return r.Solved })
	summary := Summary{Problems: len(results), Solved: len(solved)}
	if len(solved) == 0 {
		return summary, nil
	}
	times := stats.Float64Data(lo.Map(solved, func(r Result, _ int) float64 { return float64(r.PlanningTime) }))
	lengths := stats.Float64Data(lo.Map(solved, func(r Result, _ int) float64 { return r.Length }))
	cycles := stats.Float64Data(lo.Map(solved, func(r Result, _ int) float64 { return float64(r.Cycles) }))

	meanTime, err := times.Mean()
	if err != nil {
		return summary, err
	}
	medianTime, err := times.Median()
	if err != nil {
		return summary, err
	}
	if summary.MeanLength, err = lengths.Mean(); err != nil {
		return summary, err
	}
	if summary.MeanCycles, err = cycles.Mean(); err != nil {
		return summary, err
	}
	summary.MeanPlanningTime = time.Duration(meanTime)
	summary.MedianPlanningTime = time.Duration(medianTime)

	optimized := lo.FilterMap(solved, func(r Result, _ int) (float64, bool) {
		return r.OptimizedLength, r.OptimizedPoints > 0
	})
	if len(optimized) > 0 {
		if summary.MeanOptimized, err = stats.Mean(optimized); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
