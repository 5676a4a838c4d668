package motionplan

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/motionkit/logging"
)

// minShortcutGain is the least length reduction for which a shortcut is kept.
const minShortcutGain = 1e-6

// ShortcutStats summarizes an optimization run.
type ShortcutStats struct {
	Loops          int
	Accepted       int
	PrunedPoints   int
	LengthBefore   float64
	LengthAfter    float64
	PointsBefore   int
	PointsAfter    int
	StoppedEarlier bool
}

// ShortcutProcessor shortens a valid path by replacing random sub-paths with straight segments that the
// configuration space accepts. The input path is never modified.
type ShortcutProcessor struct {
	path     *Path
	cspace   *CSpaceSampled
	logger   logging.Logger
	randseed *rand.Rand

	mu     sync.Mutex
	result *Path
	stats  ShortcutStats
}

// NewShortcutProcessor returns a processor for a copy of path.
func NewShortcutProcessor(path *Path, cspace *CSpaceSampled, seed int64, logger logging.Logger) (*ShortcutProcessor, error) {
	if path == nil || path.Len() == 0 {
		return nil, errors.New("shortcut processor needs a non-empty path")
	}
	if cspace == nil {
		return nil, errors.New("shortcut processor needs a configuration space")
	}
	//nolint:gosec
	return &ShortcutProcessor{
		path:     path.Clone("optimized"),
		cspace:   cspace,
		logger:   logger,
		randseed: rand.New(rand.NewSource(seed)),
	}, nil
}

// Optimize runs loops random shortcut attempts followed by waypoint pruning and returns the new path. A done
// ctx ends the loop early; the path built so far is still valid and is returned.
func (sp *ShortcutProcessor) Optimize(ctx context.Context, loops int) *Path {
	path := sp.path.Clone("")
	stats := ShortcutStats{LengthBefore: path.Length(), PointsBefore: path.Len()}

	for ; stats.Loops < loops; stats.Loops++ {
		if ctx.Err() != nil {
			stats.StoppedEarlier = true
			break
		}
		if next, ok := sp.shortenRandom(path); ok {
			path = next
			stats.Accepted++
		}
	}
	before := path.Len()
	path = sp.PruneWaypoints(path)
	stats.PrunedPoints = before - path.Len()
	stats.LengthAfter = path.Length()
	stats.PointsAfter = path.Len()

	sp.logger.Debugw("shortcut processing done",
		"loops", stats.Loops, "accepted", stats.Accepted, "length_before", stats.LengthBefore, "length_after", stats.LengthAfter)

	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.result = path
	sp.stats = stats
	return path.Clone("")
}

// ProcessedPath returns the path of the last Optimize call, or nil.
func (sp *ShortcutProcessor) ProcessedPath() *Path {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.result == nil {
		return nil
	}
	return sp.result.Clone("")
}

// Stats returns the statistics of the last Optimize call.
func (sp *ShortcutProcessor) Stats() ShortcutStats {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.stats
}

// shortenRandom picks two points on the path, possibly between waypoints, and joins them directly when the
// segment is valid and shorter than the sub-path it replaces.
func (sp *ShortcutProcessor) shortenRandom(path *Path) (*Path, bool) {
	if path.Len() < 2 {
		return path, false
	}
	t1, t2 := sp.randseed.Float64(), sp.randseed.Float64()
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	c1, i1 := path.interpolate(t1)
	c2, i2 := path.interpolate(t2)
	if i1 == i2 {
		// both on one segment, nothing to cut
		return path, false
	}

	replaced := configurationDistance(c1, path.points[i1+1])
	for i := i1 + 2; i <= i2; i++ {
		replaced += configurationDistance(path.points[i-1], path.points[i])
	}
	replaced += configurationDistance(path.points[i2], c2)
	if replaced-configurationDistance(c1, c2) < minShortcutGain {
		return path, false
	}
	keepC1 := !c1.AlmostEqual(path.points[i1], 0)
	if keepC1 && !sp.cspace.IsPathValid(path.points[i1], c1) {
		return path, false
	}
	if !sp.cspace.IsPathValid(c1, c2) {
		return path, false
	}
	if i2+1 < path.Len() && !sp.cspace.IsPathValid(c2, path.points[i2+1]) {
		return path, false
	}

	next := &Path{name: path.name}
	next.points = append(next.points, path.points[:i1+1]...)
	if keepC1 {
		next.points = append(next.points, c1)
	}
	next.points = append(next.points, c2)
	next.points = append(next.points, path.points[i2+1:]...)
	return next, true
}

// PruneWaypoints removes every waypoint whose neighbors can be joined directly, repeating until no more can be
// removed. The endpoints are kept.
func (sp *ShortcutProcessor) PruneWaypoints(path *Path) *Path {
	steps := path.Points()
	originalSize := len(steps)
	// look at each triplet, see if we can remove the middle one
	for i := 2; i < len(steps); i++ {
		if !sp.cspace.IsPathValid(steps[i-2], steps[i]) {
			continue
		}
		// we can merge
		steps = append(steps[0:i-1], steps[i:]...)
		i--
	}
	pruned := NewPath(path.Name(), steps...)
	if len(steps) != originalSize {
		sp.logger.Debugf("pruned waypoints %d -> %d", originalSize, len(steps))
		return sp.PruneWaypoints(pruned)
	}
	return pruned
}
