// Package collision orchestrates collision and distance queries between link sets.
package collision

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"go.uber.org/atomic"

	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
)

// MaxDistance is reported by distance queries that had nothing to compare.
const MaxDistance = math.MaxFloat32

// DistanceResult is the closest pair of points between two link sets and the surface triangles they lie on.
type DistanceResult struct {
	Distance float64
	P1, P2   r3.Vector
	TriID1   int
	TriID2   int
}

// Checker is a geometry query engine. Link sets are only comparable when their models were built for the same
// checker instance.
type Checker interface {
	model.CollisionContext
	// CheckCollision reports whether any geometry of a touches any geometry of b.
	CheckCollision(a, b *model.LinkSet) bool
	// CalculateDistance returns the minimum distance between a and b with its witness points.
	CalculateDistance(a, b *model.LinkSet) DistanceResult
	// Lock takes exclusive access to the checker and the models bound to it, returning the release.
	Lock() func()
	// Queries returns the number of collision and distance queries answered so far.
	Queries() int64
}

// GeometryChecker answers queries by testing every geometry pair of two link sets.
type GeometryChecker struct {
	name    string
	buffer  float64
	logger  logging.Logger
	queries atomic.Int64
	mu      sync.Mutex
}

// NewGeometryChecker returns a checker. Geometries closer than buffer count as colliding.
func NewGeometryChecker(name string, buffer float64, logger logging.Logger) *GeometryChecker {
	return &GeometryChecker{name: name, buffer: buffer, logger: logger}
}

// Name returns the checker's name.
func (c *GeometryChecker) Name() string {
	return c.name
}

// Lock takes exclusive access.
func (c *GeometryChecker) Lock() func() {
	c.mu.Lock()
	return c.mu.Unlock
}

// Queries returns the number of queries answered.
func (c *GeometryChecker) Queries() int64 {
	return c.queries.Load()
}

// CheckCollision tests every geometry pair and returns at the first hit. Unsupported geometry pairs count
// as colliding. Nil sets never collide.
func (c *GeometryChecker) CheckCollision(a, b *model.LinkSet) bool {
	if a == nil || b == nil {
		return false
	}
	c.queries.Inc()
	geomsB := b.Geometries()
	for _, ga := range a.Geometries() {
		for _, gb := range geomsB {
			collides, err := ga.CollidesWith(gb, c.buffer)
			if err != nil {
				c.logger.Warnw("collision query failed, assuming collision", "a", ga.Label(), "b", gb.Label(), "error", err)
				return true
			}
			if collides {
				return true
			}
		}
	}
	return false
}

// CalculateDistance returns the closest pair over all geometry pairs. Sets without geometry report MaxDistance and
// nil sets report -1.
func (c *GeometryChecker) CalculateDistance(a, b *model.LinkSet) DistanceResult {
	if a == nil || b == nil {
		return DistanceResult{Distance: -1}
	}
	c.queries.Inc()
	best := DistanceResult{Distance: MaxDistance}
	geomsB := b.Geometries()
	for _, ga := range a.Geometries() {
		for _, gb := range geomsB {
			contact, err := ga.ClosestPoints(gb)
			if err != nil {
				c.logger.Warnw("distance query failed", "a", ga.Label(), "b", gb.Label(), "error", err)
				continue
			}
			if contact.Distance < best.Distance {
				best = fromContact(contact)
			}
		}
	}
	return best
}

func fromContact(c spatialmath.Contact) DistanceResult {
	return DistanceResult{Distance: c.Distance, P1: c.P1, P2: c.P2, TriID1: c.Feature1, TriID2: c.Feature2}
}
