package motionplan

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Configuration is a joint vector aligned with the members of a JointSet.
type Configuration []float64

// Clone returns an independent copy of c.
func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}
	return append(Configuration(nil), c...)
}

// AlmostEqual reports whether every component of c is within epsilon of other.
func (c Configuration) AlmostEqual(other Configuration, epsilon float64) bool {
	if len(c) != len(other) {
		return false
	}
	return floats.EqualApprox(c, other, epsilon)
}

func (c Configuration) String() string {
	parts := make([]string, 0, len(c))
	for _, v := range c {
		parts = append(parts, fmt.Sprintf("%.4f", v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// configurationDistance is the euclidean distance in joint space.
func configurationDistance(a, b Configuration) float64 {
	return floats.Distance(a, b, 2)
}

// interpolateConfigurations returns the point at fraction t of the straight segment from a to b.
func interpolateConfigurations(a, b Configuration, t float64) Configuration {
	out := make(Configuration, len(a))
	for i := range a {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

// Path is an ordered list of configurations, linearly interpolated between consecutive points.
type Path struct {
	name   string
	points []Configuration
}

// NewPath returns a path through the given points. The points are copied.
func NewPath(name string, points ...Configuration) *Path {
	p := &Path{name: name}
	for _, c := range points {
		p.Append(c)
	}
	return p
}

// Name returns the name of the path.
func (p *Path) Name() string {
	return p.name
}

// Append adds a copy of c to the end of the path.
func (p *Path) Append(c Configuration) {
	p.points = append(p.points, c.Clone())
}

// Len returns the number of points.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.points)
}

// Point returns a copy of the i-th point.
func (p *Path) Point(i int) Configuration {
	return p.points[i].Clone()
}

// Points returns copies of every point.
func (p *Path) Points() []Configuration {
	out := make([]Configuration, 0, len(p.points))
	for _, c := range p.points {
		out = append(out, c.Clone())
	}
	return out
}

// Length returns the summed joint space length of all segments.
func (p *Path) Length() float64 {
	length := 0.
	for i := 1; i < len(p.points); i++ {
		length += configurationDistance(p.points[i-1], p.points[i])
	}
	return length
}

// Clone deep copies the path.
func (p *Path) Clone(name string) *Path {
	if name == "" {
		name = p.name
	}
	return NewPath(name, p.points...)
}

// Reverse returns a copy of the path running from the last point to the first.
func (p *Path) Reverse() *Path {
	r := &Path{name: p.name, points: make([]Configuration, 0, len(p.points))}
	for i := len(p.points) - 1; i >= 0; i-- {
		r.points = append(r.points, p.points[i].Clone())
	}
	return r
}

// Interpolate returns the point at fraction t of the path length. t is clamped into [0, 1], and the endpoints
// are returned exactly. An empty path returns nil.
func (p *Path) Interpolate(t float64) Configuration {
	c, _ := p.interpolate(t)
	return c
}

// interpolate also returns the index of the segment start the point lies on.
func (p *Path) interpolate(t float64) (Configuration, int) {
	switch {
	case len(p.points) == 0:
		return nil, -1
	case len(p.points) == 1 || t <= 0:
		return p.points[0].Clone(), 0
	case t >= 1:
		return p.points[len(p.points)-1].Clone(), len(p.points) - 1
	}
	total := p.Length()
	if total == 0 {
		return p.points[0].Clone(), 0
	}
	remaining := t * total
	for i := 1; i < len(p.points); i++ {
		seg := configurationDistance(p.points[i-1], p.points[i])
		if remaining <= seg {
			if seg == 0 {
				return p.points[i-1].Clone(), i - 1
			}
			return interpolateConfigurations(p.points[i-1], p.points[i], remaining/seg), i - 1
		}
		remaining -= seg
	}
	return p.points[len(p.points)-1].Clone(), len(p.points) - 1
}

func (p *Path) String() string {
	return fmt.Sprintf("path %q (%d points, length %.3f)", p.name, len(p.points), p.Length())
}
