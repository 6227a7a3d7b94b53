package route

import (
	"math"

	"github.com/lanternworks/townsim/model"
)

// PathPlan drives a vehicle around a closed ring of waypoints at constant
// speed: one full circuit per loop. Unlike Plan there are no hour keys and
// no metadata handling — the simplified form the vehicles use.
type PathPlan struct {
	points []model.Waypoint
	// cum[i] is the path distance from points[0] to points[i]; the final
	// entry closes the ring back to points[0].
	cum   []float64
	total float64
}

// NewPathPlan compiles a waypoint ring. The slice is copied.
func NewPathPlan(points []model.Waypoint) *PathPlan {
	p := &PathPlan{points: make([]model.Waypoint, len(points))}
	copy(p.points, points)

	if len(p.points) < 2 {
		return p
	}
	p.cum = make([]float64, len(p.points)+1)
	for i := 1; i <= len(p.points); i++ {
		a := p.points[i-1]
		b := p.points[i%len(p.points)]
		p.cum[i] = p.cum[i-1] + dist(a, b)
	}
	p.total = p.cum[len(p.points)]
	return p
}

// Len returns the number of ring waypoints.
func (p *PathPlan) Len() int { return len(p.points) }

// PositionAt maps a loop phase to a position on the ring. Out-of-range
// phases wrap. ok is false for an empty path; a single-point or
// zero-length path pins the vehicle to its first waypoint.
func (p *PathPlan) PositionAt(phase float64) (model.Waypoint, bool) {
	if len(p.points) == 0 {
		return model.Waypoint{}, false
	}
	if len(p.points) == 1 || p.total == 0 {
		return p.points[0], true
	}

	phase = math.Mod(phase, 1)
	if phase < 0 {
		phase++
	}
	target := phase * p.total

	// Walk the ring segments; cum is short so a linear scan is fine.
	for i := 1; i < len(p.cum); i++ {
		if target > p.cum[i] {
			continue
		}
		segLen := p.cum[i] - p.cum[i-1]
		a := p.points[i-1]
		b := p.points[i%len(p.points)]
		if segLen == 0 {
			return a, true
		}
		t := (target - p.cum[i-1]) / segLen
		return model.Waypoint{
			X: lerp(a.X, b.X, t),
			Y: lerp(a.Y, b.Y, t),
			Z: lerp(a.Z, b.Z, t),
		}, true
	}
	return p.points[0], true
}

func dist(a, b model.Waypoint) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
