// Package route turns sparse schedules into continuous positions. Plan
// interpolates an hour-keyed ScheduleMap over the day/night loop; PathPlan
// is the simplified constant-speed variant used by path-following vehicles.
package route

import (
	"sort"

	"github.com/lanternworks/townsim/model"
	"github.com/lanternworks/townsim/timesync"
)

// phaseEpsilon bounds how close a queried phase must be to a keyframe's
// phase to count as an exact match and return the keyframe verbatim.
const phaseEpsilon = 1e-9

type keyframe struct {
	hour    float64
	percent float64
	wp      model.Waypoint
}

// Plan is a ScheduleMap compiled for interpolation: every hour key mapped to
// loop percent and sorted. A Plan is immutable once built; PositionAt is
// pure and safe to call once per tick per entity.
type Plan struct {
	frames []keyframe
}

// NewPlan compiles a schedule. The input map is copied; later mutation of it
// does not affect the plan. An empty (or nil) schedule yields a plan whose
// PositionAt always reports no target.
func NewPlan(m model.ScheduleMap) *Plan {
	frames := make([]keyframe, 0, len(m))
	for hour, wp := range m {
		frames = append(frames, keyframe{
			hour:    hour,
			percent: timesync.HourToLoopPercent(hour),
			wp:      wp.CloneMeta(),
		})
	}
	sort.Slice(frames, func(i, j int) bool {
		if frames[i].percent != frames[j].percent {
			return frames[i].percent < frames[j].percent
		}
		return frames[i].hour < frames[j].hour
	})
	return &Plan{frames: frames}
}

// Len returns the number of keyframes.
func (p *Plan) Len() int { return len(p.frames) }

// PositionAt returns the waypoint for a loop phase in [0, 1) (out-of-range
// phases wrap). A phase matching a keyframe exactly returns that keyframe
// unchanged, metadata included — metadata-bearing waypoints are never
// blended away. Between keyframes the position is the linear blend of the
// bracketing pair (wrapping across the loop boundary) and carries no
// metadata. ok is false only for an empty plan: the caller treats that as
// "no movement target".
func (p *Plan) PositionAt(phase float64) (model.Waypoint, bool) {
	if len(p.frames) == 0 {
		return model.Waypoint{}, false
	}
	phase = timesync.Mod(phase, 1)

	for _, f := range p.frames {
		if exactPhase(phase, f.percent) {
			return f.wp.CloneMeta(), true
		}
	}

	if len(p.frames) == 1 {
		return p.frames[0].wp.CloneMeta(), true
	}

	// Find the first keyframe past the phase; its predecessor opens the
	// bracket. Falling off either end means the span crosses the wrap point.
	next := sort.Search(len(p.frames), func(i int) bool {
		return p.frames[i].percent > phase
	})
	prev := next - 1
	if next == len(p.frames) {
		next = 0
	}
	if prev < 0 {
		prev = len(p.frames) - 1
	}

	a := p.frames[prev]
	b := p.frames[next]

	span := timesync.Mod(b.percent-a.percent, 1)
	if span <= 0 {
		// Duplicate percents collapse the span; hold the earlier keyframe.
		return a.wp.CloneMeta(), true
	}

	t := timesync.Mod(phase-a.percent, 1) / span
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return model.Waypoint{
		X: lerp(a.wp.X, b.wp.X, t),
		Y: lerp(a.wp.Y, b.wp.Y, t),
		Z: lerp(a.wp.Z, b.wp.Z, t),
	}, true
}

// ActionPoint is a keyframe that carries a vehicle action, exposed so a
// frame loop can detect when the phase crosses it between two samples.
type ActionPoint struct {
	Percent float64
	Action  string
}

// ActionPoints returns the plan's vehicle-action keyframes in phase order.
func (p *Plan) ActionPoints() []ActionPoint {
	var pts []ActionPoint
	for _, f := range p.frames {
		if action := f.wp.VehicleAction(); action != "" {
			pts = append(pts, ActionPoint{Percent: f.percent, Action: action})
		}
	}
	return pts
}

// Interpolate is a convenience for one-off queries; per-entity callers
// should compile a Plan once and reuse it.
func Interpolate(m model.ScheduleMap, phase float64) (model.Waypoint, bool) {
	return NewPlan(m).PositionAt(phase)
}

func exactPhase(phase, percent float64) bool {
	d := phase - percent
	if d < 0 {
		d = -d
	}
	// A phase just under 1.0 is also "exactly" a keyframe at 0.
	return d <= phaseEpsilon || 1-d <= phaseEpsilon
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
