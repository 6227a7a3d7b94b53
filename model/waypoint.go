package model

// Vec3 is a position in world units.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Waypoint is a position keyframe in an entity schedule. Meta carries
// optional free-form annotations (e.g. a vehicle_action marker) that the
// interpolator passes through untouched on an exact-hour match and never
// blends between keyframes.
type Waypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	Meta map[string]string `json:"meta,omitempty"`
}

// MetaVehicleAction is the metadata key used by NPC schedules to signal
// vehicle boarding/exit at a keyframe.
const MetaVehicleAction = "vehicle_action"

// Position returns the positional part of the waypoint.
func (w Waypoint) Position() Vec3 {
	return Vec3{X: w.X, Y: w.Y, Z: w.Z}
}

// VehicleAction returns the vehicle_action annotation, or "" when absent.
func (w Waypoint) VehicleAction() string {
	return w.Meta[MetaVehicleAction]
}

// CloneMeta returns a copy of the waypoint with its metadata bag deep-copied,
// so that schedules handed to an entity cannot be mutated through shared maps.
func (w Waypoint) CloneMeta() Waypoint {
	if w.Meta == nil {
		return w
	}
	meta := make(map[string]string, len(w.Meta))
	for k, v := range w.Meta {
		meta[k] = v
	}
	w.Meta = meta
	return w
}
