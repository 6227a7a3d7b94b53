package model

// NPCDefinition describes a townsperson whose position is driven by a sparse
// hour schedule interpolated over the day/night loop.
type NPCDefinition struct {
	ID   string
	Name string

	// Schedule holds the hour keyframes. At least one entry is required for
	// the NPC to move; an empty schedule means "holds position".
	Schedule ScheduleMap

	// Home is the fallback position reported before the first tick and when
	// the schedule is empty.
	Home Vec3
}

// VehicleDefinition describes a path-following vehicle. The path is a closed
// ring of waypoints traversed at constant speed, one full circuit per
// day/night loop (offset shifts where in the circuit the vehicle starts).
type VehicleDefinition struct {
	ID   string
	Name string

	Path []Waypoint

	// PhaseOffset in [0,1) staggers vehicles sharing a path.
	PhaseOffset float64
}

// StreetLampDefinition describes a lamp whose intensity follows the night
// side of the loop.
type StreetLampDefinition struct {
	ID string

	Position Vec3

	// MaxIntensity is the lamp's full-on intensity. Zero means use the
	// engine default.
	MaxIntensity float64
}

// StagedEventDefinition describes a scripted world event registered with the
// loop manager at scenario load: fire Action at TimeSec within each loop.
type StagedEventDefinition struct {
	ID          string
	TimeSec     float64
	Repeat      bool
	IntervalSec float64
	Action      string
}
