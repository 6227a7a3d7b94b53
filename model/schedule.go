package model

// ScheduleMap maps a semantic hour (0..24, fractional allowed) to the
// waypoint an entity should occupy at that hour. Keys need not be sorted or
// contiguous. A schedule is built once per entity from content data and
// treated as immutable afterwards; use Clone when handing one out.
type ScheduleMap map[float64]Waypoint

// Clone returns a deep copy of the schedule, including waypoint metadata.
func (m ScheduleMap) Clone() ScheduleMap {
	if m == nil {
		return nil
	}
	out := make(ScheduleMap, len(m))
	for hour, wp := range m {
		out[hour] = wp.CloneMeta()
	}
	return out
}
