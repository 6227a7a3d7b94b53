package core

import "github.com/lanternworks/townsim/model"

// Sinks are the engine's outbound hooks: a renderer, a network layer, or a
// test registers the callbacks it cares about and the engine pushes state
// changes into them every step. Any nil sink is skipped.
type Sinks struct {
	// NPCPosition receives every NPC position update.
	NPCPosition func(npcID string, pos model.Vec3)
	// VehiclePosition receives every vehicle position update.
	VehiclePosition func(vehicleID string, pos model.Vec3)
	// LampIntensity receives street-lamp intensity updates.
	LampIntensity func(lampID string, intensity float64)
	// AmbientLight receives the town-wide ambient light level.
	AmbientLight func(intensity float64)
	// VehicleAction fires when an NPC's schedule waypoint carries a vehicle
	// action ("enter", "exit"), once per waypoint crossing.
	VehicleAction func(npcID, action string)
	// StagedEvent fires for scenario-scripted events, with the action string
	// from the scenario file.
	StagedEvent func(eventID, action string)
}
