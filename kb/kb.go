package kb

import (
	"fmt"
	"sync"

	"github.com/lanternworks/townsim/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventNPCMoved EventType = iota
	EventVehicleMoved
	EventLampChanged
)

// Event is emitted to subscribers when an entity's observable state changes.
type Event struct {
	Type EventType
	ID   string

	Position  model.Vec3
	Intensity float64
}

// NPCState is an NPC's definition plus its live position.
type NPCState struct {
	Def      model.NPCDefinition
	Position model.Vec3

	// RidingVehicle holds the last vehicle action applied to the NPC
	// ("enter", "exit", ...), empty when on foot.
	RidingVehicle string
}

// VehicleState is a vehicle's definition plus its live position.
type VehicleState struct {
	Def      model.VehicleDefinition
	Position model.Vec3
}

// LampState is a street lamp's definition plus its live intensity.
type LampState struct {
	Def       model.StreetLampDefinition
	Intensity float64
}

// TownBase is an in-memory, thread-safe store for the town's entities. The
// engine writes interpolated positions into it every frame; debug tooling
// and tests observe the town through an injected TownBase instance instead
// of any ambient global.
type TownBase struct {
	mu sync.RWMutex

	npcs     map[string]*NPCState
	vehicles map[string]*VehicleState
	lamps    map[string]*LampState

	subs []func(Event)
}

// NewTownBase constructs an empty store.
func NewTownBase() *TownBase {
	return &TownBase{
		npcs:     make(map[string]*NPCState),
		vehicles: make(map[string]*VehicleState),
		lamps:    make(map[string]*LampState),
	}
}

// AddNPC registers an NPC at its home position. It returns an error if the
// ID already exists.
func (tb *TownBase) AddNPC(def model.NPCDefinition) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if def.ID == "" {
		return fmt.Errorf("npc with empty id")
	}
	if _, exists := tb.npcs[def.ID]; exists {
		return fmt.Errorf("npc with ID %q already exists", def.ID)
	}
	tb.npcs[def.ID] = &NPCState{Def: def, Position: def.Home}
	return nil
}

// AddVehicle registers a vehicle. It returns an error if the ID already
// exists.
func (tb *TownBase) AddVehicle(def model.VehicleDefinition) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if def.ID == "" {
		return fmt.Errorf("vehicle with empty id")
	}
	if _, exists := tb.vehicles[def.ID]; exists {
		return fmt.Errorf("vehicle with ID %q already exists", def.ID)
	}
	var pos model.Vec3
	if len(def.Path) > 0 {
		pos = def.Path[0].Position()
	}
	tb.vehicles[def.ID] = &VehicleState{Def: def, Position: pos}
	return nil
}

// AddLamp registers a street lamp. It returns an error if the ID already
// exists.
func (tb *TownBase) AddLamp(def model.StreetLampDefinition) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if def.ID == "" {
		return fmt.Errorf("lamp with empty id")
	}
	if _, exists := tb.lamps[def.ID]; exists {
		return fmt.Errorf("lamp with ID %q already exists", def.ID)
	}
	tb.lamps[def.ID] = &LampState{Def: def}
	return nil
}

// GetNPC returns a snapshot of the NPC, or ok=false if not found.
func (tb *TownBase) GetNPC(id string) (NPCState, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if s, ok := tb.npcs[id]; ok {
		return *s, true
	}
	return NPCState{}, false
}

// GetVehicle returns a snapshot of the vehicle, or ok=false if not found.
func (tb *TownBase) GetVehicle(id string) (VehicleState, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if s, ok := tb.vehicles[id]; ok {
		return *s, true
	}
	return VehicleState{}, false
}

// GetLamp returns a snapshot of the lamp, or ok=false if not found.
func (tb *TownBase) GetLamp(id string) (LampState, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if s, ok := tb.lamps[id]; ok {
		return *s, true
	}
	return LampState{}, false
}

// ListNPCs returns a snapshot slice of all NPCs.
func (tb *TownBase) ListNPCs() []NPCState {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	res := make([]NPCState, 0, len(tb.npcs))
	for _, s := range tb.npcs {
		res = append(res, *s)
	}
	return res
}

// ListVehicles returns a snapshot slice of all vehicles.
func (tb *TownBase) ListVehicles() []VehicleState {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	res := make([]VehicleState, 0, len(tb.vehicles))
	for _, s := range tb.vehicles {
		res = append(res, *s)
	}
	return res
}

// ListLamps returns a snapshot slice of all lamps.
func (tb *TownBase) ListLamps() []LampState {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	res := make([]LampState, 0, len(tb.lamps))
	for _, s := range tb.lamps {
		res = append(res, *s)
	}
	return res
}

// Counts returns the number of registered entities per kind.
func (tb *TownBase) Counts() (npcs, vehicles, lamps int) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.npcs), len(tb.vehicles), len(tb.lamps)
}

// UpdateNPCPosition moves an NPC and notifies subscribers.
func (tb *TownBase) UpdateNPCPosition(id string, pos model.Vec3) error {
	tb.mu.Lock()
	s, ok := tb.npcs[id]
	if !ok {
		tb.mu.Unlock()
		return fmt.Errorf("npc with ID %q not found", id)
	}
	s.Position = pos
	subs := tb.snapshotSubsLocked()
	tb.mu.Unlock()

	emit(subs, Event{Type: EventNPCMoved, ID: id, Position: pos})
	return nil
}

// SetNPCVehicle records the latest vehicle action applied to an NPC.
func (tb *TownBase) SetNPCVehicle(id, action string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.npcs[id]
	if !ok {
		return fmt.Errorf("npc with ID %q not found", id)
	}
	if action == "exit" {
		s.RidingVehicle = ""
	} else {
		s.RidingVehicle = action
	}
	return nil
}

// UpdateVehiclePosition moves a vehicle and notifies subscribers.
func (tb *TownBase) UpdateVehiclePosition(id string, pos model.Vec3) error {
	tb.mu.Lock()
	s, ok := tb.vehicles[id]
	if !ok {
		tb.mu.Unlock()
		return fmt.Errorf("vehicle with ID %q not found", id)
	}
	s.Position = pos
	subs := tb.snapshotSubsLocked()
	tb.mu.Unlock()

	emit(subs, Event{Type: EventVehicleMoved, ID: id, Position: pos})
	return nil
}

// SetLampIntensity updates a lamp and notifies subscribers.
func (tb *TownBase) SetLampIntensity(id string, intensity float64) error {
	tb.mu.Lock()
	s, ok := tb.lamps[id]
	if !ok {
		tb.mu.Unlock()
		return fmt.Errorf("lamp with ID %q not found", id)
	}
	s.Intensity = intensity
	subs := tb.snapshotSubsLocked()
	tb.mu.Unlock()

	emit(subs, Event{Type: EventLampChanged, ID: id, Intensity: intensity})
	return nil
}

// Subscribe registers a callback for entity-change events. The returned
// function removes the subscription.
func (tb *TownBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.subs = append(tb.subs, fn)
	idx := len(tb.subs) - 1

	var once sync.Once
	return func() {
		once.Do(func() {
			tb.mu.Lock()
			defer tb.mu.Unlock()
			tb.subs[idx] = nil
		})
	}
}

func (tb *TownBase) snapshotSubsLocked() []func(Event) {
	subs := make([]func(Event), 0, len(tb.subs))
	for _, fn := range tb.subs {
		if fn != nil {
			subs = append(subs, fn)
		}
	}
	return subs
}

func emit(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
