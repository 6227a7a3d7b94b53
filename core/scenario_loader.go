package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lanternworks/townsim/internal/logging"
	"github.com/lanternworks/townsim/kb"
	"github.com/lanternworks/townsim/model"
)

// TownScenario is the decoded form of a scenario file, ready to hand to
// Engine.LoadScenario.
type TownScenario struct {
	Name string

	DayDuration   time.Duration
	NightDuration time.Duration
	EventLoopSec  float64
	TimeScale     float64

	NPCs     []model.NPCDefinition
	Vehicles []model.VehicleDefinition
	Lamps    []model.StreetLampDefinition
	Events   []model.StagedEventDefinition
}

// internal JSON shapes – keep them unexported so we’re free to evolve them.
type townScenarioJSON struct {
	Name string `json:"name"`

	DayDurationSec   float64 `json:"day_duration_sec"`
	NightDurationSec float64 `json:"night_duration_sec"`
	EventLoopSec     float64 `json:"event_loop_sec"`
	TimeScale        float64 `json:"time_scale"`

	NPCs     []npcJSON     `json:"npcs"`
	Vehicles []vehicleJSON `json:"vehicles"`
	Lamps    []lampJSON    `json:"lamps"`
	Events   []eventJSON   `json:"events"`
}

type npcJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Home vecJSON `json:"home"`
	// Schedule keys are hour strings ("6", "21.5"); values are waypoints.
	Schedule map[string]waypointJSON `json:"schedule"`
}

type vehicleJSON struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	PhaseOffset float64        `json:"phase_offset"`
	Path        []waypointJSON `json:"path"`
}

type lampJSON struct {
	ID           string  `json:"id"`
	Position     vecJSON `json:"position"`
	MaxIntensity float64 `json:"max_intensity"`
}

type eventJSON struct {
	ID          string  `json:"id"`
	TimeSec     float64 `json:"time_sec"`
	Repeat      bool    `json:"repeat"`
	IntervalSec float64 `json:"interval_sec"`
	Action      string  `json:"action"`
}

type vecJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type waypointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	Meta map[string]string `json:"meta,omitempty"`
}

func (v vecJSON) toModel() model.Vec3 {
	return model.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

func (w waypointJSON) toModel() model.Waypoint {
	return model.Waypoint{X: w.X, Y: w.Y, Z: w.Z, Meta: w.Meta}
}

// LoadTownScenario reads a JSON scenario from r and decodes it into a
// TownScenario. It fails on JSON errors, non-positive loop durations and
// malformed schedule hour keys; entity-level invariants (duplicate IDs) are
// left to the engine's Add* calls, which enforce them the same way direct
// registration does.
func LoadTownScenario(r io.Reader) (*TownScenario, error) {
	var payload townScenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadTownScenario: decode failed: %w", err)
	}

	if payload.DayDurationSec <= 0 {
		return nil, fmt.Errorf("LoadTownScenario: day_duration_sec must be positive, got %v", payload.DayDurationSec)
	}
	if payload.NightDurationSec <= 0 {
		return nil, fmt.Errorf("LoadTownScenario: night_duration_sec must be positive, got %v", payload.NightDurationSec)
	}

	sc := &TownScenario{
		Name:          payload.Name,
		DayDuration:   time.Duration(payload.DayDurationSec * float64(time.Second)),
		NightDuration: time.Duration(payload.NightDurationSec * float64(time.Second)),
		EventLoopSec:  payload.EventLoopSec,
		TimeScale:     payload.TimeScale,
	}

	for _, js := range payload.NPCs {
		if js.ID == "" {
			return nil, fmt.Errorf("LoadTownScenario: npc with empty id")
		}
		schedule := make(model.ScheduleMap, len(js.Schedule))
		for key, wp := range js.Schedule {
			hour, err := strconv.ParseFloat(key, 64)
			if err != nil {
				return nil, fmt.Errorf("LoadTownScenario: npc %q: bad schedule hour %q: %w", js.ID, key, err)
			}
			schedule[hour] = wp.toModel()
		}
		sc.NPCs = append(sc.NPCs, model.NPCDefinition{
			ID:       js.ID,
			Name:     js.Name,
			Home:     js.Home.toModel(),
			Schedule: schedule,
		})
	}

	for _, js := range payload.Vehicles {
		if js.ID == "" {
			return nil, fmt.Errorf("LoadTownScenario: vehicle with empty id")
		}
		path := make([]model.Waypoint, 0, len(js.Path))
		for _, wp := range js.Path {
			path = append(path, wp.toModel())
		}
		sc.Vehicles = append(sc.Vehicles, model.VehicleDefinition{
			ID:          js.ID,
			Name:        js.Name,
			PhaseOffset: js.PhaseOffset,
			Path:        path,
		})
	}

	for _, js := range payload.Lamps {
		if js.ID == "" {
			return nil, fmt.Errorf("LoadTownScenario: lamp with empty id")
		}
		sc.Lamps = append(sc.Lamps, model.StreetLampDefinition{
			ID:           js.ID,
			Position:     js.Position.toModel(),
			MaxIntensity: js.MaxIntensity,
		})
	}

	for _, js := range payload.Events {
		sc.Events = append(sc.Events, model.StagedEventDefinition{
			ID:          js.ID,
			TimeSec:     js.TimeSec,
			Repeat:      js.Repeat,
			IntervalSec: js.IntervalSec,
			Action:      js.Action,
		})
	}

	return sc, nil
}

// LoadScenario registers every entity and staged event from sc with the
// engine. The engine's timing config must already match the scenario; use
// NewEngineFromScenario to construct both together.
func (e *Engine) LoadScenario(sc *TownScenario) error {
	if sc == nil {
		return fmt.Errorf("core: scenario is nil")
	}
	for _, def := range sc.NPCs {
		if err := e.AddNPC(def); err != nil {
			return fmt.Errorf("core: scenario npc %q: %w", def.ID, err)
		}
	}
	for _, def := range sc.Vehicles {
		if err := e.AddVehicle(def); err != nil {
			return fmt.Errorf("core: scenario vehicle %q: %w", def.ID, err)
		}
	}
	for _, def := range sc.Lamps {
		if err := e.AddLamp(def); err != nil {
			return fmt.Errorf("core: scenario lamp %q: %w", def.ID, err)
		}
	}
	for _, def := range sc.Events {
		if err := e.RegisterStagedEvent(def); err != nil {
			return fmt.Errorf("core: scenario event %q: %w", def.ID, err)
		}
	}
	return nil
}

// NewEngineFromScenario builds an engine with the scenario's timing and then
// loads its entities.
func NewEngineFromScenario(sc *TownScenario, town *kb.TownBase, sinks Sinks, log logging.Logger) (*Engine, error) {
	if sc == nil {
		return nil, fmt.Errorf("core: scenario is nil")
	}
	eng, err := NewEngine(Config{
		DayDuration:   sc.DayDuration,
		NightDuration: sc.NightDuration,
		EventLoopSec:  sc.EventLoopSec,
		TimeScale:     sc.TimeScale,
	}, town, sinks, log)
	if err != nil {
		return nil, err
	}
	if err := eng.LoadScenario(sc); err != nil {
		return nil, err
	}
	return eng, nil
}
