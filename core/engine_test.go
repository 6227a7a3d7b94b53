package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lanternworks/townsim/kb"
	"github.com/lanternworks/townsim/model"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type engineHarness struct {
	eng  *Engine
	town *kb.TownBase
	now  time.Time
}

func newHarness(t *testing.T, sinks Sinks) *engineHarness {
	t.Helper()
	town := kb.NewTownBase()
	eng, err := NewEngine(Config{
		DayDuration:   120 * time.Second,
		NightDuration: 120 * time.Second,
	}, town, sinks, nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	h := &engineHarness{eng: eng, town: town, now: time.Unix(5000, 0)}
	eng.Clock().SetNowFunc(func() time.Time { return h.now })
	eng.Start()
	return h
}

// step advances fake wall time and the engine together.
func (h *engineHarness) step(d time.Duration) {
	h.now = h.now.Add(d)
	h.eng.Step(d.Seconds())
}

func TestEngineInterpolatesNPCPositions(t *testing.T) {
	var lastPos model.Vec3
	h := newHarness(t, Sinks{
		NPCPosition: func(_ string, pos model.Vec3) { lastPos = pos },
	})

	if err := h.eng.AddNPC(model.NPCDefinition{
		ID: "npc1",
		Schedule: model.ScheduleMap{
			6:  {X: 0},
			18: {X: 100},
		},
	}); err != nil {
		t.Fatalf("AddNPC error: %v", err)
	}

	// 60s into a 240s loop is phase 0.25: halfway from hour 6 to hour 18.
	h.step(60 * time.Second)
	if math.Abs(lastPos.X-50) > 1e-6 {
		t.Fatalf("NPC X at quarter loop = %v, want 50", lastPos.X)
	}

	got, _ := h.town.GetNPC("npc1")
	if got.Position != lastPos {
		t.Fatalf("store position %v != sink position %v", got.Position, lastPos)
	}
}

func TestEngineFiresVehicleActionOnCrossing(t *testing.T) {
	var actions []string
	h := newHarness(t, Sinks{
		VehicleAction: func(_, action string) { actions = append(actions, action) },
	})

	if err := h.eng.AddNPC(model.NPCDefinition{
		ID: "npc1",
		Schedule: model.ScheduleMap{
			6: {X: 0},
			// Hour 9 is 30s into the 240s loop.
			9:  {Z: 4, Meta: map[string]string{model.MetaVehicleAction: "enter"}},
			12: {X: 8, Z: 4},
		},
	}); err != nil {
		t.Fatalf("AddNPC error: %v", err)
	}

	h.step(29 * time.Second)
	if len(actions) != 0 {
		t.Fatalf("action fired before the keyframe: %v", actions)
	}

	h.step(2 * time.Second) // crosses 30s
	if len(actions) != 1 || actions[0] != "enter" {
		t.Fatalf("actions after crossing = %v, want [enter]", actions)
	}

	h.step(time.Second) // must not refire
	if len(actions) != 1 {
		t.Fatalf("action refired without a new crossing: %v", actions)
	}

	npc, _ := h.town.GetNPC("npc1")
	if npc.RidingVehicle != "enter" {
		t.Fatalf("RidingVehicle = %q, want enter", npc.RidingVehicle)
	}
}

func TestEngineVehicleFollowsPathWithOffset(t *testing.T) {
	var lastPos model.Vec3
	h := newHarness(t, Sinks{
		VehiclePosition: func(_ string, pos model.Vec3) { lastPos = pos },
	})

	path := []model.Waypoint{
		{X: 0, Z: 0},
		{X: 10, Z: 0},
		{X: 10, Z: 10},
		{X: 0, Z: 10},
	}
	if err := h.eng.AddVehicle(model.VehicleDefinition{
		ID:          "bus1",
		Path:        path,
		PhaseOffset: 0.5,
	}); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}

	// Near phase 0 with offset 0.5 the bus sits at the far corner.
	h.step(time.Millisecond)
	if math.Abs(lastPos.X-10) > 0.01 || math.Abs(lastPos.Z-10) > 0.01 {
		t.Fatalf("offset bus position = %+v, want near (10, 10)", lastPos)
	}
}

func TestEngineDrivesLampsAndAmbient(t *testing.T) {
	var ambient float64
	var lampLevels []float64
	h := newHarness(t, Sinks{
		AmbientLight:  func(v float64) { ambient = v },
		LampIntensity: func(_ string, v float64) { lampLevels = append(lampLevels, v) },
	})

	if err := h.eng.AddLamp(model.StreetLampDefinition{ID: "lamp1", MaxIntensity: 0.5}); err != nil {
		t.Fatalf("AddLamp error: %v", err)
	}

	// 180s is mid-night in the 120/120 loop.
	h.step(180 * time.Second)
	if ambient != nightAmbientFloor {
		t.Fatalf("night ambient = %v, want floor %v", ambient, nightAmbientFloor)
	}
	wantLamp := (1 - nightAmbientFloor) * 0.5
	if len(lampLevels) == 0 || math.Abs(lampLevels[len(lampLevels)-1]-wantLamp) > 1e-9 {
		t.Fatalf("lamp levels = %v, want last %v", lampLevels, wantLamp)
	}

	lamp, _ := h.town.GetLamp("lamp1")
	if math.Abs(lamp.Intensity-wantLamp) > 1e-9 {
		t.Fatalf("stored lamp intensity = %v, want %v", lamp.Intensity, wantLamp)
	}
}

func TestEngineStagedEvents(t *testing.T) {
	var events []string
	h := newHarness(t, Sinks{
		StagedEvent: func(id, action string) { events = append(events, id+":"+action) },
	})

	if err := h.eng.RegisterStagedEvent(model.StagedEventDefinition{
		ID:      "bells",
		TimeSec: 5,
		Action:  "ring",
	}); err != nil {
		t.Fatalf("RegisterStagedEvent error: %v", err)
	}

	h.step(4 * time.Second)
	if len(events) != 0 {
		t.Fatalf("staged event fired early: %v", events)
	}
	h.step(2 * time.Second)
	if len(events) != 1 || events[0] != "bells:ring" {
		t.Fatalf("staged events = %v, want [bells:ring]", events)
	}
}

func TestEnginePauseFreezesWorld(t *testing.T) {
	var positions []model.Vec3
	h := newHarness(t, Sinks{
		NPCPosition: func(_ string, pos model.Vec3) { positions = append(positions, pos) },
	})

	if err := h.eng.AddNPC(model.NPCDefinition{
		ID:       "npc1",
		Schedule: model.ScheduleMap{6: {X: 0}, 18: {X: 100}},
	}); err != nil {
		t.Fatalf("AddNPC error: %v", err)
	}

	h.step(30 * time.Second)
	frozen := positions[len(positions)-1]

	h.eng.Pause()
	h.step(60 * time.Second)
	h.eng.Resume()
	h.step(time.Millisecond)

	resumed := positions[len(positions)-1]
	if math.Abs(resumed.X-frozen.X) > 0.01 {
		t.Fatalf("position moved across pause: %v -> %v", frozen, resumed)
	}
}

func TestSinksFireInRegistrationOrder(t *testing.T) {
	var order []string
	h := newHarness(t, Sinks{
		NPCPosition:     func(id string, _ model.Vec3) { order = append(order, id) },
		VehiclePosition: func(id string, _ model.Vec3) { order = append(order, id) },
	})

	schedule := model.ScheduleMap{6: {X: 1}}
	for _, id := range []string{"npc-c", "npc-a", "npc-b"} {
		if err := h.eng.AddNPC(model.NPCDefinition{ID: id, Schedule: schedule}); err != nil {
			t.Fatalf("AddNPC error: %v", err)
		}
	}
	path := []model.Waypoint{{X: 0}, {X: 10}}
	for _, id := range []string{"veh-z", "veh-a"} {
		if err := h.eng.AddVehicle(model.VehicleDefinition{ID: id, Path: path}); err != nil {
			t.Fatalf("AddVehicle error: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		order = order[:0]
		h.step(time.Second)
		want := []string{"npc-c", "npc-a", "npc-b", "veh-z", "veh-a"}
		if len(order) != len(want) {
			t.Fatalf("step %d sink calls = %v, want %v", i, order, want)
		}
		for j := range want {
			if order[j] != want[j] {
				t.Fatalf("step %d sink order = %v, want %v", i, order, want)
			}
		}
	}
}

func TestRunRecordsSimulationSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	h := newHarness(t, Sinks{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := h.eng.Run(ctx, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want deadline exceeded", err)
	}

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() == "simulation.run" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no simulation.run span recorded; got %d spans", len(recorder.Ended()))
	}
}

func TestNewEngineFromScenario(t *testing.T) {
	sc := &TownScenario{
		DayDuration:   60 * time.Second,
		NightDuration: 60 * time.Second,
		NPCs: []model.NPCDefinition{
			{ID: "npc1", Schedule: model.ScheduleMap{6: {X: 1}}},
		},
		Vehicles: []model.VehicleDefinition{
			{ID: "bus1", Path: []model.Waypoint{{X: 0}, {X: 10}}},
		},
		Lamps: []model.StreetLampDefinition{
			{ID: "lamp1"},
		},
		Events: []model.StagedEventDefinition{
			{ID: "bells", TimeSec: 5, Action: "ring"},
		},
	}

	town := kb.NewTownBase()
	eng, err := NewEngineFromScenario(sc, town, Sinks{}, nil)
	if err != nil {
		t.Fatalf("NewEngineFromScenario error: %v", err)
	}

	npcs, vehicles, lamps := town.Counts()
	if npcs != 1 || vehicles != 1 || lamps != 1 {
		t.Fatalf("Counts = (%d, %d, %d), want (1, 1, 1)", npcs, vehicles, lamps)
	}
	if eng.Clock().TotalMs() != 120000 {
		t.Fatalf("TotalMs = %v, want 120000", eng.Clock().TotalMs())
	}

	// Duplicate IDs surface as load errors.
	sc.NPCs = append(sc.NPCs, model.NPCDefinition{ID: "npc1"})
	if _, err := NewEngineFromScenario(sc, kb.NewTownBase(), Sinks{}, nil); err == nil {
		t.Fatalf("expected duplicate npc id to fail scenario load")
	}
}
