// Package core wires the timing subsystems into a running town: the engine
// owns the day/night clock, the hour quantizer and the event loop, drives
// interpolated entity positions into the knowledge base every frame, and
// pushes the results out through caller-registered sinks.
package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lanternworks/townsim/daycycle"
	"github.com/lanternworks/townsim/internal/logging"
	"github.com/lanternworks/townsim/kb"
	"github.com/lanternworks/townsim/loopmgr"
	"github.com/lanternworks/townsim/model"
	"github.com/lanternworks/townsim/route"
	"github.com/lanternworks/townsim/timesync"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "townsim/core"

// Config sets the engine's timing parameters.
type Config struct {
	// DayDuration and NightDuration define the visual loop.
	DayDuration   time.Duration
	NightDuration time.Duration

	// EventLoopSec is the scripted-event loop length. Zero means "match the
	// day/night loop".
	EventLoopSec float64

	// TimeScale multiplies event-loop deltas. Zero means 1.
	TimeScale float64
}

type npcState struct {
	plan *route.Plan
}

type vehicleState struct {
	path   *route.PathPlan
	offset float64
}

// Engine runs the simulation. Construct it with NewEngine, add entities (or
// load a scenario), then either call Step from an external frame loop or
// hand control to Run. Not safe for concurrent use: all methods belong to
// the frame-loop goroutine.
type Engine struct {
	clock *daycycle.Clock
	hours *daycycle.HourQuantizer
	loop  *loopmgr.Manager
	town  *kb.TownBase

	sinks Sinks
	log   logging.Logger

	npcs     map[string]*npcState
	vehicles map[string]*vehicleState

	// Registration order, so per-frame sink output is deterministic.
	npcOrder     []string
	vehicleOrder []string

	// prevPhase is the loop phase at the previous step, used to detect
	// vehicle-action keyframe crossings. -1 until the first step.
	prevPhase float64

	// TickHook, when set, receives the wall duration of each Step. Used to
	// feed the tick-duration histogram.
	TickHook func(elapsed time.Duration)
}

// NewEngine builds the clock, quantizer and loop manager from cfg and binds
// them to the given town store and sinks.
func NewEngine(cfg Config, town *kb.TownBase, sinks Sinks, log logging.Logger) (*Engine, error) {
	if town == nil {
		return nil, fmt.Errorf("core: town store must not be nil")
	}
	if log == nil {
		log = logging.Noop()
	}

	clock, err := daycycle.NewClock(cfg.DayDuration, cfg.NightDuration, logging.Named(log, "clock"))
	if err != nil {
		return nil, err
	}
	hours, err := daycycle.NewHourQuantizer(clock, clock.TotalMs(), logging.Named(log, "hours"))
	if err != nil {
		return nil, err
	}

	loopSec := cfg.EventLoopSec
	if loopSec == 0 {
		loopSec = clock.TotalMs() / 1000
	}
	scale := cfg.TimeScale
	if scale == 0 {
		scale = 1
	}
	loop, err := loopmgr.New(loopSec, scale, logging.Named(log, "events"))
	if err != nil {
		return nil, err
	}

	return &Engine{
		clock:     clock,
		hours:     hours,
		loop:      loop,
		town:      town,
		sinks:     sinks,
		log:       log,
		npcs:      make(map[string]*npcState),
		vehicles:  make(map[string]*vehicleState),
		prevPhase: -1,
	}, nil
}

// Clock returns the engine's day/night clock.
func (e *Engine) Clock() *daycycle.Clock { return e.clock }

// Hours returns the engine's hour quantizer.
func (e *Engine) Hours() *daycycle.HourQuantizer { return e.hours }

// Events returns the engine's scripted-event loop manager.
func (e *Engine) Events() *loopmgr.Manager { return e.loop }

// Town returns the engine's entity store.
func (e *Engine) Town() *kb.TownBase { return e.town }

// AddNPC registers an NPC and compiles its schedule for interpolation.
func (e *Engine) AddNPC(def model.NPCDefinition) error {
	if err := e.town.AddNPC(def); err != nil {
		return err
	}
	e.npcs[def.ID] = &npcState{plan: route.NewPlan(def.Schedule)}
	e.npcOrder = append(e.npcOrder, def.ID)
	return nil
}

// AddVehicle registers a path-following vehicle.
func (e *Engine) AddVehicle(def model.VehicleDefinition) error {
	if err := e.town.AddVehicle(def); err != nil {
		return err
	}
	e.vehicles[def.ID] = &vehicleState{
		path:   route.NewPathPlan(def.Path),
		offset: def.PhaseOffset,
	}
	e.vehicleOrder = append(e.vehicleOrder, def.ID)
	return nil
}

// AddLamp registers a street lamp.
func (e *Engine) AddLamp(def model.StreetLampDefinition) error {
	return e.town.AddLamp(def)
}

// RegisterStagedEvent schedules a scripted world event on the event loop.
// Its callback routes the action string to the StagedEvent sink.
func (e *Engine) RegisterStagedEvent(def model.StagedEventDefinition) error {
	var opts *loopmgr.Options
	if def.Repeat {
		opts = &loopmgr.Options{Repeat: true, IntervalSec: def.IntervalSec}
	}
	_, err := e.loop.ScheduleEvent(def.ID, def.TimeSec, func(ctx loopmgr.Context) {
		e.log.Info(context.Background(), "staged event fired",
			logging.String("event_id", ctx.EventID),
			logging.String("action", def.Action),
			logging.Float("elapsed_sec", ctx.ElapsedSec),
		)
		if e.sinks.StagedEvent != nil {
			e.sinks.StagedEvent(ctx.EventID, def.Action)
		}
	}, opts)
	return err
}

// Start arms the event loop. The clock needs no arming; it runs from its
// construction instant.
func (e *Engine) Start() { e.loop.Start() }

// Pause freezes both the day/night clock and the event loop.
func (e *Engine) Pause() {
	e.clock.Pause()
	e.loop.Stop()
}

// Resume unfreezes the clock and re-arms the event loop.
func (e *Engine) Resume() {
	e.clock.Resume()
	e.loop.Start()
}

// Step advances the simulation one frame: tick the clock (which fans out to
// the quantizer and its subscribers), advance the event loop by deltaSec,
// then refresh every entity position and lighting level.
func (e *Engine) Step(deltaSec float64) {
	began := time.Now()

	e.clock.Tick()
	e.loop.Update(deltaSec)

	state, ok := e.clock.LastState()
	if ok {
		e.applyWorld(state)
	}

	if e.TickHook != nil {
		e.TickHook(time.Since(began))
	}
}

func (e *Engine) applyWorld(state daycycle.ClockState) {
	phase := state.ElapsedInLoopMs / e.clock.TotalMs()

	for _, id := range e.npcOrder {
		npc := e.npcs[id]
		wp, ok := npc.plan.PositionAt(phase)
		if !ok {
			continue
		}
		pos := wp.Position()
		if err := e.town.UpdateNPCPosition(id, pos); err != nil {
			e.log.Warn(context.Background(), "npc position update failed",
				logging.String("npc_id", id), logging.Any("error", err))
			continue
		}
		if e.sinks.NPCPosition != nil {
			e.sinks.NPCPosition(id, pos)
		}
		if e.prevPhase >= 0 {
			e.fireCrossedActions(id, npc.plan, e.prevPhase, phase)
		}
	}

	for _, id := range e.vehicleOrder {
		veh := e.vehicles[id]
		wp, ok := veh.path.PositionAt(timesync.Mod(phase+veh.offset, 1))
		if !ok {
			continue
		}
		pos := wp.Position()
		if err := e.town.UpdateVehiclePosition(id, pos); err != nil {
			e.log.Warn(context.Background(), "vehicle position update failed",
				logging.String("vehicle_id", id), logging.Any("error", err))
			continue
		}
		if e.sinks.VehiclePosition != nil {
			e.sinks.VehiclePosition(id, pos)
		}
	}

	ambient := AmbientIntensity(state)
	if e.sinks.AmbientLight != nil {
		e.sinks.AmbientLight(ambient)
	}
	lampLevel := LampIntensity(state)
	lamps := e.town.ListLamps()
	sort.Slice(lamps, func(i, j int) bool { return lamps[i].Def.ID < lamps[j].Def.ID })
	for _, lamp := range lamps {
		max := lamp.Def.MaxIntensity
		if max == 0 {
			max = 1
		}
		intensity := lampLevel * max
		if err := e.town.SetLampIntensity(lamp.Def.ID, intensity); err != nil {
			continue
		}
		if e.sinks.LampIntensity != nil {
			e.sinks.LampIntensity(lamp.Def.ID, intensity)
		}
	}

	e.prevPhase = phase
}

// fireCrossedActions fires the vehicle-action sink for every action keyframe
// whose phase lies in (from, to], wrapping across the loop boundary. Sampling
// exactly on a keyframe fires it on that step and not again on the next.
func (e *Engine) fireCrossedActions(npcID string, plan *route.Plan, from, to float64) {
	if from == to {
		return
	}
	span := timesync.Mod(to-from, 1)
	for _, pt := range plan.ActionPoints() {
		d := timesync.Mod(pt.Percent-from, 1)
		if d > 0 && d <= span {
			e.log.Info(context.Background(), "vehicle action",
				logging.String("npc_id", npcID),
				logging.String("action", pt.Action),
			)
			if err := e.town.SetNPCVehicle(npcID, pt.Action); err == nil && e.sinks.VehicleAction != nil {
				e.sinks.VehicleAction(npcID, pt.Action)
			}
		}
	}
}

// Run drives the engine from a wall-clock ticker until ctx is cancelled.
// tick is the frame interval; each frame advances the event loop by the real
// interval since the previous frame. The whole run is wrapped in one trace
// span so an exporter sees the simulation's lifetime and frame count.
func (e *Engine) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		return fmt.Errorf("core: tick interval must be positive, got %v", tick)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "simulation.run",
		trace.WithAttributes(attribute.Float64("tick_sec", tick.Seconds())),
	)
	frames := 0
	defer func() {
		span.SetAttributes(attribute.Int("frames", frames))
		span.End()
	}()
	e.Start()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	prev := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info(context.Background(), "engine stopping", logging.Any("reason", ctx.Err()))
			return ctx.Err()
		case now := <-ticker.C:
			e.Step(now.Sub(prev).Seconds())
			prev = now
			frames++
		}
	}
}
