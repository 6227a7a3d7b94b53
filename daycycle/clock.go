// Package daycycle maintains the repeating day/night loop that drives the
// town: a Clock that turns elapsed wall time into a loop phase, and an
// HourQuantizer that buckets the phase into the 24 semantic hours.
package daycycle

import (
	"context"
	"fmt"
	"time"

	"github.com/lanternworks/townsim/internal/logging"
	"github.com/lanternworks/townsim/timesync"
)

// ClockState is the snapshot published to subscribers on every tick.
// Exactly one of DayProgress/NightProgress is meaningful, selected by IsDay;
// the other is zero by convention.
type ClockState struct {
	// Now is the wall-clock time captured at the tick.
	Now time.Time
	// ElapsedInLoopMs is in [0, total loop ms).
	ElapsedInLoopMs float64
	IsDay           bool
	DayProgress     float64
	NightProgress   float64
	// DisplaySeconds is the whole second count into the current loop, for
	// on-screen clocks.
	DisplaySeconds int
}

type clockSub struct {
	token int
	fn    func(ClockState)
}

// Clock tracks elapsed wall time modulo a day+night loop, with pause
// support. It is driven by an external frame loop calling Tick once per
// frame and is not safe for concurrent use; the whole simulation runs on a
// single logical thread (the frame loop).
type Clock struct {
	dayMs   float64
	nightMs float64
	totalMs float64

	start    time.Time
	pausedMs float64
	paused   bool
	pausedAt time.Time

	// nowFn is swapped out by tests to drive the clock deterministically.
	nowFn func() time.Time

	nextToken int
	subs      []clockSub
	lastState *ClockState

	log logging.Logger

	// PanicHook, when set, is invoked after a subscriber panic has been
	// recovered and logged. Used to feed failure counters.
	PanicHook func(v any)
}

// NewClock constructs a Clock with the given day and night durations. Both
// must be positive; non-positive durations are rejected rather than clamped,
// since they are caller mistakes and clamping would silently change the
// loop length every dependent component was built against.
func NewClock(day, night time.Duration, log logging.Logger) (*Clock, error) {
	if day <= 0 {
		return nil, fmt.Errorf("daycycle: day duration must be positive, got %v", day)
	}
	if night <= 0 {
		return nil, fmt.Errorf("daycycle: night duration must be positive, got %v", night)
	}
	if log == nil {
		log = logging.Noop()
	}
	c := &Clock{
		dayMs:   durationMs(day),
		nightMs: durationMs(night),
		totalMs: durationMs(day) + durationMs(night),
		nowFn:   time.Now,
		log:     log,
	}
	c.start = c.nowFn()
	return c, nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// SetNowFunc overrides the clock's wall-time source and re-anchors the loop
// start at the new source's current instant. Call it before the first Tick;
// tests use it to drive the clock deterministically.
func (c *Clock) SetNowFunc(fn func() time.Time) {
	c.nowFn = fn
	c.start = fn()
	c.pausedMs = 0
}

// DayMs returns the day span in milliseconds.
func (c *Clock) DayMs() float64 { return c.dayMs }

// NightMs returns the night span in milliseconds.
func (c *Clock) NightMs() float64 { return c.nightMs }

// TotalMs returns the full loop length in milliseconds. Callers constructing
// an HourQuantizer pass this value through explicitly.
func (c *Clock) TotalMs() float64 { return c.totalMs }

// Tick advances the clock to the current wall time and publishes a state
// snapshot to every subscriber. While paused it returns immediately. Tick
// never fails: a panicking subscriber is recovered and logged, and the
// remaining subscribers still receive the snapshot.
func (c *Clock) Tick() {
	if c.paused {
		return
	}

	now := c.nowFn()
	elapsedMs := durationMs(now.Sub(c.start)) - c.pausedMs
	elapsedInLoop := timesync.Mod(elapsedMs, c.totalMs)

	state := ClockState{
		Now:             now,
		ElapsedInLoopMs: elapsedInLoop,
		IsDay:           elapsedInLoop < c.dayMs,
		DisplaySeconds:  int(elapsedInLoop / 1000),
	}
	if state.IsDay {
		state.DayProgress = elapsedInLoop / c.dayMs
	} else {
		state.NightProgress = (elapsedInLoop - c.dayMs) / c.nightMs
	}

	c.lastState = &state

	// Iterate over a snapshot so that subscribing or unsubscribing from
	// inside a callback takes effect next tick instead of corrupting this
	// notification pass.
	subs := make([]clockSub, len(c.subs))
	copy(subs, c.subs)
	for _, sub := range subs {
		c.notify(sub, state)
	}
}

func (c *Clock) notify(sub clockSub, state ClockState) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(context.Background(), "clock subscriber panicked",
				logging.Int("token", sub.token),
				logging.Any("panic", r),
			)
			if c.PanicHook != nil {
				c.PanicHook(r)
			}
		}
	}()
	sub.fn(state)
}

// Subscribe registers a callback invoked synchronously on every tick, in
// registration order. The returned function removes the subscription;
// calling it more than once is a no-op.
func (c *Clock) Subscribe(fn func(ClockState)) (unsubscribe func()) {
	token := c.nextToken
	c.nextToken++
	c.subs = append(c.subs, clockSub{token: token, fn: fn})

	return func() {
		for i, sub := range c.subs {
			if sub.token == token {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// LastState returns the most recently published snapshot, letting late
// subscribers bootstrap without waiting a full frame. ok is false before the
// first tick.
func (c *Clock) LastState() (state ClockState, ok bool) {
	if c.lastState == nil {
		return ClockState{}, false
	}
	return *c.lastState, true
}

// Pause freezes the loop phase. Idempotent.
func (c *Clock) Pause() {
	if c.paused {
		return
	}
	c.paused = true
	c.pausedAt = c.nowFn()
}

// Resume unfreezes the loop phase; the paused interval contributes nothing
// to elapsed time. Idempotent.
func (c *Clock) Resume() {
	if !c.paused {
		return
	}
	c.pausedMs += durationMs(c.nowFn().Sub(c.pausedAt))
	c.paused = false
}

// Paused reports whether the clock is currently paused.
func (c *Clock) Paused() bool { return c.paused }
