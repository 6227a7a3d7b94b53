// Package loopmgr is a deterministic event scheduler over a repeating
// elapsed-time loop. It is driven purely by caller-supplied delta-time
// increments, so the same call sequence always produces the same firings,
// whether it runs under a render loop or a headless test.
package loopmgr

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/lanternworks/townsim/internal/logging"
	"github.com/lanternworks/townsim/timesync"
)

// Context is passed to every fired callback.
type Context struct {
	// EventID identifies the registration that fired.
	EventID string
	// ElapsedSec is the manager's elapsed time within the loop at fire time.
	ElapsedSec float64
	// Loop counts completed loop wraps since construction or Reset.
	Loop int
}

// Callback is the signature of a scheduled event handler.
type Callback func(Context)

// Options configures repeat behaviour for a scheduled event.
type Options struct {
	Repeat      bool
	IntervalSec float64
}

type event struct {
	id          string
	timeSec     float64
	cb          Callback
	repeat      bool
	intervalSec float64
	active      bool
	seq         int

	// firing bookkeeping, reset on every loop wrap
	fired       bool
	lastFireSec float64
}

// Manager advances an elapsed-time counter wrapping at a configurable loop
// duration and fires registered events when their trigger time is crossed.
// It is independent of the day/night clock: the two timing subsystems are
// deliberately decoupled so scripted events can run on their own cadence.
// Not safe for concurrent use; it belongs to the single frame-loop thread.
type Manager struct {
	loopSec   float64
	timeScale float64

	running   bool
	elapsed   float64
	loopCount int

	nextSeq int
	events  []*event

	log logging.Logger

	// FireHook, when set, is invoked after each successful firing. Used to
	// feed metrics.
	FireHook func(eventID string)
	// PanicHook, when set, is invoked after a callback panic has been
	// recovered and logged.
	PanicHook func(eventID string, v any)
}

// New constructs a Manager. loopDurationSec must be positive and finite;
// timeScale must be finite but may be zero or negative (the loop then holds
// still or runs backwards — not meaningful, but never a crash).
func New(loopDurationSec, timeScale float64, log logging.Logger) (*Manager, error) {
	if !(loopDurationSec > 0) || math.IsInf(loopDurationSec, 0) {
		return nil, fmt.Errorf("loopmgr: loop duration must be a positive finite number of seconds, got %v", loopDurationSec)
	}
	if math.IsNaN(timeScale) || math.IsInf(timeScale, 0) {
		return nil, fmt.Errorf("loopmgr: time scale must be finite, got %v", timeScale)
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Manager{
		loopSec:   loopDurationSec,
		timeScale: timeScale,
		log:       log,
	}, nil
}

// Start enables Update. The manager is constructed stopped.
func (m *Manager) Start() { m.running = true }

// Stop disables Update; elapsed time and firing state are preserved.
func (m *Manager) Stop() { m.running = false }

// Running reports whether Update currently advances time.
func (m *Manager) Running() bool { return m.running }

// ElapsedSec returns the current position within the loop, in [0, loop).
func (m *Manager) ElapsedSec() float64 { return m.elapsed }

// LoopCount returns how many times the loop has wrapped since construction
// or the last Reset.
func (m *Manager) LoopCount() int { return m.loopCount }

// LoopDurationSec returns the configured loop length.
func (m *Manager) LoopDurationSec() float64 { return m.loopSec }

// ScheduleEvent registers a callback to fire when the loop reaches timeSec.
// An empty id is replaced with a generated one; the effective id is
// returned. Scheduling with an id that is already registered REPLACES the
// prior registration (the replacement takes a fresh position in the
// tie-break order). A non-finite timeSec is rejected.
func (m *Manager) ScheduleEvent(id string, timeSec float64, cb Callback, opts *Options) (string, error) {
	if cb == nil {
		return "", fmt.Errorf("loopmgr: callback must not be nil")
	}
	if math.IsNaN(timeSec) || math.IsInf(timeSec, 0) {
		return "", fmt.Errorf("loopmgr: event time must be finite, got %v", timeSec)
	}
	if id == "" {
		id = uuid.NewString()
	} else {
		m.removeByID(id)
	}

	ev := &event{
		id:      id,
		timeSec: timeSec,
		cb:      cb,
		active:  true,
		seq:     m.nextSeq,
	}
	m.nextSeq++
	if opts != nil {
		ev.repeat = opts.Repeat
		ev.intervalSec = opts.IntervalSec
	}
	m.events = append(m.events, ev)
	return id, nil
}

// SetActive soft-enables or soft-disables an event without removing it.
// Unknown ids are a no-op.
func (m *Manager) SetActive(id string, active bool) {
	for _, ev := range m.events {
		if ev.id == id {
			ev.active = active
			return
		}
	}
}

// RemoveEvent drops an event registration. Unknown ids are a no-op.
func (m *Manager) RemoveEvent(id string) { m.removeByID(id) }

func (m *Manager) removeByID(id string) {
	for i, ev := range m.events {
		if ev.id == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return
		}
	}
}

// ClearEvents drops every registration.
func (m *Manager) ClearEvents() { m.events = nil }

// Reset zeroes elapsed time and the loop counter and re-arms every event so
// a subsequent pass fires from scratch. The running flag is left alone.
func (m *Manager) Reset() {
	m.elapsed = 0
	m.loopCount = 0
	m.rearm()
}

func (m *Manager) rearm() {
	for _, ev := range m.events {
		ev.fired = false
		ev.lastFireSec = 0
	}
}

// Update advances the loop by deltaSeconds (scaled by the time scale) and
// fires events whose trigger time has been reached. While stopped it is a
// no-op. Events crossed in the same call fire in ascending trigger-time
// order, ties broken by registration order. A panicking callback is
// recovered and logged and does not stop later events from firing.
func (m *Manager) Update(deltaSeconds float64) {
	if !m.running {
		return
	}

	raw := m.elapsed + deltaSeconds*m.timeScale
	if raw >= m.loopSec || raw < 0 {
		if raw >= m.loopSec {
			m.loopCount += int(raw / m.loopSec)
		} else {
			m.loopCount++
		}
		m.rearm()
	}
	m.elapsed = timesync.Mod(raw, m.loopSec)

	for _, ev := range m.firingOrder() {
		if !ev.active {
			continue
		}
		if !ev.fired {
			if m.elapsed < ev.timeSec {
				continue
			}
			ev.fired = true
			ev.lastFireSec = ev.timeSec
			m.fire(ev)
			// Fall through: a large delta can cross the trigger and one or
			// more repeat intervals in the same update.
		}
		if ev.repeat && ev.intervalSec > 0 {
			for m.elapsed >= ev.lastFireSec+ev.intervalSec {
				ev.lastFireSec += ev.intervalSec
				m.fire(ev)
			}
		}
	}
}

// firingOrder returns a snapshot of the registrations sorted by trigger time
// then registration sequence, so mutation from inside a callback cannot
// disturb the pass in progress.
func (m *Manager) firingOrder() []*event {
	order := make([]*event, len(m.events))
	copy(order, m.events)
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].timeSec != order[j].timeSec {
			return order[i].timeSec < order[j].timeSec
		}
		return order[i].seq < order[j].seq
	})
	return order
}

func (m *Manager) fire(ev *event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(context.Background(), "scheduled event callback panicked",
				logging.String("event_id", ev.id),
				logging.Any("panic", r),
			)
			if m.PanicHook != nil {
				m.PanicHook(ev.id, r)
			}
		}
	}()
	ev.cb(Context{
		EventID:    ev.id,
		ElapsedSec: m.elapsed,
		Loop:       m.loopCount,
	})
	if m.FireHook != nil {
		m.FireHook(ev.id)
	}
}
