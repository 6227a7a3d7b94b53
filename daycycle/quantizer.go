package daycycle

import (
	"context"
	"fmt"
	"math"

	"github.com/lanternworks/townsim/internal/logging"
	"github.com/lanternworks/townsim/loopmgr"
	"github.com/lanternworks/townsim/timesync"
)

// HourInfo is the discrete-hour view of a clock tick. It is derived purely
// from the tick's elapsed loop time; the quantizer keeps no independent time
// state.
type HourInfo struct {
	// HourIndex is the loop-relative hour bucket in [0, 23] (0 is the first
	// hour of the loop, i.e. 6AM on the semantic clock).
	HourIndex int
	// HourProgress is the fraction of the current hour already elapsed,
	// in [0, 1).
	HourProgress float64
	// LoopPercent is the overall loop phase in [0, 1).
	LoopPercent float64
	// ElapsedMsIntoHour is the millisecond offset into the current hour.
	ElapsedMsIntoHour float64
}

// HourInfoFromElapsed derives HourInfo for an elapsed position in a loop of
// totalMs milliseconds. Elapsed values outside [0, totalMs) wrap.
func HourInfoFromElapsed(elapsedMs, totalMs float64) HourInfo {
	inLoop := timesync.Mod(elapsedMs, totalMs)
	loopPercent := inLoop / totalMs
	floatHour := loopPercent * timesync.HoursPerLoop
	whole := math.Floor(floatHour)
	msPerHour := totalMs / timesync.HoursPerLoop

	return HourInfo{
		HourIndex:         int(whole) % int(timesync.HoursPerLoop),
		HourProgress:      floatHour - whole,
		LoopPercent:       loopPercent,
		ElapsedMsIntoHour: inLoop - whole*msPerHour,
	}
}

type hourInfoSub struct {
	token int
	fn    func(HourInfo, ClockState)
}

type boundarySub struct {
	token int
	fn    func(int, ClockState)
}

// HourQuantizer converts the clock's continuous phase into 24 hour buckets.
// It subscribes to a Clock at construction and, on every tick, publishes
// HourInfo to continuous subscribers and — whenever the bucket index changes,
// the 23→0 wrap included — the new index to boundary subscribers.
//
// The quantizer holds a non-owning reference to its clock; Close detaches it.
type HourQuantizer struct {
	totalMs float64

	prevHour int // -1 until the first tick
	lastInfo *HourInfo

	nextToken    int
	infoSubs     []hourInfoSub
	boundarySubs []boundarySub

	detach func()
	log    logging.Logger

	// PanicHook mirrors Clock.PanicHook for the quantizer's own subscriber
	// lists.
	PanicHook func(v any)
	// BoundaryHook, when set, is invoked once per hour-boundary transition
	// (before subscribers). Used to feed metrics.
	BoundaryHook func(hourIndex int)
}

// NewHourQuantizer attaches a quantizer to clock. totalLoopMs is passed by
// the caller rather than read off the clock so the quantizer stays decoupled
// from the clock's internals; it must equal the clock's day+night total.
func NewHourQuantizer(clock *Clock, totalLoopMs float64, log logging.Logger) (*HourQuantizer, error) {
	if clock == nil {
		return nil, fmt.Errorf("daycycle: clock must not be nil")
	}
	if !(totalLoopMs > 0) {
		return nil, fmt.Errorf("daycycle: total loop must be positive milliseconds, got %v", totalLoopMs)
	}
	if log == nil {
		log = logging.Noop()
	}
	q := &HourQuantizer{
		totalMs:  totalLoopMs,
		prevHour: -1,
		log:      log,
	}
	q.detach = clock.Subscribe(q.onTick)
	return q, nil
}

// Close detaches the quantizer from its clock. Safe to call more than once.
func (q *HourQuantizer) Close() {
	if q.detach != nil {
		q.detach()
		q.detach = nil
	}
}

func (q *HourQuantizer) onTick(state ClockState) {
	info := HourInfoFromElapsed(state.ElapsedInLoopMs, q.totalMs)
	q.lastInfo = &info

	infoSubs := make([]hourInfoSub, len(q.infoSubs))
	copy(infoSubs, q.infoSubs)
	for _, sub := range infoSubs {
		q.notifyInfo(sub, info, state)
	}

	// The first tick establishes the baseline without firing a boundary:
	// there is no previous hour to have crossed out of.
	if q.prevHour >= 0 && info.HourIndex != q.prevHour {
		if q.BoundaryHook != nil {
			q.BoundaryHook(info.HourIndex)
		}
		boundarySubs := make([]boundarySub, len(q.boundarySubs))
		copy(boundarySubs, q.boundarySubs)
		for _, sub := range boundarySubs {
			q.notifyBoundary(sub, info.HourIndex, state)
		}
	}
	q.prevHour = info.HourIndex
}

func (q *HourQuantizer) notifyInfo(sub hourInfoSub, info HourInfo, state ClockState) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error(context.Background(), "hour-info subscriber panicked",
				logging.Int("token", sub.token),
				logging.Any("panic", r),
			)
			if q.PanicHook != nil {
				q.PanicHook(r)
			}
		}
	}()
	sub.fn(info, state)
}

func (q *HourQuantizer) notifyBoundary(sub boundarySub, hourIndex int, state ClockState) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error(context.Background(), "hour-boundary subscriber panicked",
				logging.Int("token", sub.token),
				logging.Int("hour", hourIndex),
				logging.Any("panic", r),
			)
			if q.PanicHook != nil {
				q.PanicHook(r)
			}
		}
	}()
	sub.fn(hourIndex, state)
}

// SubscribeHourInfo registers a callback invoked on every clock tick with
// the derived HourInfo and the originating ClockState.
func (q *HourQuantizer) SubscribeHourInfo(fn func(HourInfo, ClockState)) (unsubscribe func()) {
	token := q.nextToken
	q.nextToken++
	q.infoSubs = append(q.infoSubs, hourInfoSub{token: token, fn: fn})

	return func() {
		for i, sub := range q.infoSubs {
			if sub.token == token {
				q.infoSubs = append(q.infoSubs[:i], q.infoSubs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeHourBoundary registers a callback invoked only when the hour
// bucket changes, with the new hour index.
func (q *HourQuantizer) SubscribeHourBoundary(fn func(int, ClockState)) (unsubscribe func()) {
	token := q.nextToken
	q.nextToken++
	q.boundarySubs = append(q.boundarySubs, boundarySub{token: token, fn: fn})

	return func() {
		for i, sub := range q.boundarySubs {
			if sub.token == token {
				q.boundarySubs = append(q.boundarySubs[:i], q.boundarySubs[i+1:]...)
				return
			}
		}
	}
}

// LastHourInfo returns the HourInfo from the most recent tick, for late
// subscribers. ok is false before the first tick.
func (q *HourQuantizer) LastHourInfo() (info HourInfo, ok bool) {
	if q.lastInfo == nil {
		return HourInfo{}, false
	}
	return *q.lastInfo, true
}

// HourEventOptions configures ScheduleAtHour repeats in hour units.
type HourEventOptions struct {
	Repeat        bool
	IntervalHours float64
}

// ScheduleAtHour registers a loop-manager event at the loop position of the
// given semantic hour (hour 6 is loop start, so ScheduleAtHour(mgr, 6, ...)
// fires at second 0). It is a thin adapter: the hour is converted to seconds
// from loop start and handed to mgr, which owns all firing semantics. The loop manager's own loop duration should match the clock
// loop for the mapping to be meaningful.
func (q *HourQuantizer) ScheduleAtHour(mgr *loopmgr.Manager, hourIndex int, cb loopmgr.Callback, opts *HourEventOptions) (string, error) {
	if mgr == nil {
		return "", fmt.Errorf("daycycle: loop manager must not be nil")
	}
	timeSec := timesync.HourToElapsedMs(float64(hourIndex), q.totalMs) / 1000

	var loopOpts *loopmgr.Options
	if opts != nil {
		msPerHour := q.totalMs / timesync.HoursPerLoop
		loopOpts = &loopmgr.Options{
			Repeat:      opts.Repeat,
			IntervalSec: opts.IntervalHours * msPerHour / 1000,
		}
	}
	return mgr.ScheduleEvent("", timeSec, cb, loopOpts)
}
