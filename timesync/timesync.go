// Package timesync converts between the town's 24-hour semantic clock and
// the day/night loop's phase. The loop starts at 6AM: semantic hour 6 maps
// to loop percent 0, hour 18 to 0.5, and hour 6 again at the wrap.
//
// All functions are total: any real input is first reduced with a true
// (non-negative) modulo, so negative hours and hours beyond 24 are valid.
package timesync

import "math"

// LoopStartHour is the semantic hour at which the day/night loop begins.
const LoopStartHour = 6.0

// HoursPerLoop is the number of semantic hours in one full loop.
const HoursPerLoop = 24.0

// Mod returns the true modulo of x by m: the result is always in [0, m)
// for m > 0, even for negative x.
func Mod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

// HourToLoopPercent maps a semantic hour (fractional allowed) to a loop
// percent in [0, 1). HourToLoopPercent(6) == 0, HourToLoopPercent(18) == 0.5.
func HourToLoopPercent(hour float64) float64 {
	h := Mod(hour, HoursPerLoop)
	return Mod(h-LoopStartHour, HoursPerLoop) / HoursPerLoop
}

// LoopPercentToHour is the inverse of HourToLoopPercent. The percent is
// reduced mod 1 first, so inputs outside [0, 1) are accepted.
func LoopPercentToHour(percent float64) float64 {
	p := Mod(percent, 1)
	return Mod(p*HoursPerLoop+LoopStartHour, HoursPerLoop)
}

// HourToElapsedMs maps a semantic hour to milliseconds from loop start for a
// loop of totalMs milliseconds. Fractional hours are preserved.
func HourToElapsedMs(hour, totalMs float64) float64 {
	idx := Mod(Mod(hour, HoursPerLoop)-LoopStartHour, HoursPerLoop)
	return idx * (totalMs / HoursPerLoop)
}

// ElapsedMsToHour maps elapsed loop milliseconds to the whole semantic hour
// bucket containing it. Sub-hour precision is deliberately discarded: this
// variant exists for discrete hour-boundary detection. Callers that need a
// continuous value must go through LoopPercentToHour instead.
//
// A non-positive totalMs has no meaningful phase; the function returns
// LoopStartHour rather than dividing by zero. Components that own a loop
// duration reject non-positive values at construction, so this guard only
// covers direct callers.
func ElapsedMsToHour(elapsedMs, totalMs float64) int {
	if totalMs <= 0 {
		return int(LoopStartHour)
	}
	msPerHour := totalMs / HoursPerLoop
	idx := math.Floor(Mod(elapsedMs, totalMs) / msPerHour)
	return int(Mod(idx+LoopStartHour, HoursPerLoop))
}
