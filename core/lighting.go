package core

import "github.com/lanternworks/townsim/daycycle"

// Lighting ramp tuning. Ambient light fades in over the first rampFraction
// of the day phase and fades out over the last; street lamps run the
// inverse curve so the town is never fully dark.
const (
	rampFraction      = 0.2
	nightAmbientFloor = 0.08
)

// AmbientIntensity maps a clock state to a [0, 1] ambient light level.
// Daytime holds at full intensity between the dawn and dusk ramps; night
// bottoms out at a small floor instead of zero.
func AmbientIntensity(state daycycle.ClockState) float64 {
	if state.IsDay {
		p := state.DayProgress
		switch {
		case p < rampFraction:
			return scale(p / rampFraction)
		case p > 1-rampFraction:
			return scale((1 - p) / rampFraction)
		default:
			return 1
		}
	}
	return nightAmbientFloor
}

// LampIntensity maps a clock state to a [0, 1] street-lamp level: the
// inverse of the ambient curve, so lamps brighten exactly as daylight
// fades.
func LampIntensity(state daycycle.ClockState) float64 {
	return 1 - AmbientIntensity(state)
}

func scale(t float64) float64 {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return nightAmbientFloor + (1-nightAmbientFloor)*t
}
