package core

import (
	"math"
	"testing"

	"github.com/lanternworks/townsim/daycycle"
)

func dayState(progress float64) daycycle.ClockState {
	return daycycle.ClockState{IsDay: true, DayProgress: progress}
}

func nightState(progress float64) daycycle.ClockState {
	return daycycle.ClockState{IsDay: false, NightProgress: progress}
}

func TestAmbientFullAtMidday(t *testing.T) {
	if got := AmbientIntensity(dayState(0.5)); got != 1 {
		t.Fatalf("midday ambient = %v, want 1", got)
	}
}

func TestAmbientRampsAtDawnAndDusk(t *testing.T) {
	dawn := AmbientIntensity(dayState(0.1))
	if dawn <= nightAmbientFloor || dawn >= 1 {
		t.Fatalf("dawn ambient = %v, want between floor and 1", dawn)
	}
	dusk := AmbientIntensity(dayState(0.9))
	if math.Abs(dawn-dusk) > 1e-9 {
		t.Fatalf("dawn/dusk asymmetric: %v vs %v", dawn, dusk)
	}
	// The ramp rises monotonically through dawn.
	if AmbientIntensity(dayState(0.05)) >= AmbientIntensity(dayState(0.15)) {
		t.Fatalf("dawn ramp not increasing")
	}
}

func TestAmbientNightFloor(t *testing.T) {
	for _, p := range []float64{0, 0.5, 0.99} {
		if got := AmbientIntensity(nightState(p)); got != nightAmbientFloor {
			t.Fatalf("night ambient at %v = %v, want floor %v", p, got, nightAmbientFloor)
		}
	}
}

func TestLampIsInverseOfAmbient(t *testing.T) {
	states := []daycycle.ClockState{
		dayState(0.05), dayState(0.5), dayState(0.95),
		nightState(0.2), nightState(0.8),
	}
	for _, st := range states {
		sum := AmbientIntensity(st) + LampIntensity(st)
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("ambient + lamp = %v at %+v, want 1", sum, st)
		}
	}
}
