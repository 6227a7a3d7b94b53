package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation loop and
// provides helpers to wire them into the engine's hooks and an HTTP handler.
type SimCollector struct {
	gatherer prometheus.Gatherer

	ClockTicks       prometheus.Counter
	HourBoundaries   prometheus.Counter
	EventsFired      prometheus.Counter
	CallbackFailures *prometheus.CounterVec
	TickDuration     prometheus.Histogram

	TownNPCs     prometheus.Gauge
	TownVehicles prometheus.Gauge
	TownLamps    prometheus.Gauge
	SimHour      prometheus.Gauge
	AmbientLight prometheus.Gauge
}

// NewSimCollector registers simulation Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_clock_ticks_total",
		Help: "Total number of day/night clock ticks.",
	}), "sim_clock_ticks_total")
	if err != nil {
		return nil, err
	}
	boundaries, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_hour_boundaries_total",
		Help: "Total number of hour-boundary transitions (24 per loop).",
	}), "sim_hour_boundaries_total")
	if err != nil {
		return nil, err
	}
	fired, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_events_fired_total",
		Help: "Total number of scheduled event callbacks fired.",
	}), "sim_events_fired_total")
	if err != nil {
		return nil, err
	}

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_callback_failures_total",
		Help: "Total number of recovered callback panics, labeled by component.",
	}, []string{"component"})
	failures, err = registerCounterVec(reg, failures, "sim_callback_failures_total")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall time spent in one engine step.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	npcs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "town_npcs",
		Help: "Current number of NPCs registered in the town.",
	}), "town_npcs")
	if err != nil {
		return nil, err
	}
	vehicles, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "town_vehicles",
		Help: "Current number of vehicles registered in the town.",
	}), "town_vehicles")
	if err != nil {
		return nil, err
	}
	lamps, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "town_lamps",
		Help: "Current number of street lamps registered in the town.",
	}), "town_lamps")
	if err != nil {
		return nil, err
	}
	simHour, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_hour_index",
		Help: "Current loop-relative hour bucket (0-23).",
	}), "sim_hour_index")
	if err != nil {
		return nil, err
	}
	ambient, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_ambient_light",
		Help: "Current town-wide ambient light level (0-1).",
	}), "sim_ambient_light")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		ClockTicks:       ticks,
		HourBoundaries:   boundaries,
		EventsFired:      fired,
		CallbackFailures: failures,
		TickDuration:     tickDuration,
		TownNPCs:         npcs,
		TownVehicles:     vehicles,
		TownLamps:        lamps,
		SimHour:          simHour,
		AmbientLight:     ambient,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetTownCounts drives the entity gauges from the town store's counters.
func (c *SimCollector) SetTownCounts(npcs, vehicles, lamps int) {
	if c == nil {
		return
	}
	if c.TownNPCs != nil {
		c.TownNPCs.Set(float64(npcs))
	}
	if c.TownVehicles != nil {
		c.TownVehicles.Set(float64(vehicles))
	}
	if c.TownLamps != nil {
		c.TownLamps.Set(float64(lamps))
	}
}

// ObserveTick records one engine-step duration.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// CountFailure increments the recovered-panic counter for a component.
func (c *SimCollector) CountFailure(component string) {
	if c == nil || c.CallbackFailures == nil {
		return
	}
	c.CallbackFailures.WithLabelValues(component).Inc()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
