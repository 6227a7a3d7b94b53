package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCountersAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ClockTicks.Inc()
	collector.ClockTicks.Inc()
	collector.HourBoundaries.Inc()
	collector.EventsFired.Inc()
	collector.CountFailure("clock")
	collector.CountFailure("clock")
	collector.CountFailure("events")

	if got := testutil.ToFloat64(collector.ClockTicks); got != 2 {
		t.Fatalf("sim_clock_ticks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.CallbackFailures.WithLabelValues("clock")); got != 2 {
		t.Fatalf("sim_callback_failures_total{component=clock} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.CallbackFailures.WithLabelValues("events")); got != 1 {
		t.Fatalf("sim_callback_failures_total{component=events} = %v, want 1", got)
	}
}

func TestObserveTickRecordsSample(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveTick(2 * time.Millisecond)
	collector.ObserveTick(5 * time.Millisecond)

	if count := histogramSampleCount(t, reg, "sim_tick_duration_seconds"); count != 2 {
		t.Fatalf("sim_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesTownGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.SetTownCounts(3, 4, 5)
	collector.SimHour.Set(17)
	collector.AmbientLight.Set(0.5)
	collector.EventsFired.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_clock_ticks_total",
		"sim_events_fired_total",
		"sim_tick_duration_seconds",
		"town_npcs",
		"town_vehicles",
		"town_lamps",
		"sim_hour_index",
		"sim_ambient_light",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if got := gaugeValue(t, reg, "town_npcs"); got != 3 {
		t.Fatalf("town_npcs = %v, want 3", got)
	}
	if got := gaugeValue(t, reg, "sim_hour_index"); got != 17 {
		t.Fatalf("sim_hour_index = %v, want 17", got)
	}
}

func TestDuplicateRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}

	first.ClockTicks.Inc()
	second.ClockTicks.Inc()
	if got := testutil.ToFloat64(first.ClockTicks); got != 2 {
		t.Fatalf("shared sim_clock_ticks_total = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func gaugeValue(t *testing.T, gatherer prometheus.Gatherer, name string) float64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_GAUGE {
			continue
		}
		for _, m := range mf.Metric {
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("gauge %s not found", name)
	return 0
}
