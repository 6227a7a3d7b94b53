package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternworks/townsim/core"
	"github.com/lanternworks/townsim/daycycle"
	"github.com/lanternworks/townsim/internal/logging"
	"github.com/lanternworks/townsim/internal/observability"
	"github.com/lanternworks/townsim/kb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to TOML config (optional; defaults apply)")
	scenarioPath := flag.String("scenario", "", "path to town scenario JSON (overrides config)")
	duration := flag.Duration("duration", 0, "total run time (overrides config; 0 = until interrupted)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *scenarioPath != "" {
		cfg.ScenarioPath = *scenarioPath
	}
	if *duration != 0 {
		cfg.DurationSec = duration.Seconds()
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	_, loadSpan := otel.Tracer("townsim/simulator").Start(ctx, "scenario.load",
		trace.WithAttributes(attribute.String("path", cfg.ScenarioPath)),
	)
	scenario, err := loadScenarioFile(cfg.ScenarioPath)
	if err != nil {
		loadSpan.RecordError(err)
		loadSpan.End()
		return err
	}
	loadSpan.End()

	town := kb.NewTownBase()
	sinks := core.Sinks{
		AmbientLight: collector.AmbientLight.Set,
		VehicleAction: func(npcID, action string) {
			log.Info(ctx, "vehicle action",
				logging.String("npc_id", npcID), logging.String("action", action))
		},
		StagedEvent: func(eventID, action string) {
			log.Info(ctx, "staged event",
				logging.String("event_id", eventID), logging.String("action", action))
		},
	}

	eng, err := core.NewEngineFromScenario(scenario, town, sinks, log)
	if err != nil {
		return err
	}
	wireMetrics(eng, collector)

	npcs, vehicles, lamps := town.Counts()
	collector.SetTownCounts(npcs, vehicles, lamps)
	log.Info(ctx, "scenario loaded",
		logging.String("name", scenario.Name),
		logging.String("path", cfg.ScenarioPath),
		logging.Int("npcs", npcs),
		logging.Int("vehicles", vehicles),
		logging.Int("lamps", lamps),
	)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(collector)}
	go func() {
		log.Info(ctx, "metrics server listening", logging.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.DurationSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, time.Duration(cfg.DurationSec*float64(time.Second)))
		defer cancel()
	}

	tick := time.Duration(cfg.TickMs) * time.Millisecond
	log.Info(ctx, "simulation starting",
		logging.Float("duration_sec", cfg.DurationSec),
		logging.Any("tick", tick),
	)
	err = eng.Run(runCtx, tick)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Info(ctx, "simulation complete")
		return nil
	}
	return err
}

// wireMetrics attaches the collector to the engine's hooks.
func wireMetrics(eng *core.Engine, collector *observability.SimCollector) {
	eng.TickHook = collector.ObserveTick

	eng.Clock().Subscribe(func(daycycle.ClockState) { collector.ClockTicks.Inc() })

	eng.Clock().PanicHook = func(any) { collector.CountFailure("clock") }
	eng.Hours().PanicHook = func(any) { collector.CountFailure("hours") }
	eng.Events().PanicHook = func(string, any) { collector.CountFailure("events") }

	eng.Hours().BoundaryHook = func(hourIndex int) {
		collector.HourBoundaries.Inc()
		collector.SimHour.Set(float64(hourIndex))
	}
	eng.Events().FireHook = func(string) { collector.EventsFired.Inc() }
}

func loadScenarioFile(path string) (*core.TownScenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()
	return core.LoadTownScenario(f)
}

func metricsMux(collector *observability.SimCollector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return mux
}
