package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pmndrs/koota-sub000/internal/config"
	"github.com/pmndrs/koota-sub000/internal/core/ecs"
	"github.com/pmndrs/koota-sub000/internal/core/event"
	coresys "github.com/pmndrs/koota-sub000/internal/core/system"
	"github.com/pmndrs/koota-sub000/internal/schema"
	"github.com/pmndrs/koota-sub000/internal/scripting"
	"github.com/pmndrs/koota-sub000/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             kootasim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Simulation ────────────────────────────────────────────────────

func run() error {
	// 1. Environment and config
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfgPath := "config/kootasim.toml"
	if p := os.Getenv("KOOTA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Logger and profiling
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if p := startProfile(cfg.Profile); p != nil {
		defer p.Stop()
	}

	printBanner()

	// 3. World and schema
	w, err := ecs.NewWorld(cfg.WorldOptions(log)...)
	if err != nil {
		return fmt.Errorf("create world: %w", err)
	}
	defer w.Close()

	printSection("Schema")
	reg, err := schema.LoadRegistry(cfg.Schema.TraitsFile)
	if err != nil {
		return err
	}
	printStat("traits", len(reg.Traits()))

	prefabs, err := schema.LoadPrefabs(cfg.Schema.PrefabsFile, reg)
	if err != nil {
		return err
	}
	printStat("prefabs", prefabs.Count())

	spawned, err := prefabs.SpawnInitial(w)
	if err != nil {
		return fmt.Errorf("initial spawn: %w", err)
	}
	printStat("entities spawned", len(spawned))

	// 4. Scripts
	engine, err := scripting.NewEngine(cfg.Scripting.Dir, scripting.Bindings{
		World:    w,
		Registry: reg,
		Prefabs:  prefabs,
	}, log)
	if err != nil {
		return fmt.Errorf("init scripting: %w", err)
	}
	defer engine.Close()
	printOK("lua scripts loaded")

	// 5. Event feed and systems
	bus := event.NewBus()
	stopWatch := event.Watch(bus, w, reg.Traits()...)
	defer stopWatch()
	stats := newMutationStats(bus)
	event.Subscribe(bus, func(ev event.ScriptError) {
		log.Warn("script error reported", zap.String("script", ev.Script), zap.Error(ev.Err))
	})

	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewScriptSystem("update", engine, bus, log))
	runner.Register(system.NewFlushSystem(w, log))

	// 6. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	ticker := time.NewTicker(cfg.Sim.TickRate)
	defer ticker.Stop()

	printSection("Running")
	printReady(fmt.Sprintf("tick %s, %s", cfg.Sim.TickRate, tickLimit(cfg.Sim.Ticks)))
	fmt.Println()

	started := time.Now()
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Sim.TickRate)
			if cfg.Sim.Ticks > 0 && runner.Ticks() >= uint64(cfg.Sim.Ticks) {
				stats.report(log, runner.Ticks(), len(w.Entities()), time.Since(started))
				return nil
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			stats.report(log, runner.Ticks(), len(w.Entities()), time.Since(started))
			return nil
		}
	}
}

func tickLimit(n int) string {
	if n <= 0 {
		return "until interrupted"
	}
	return fmt.Sprintf("%d ticks", n)
}

// mutationStats counts the mutation events delivered through the bus.
type mutationStats struct {
	added, removed, changed int
}

func newMutationStats(bus *event.Bus) *mutationStats {
	s := &mutationStats{}
	event.Subscribe(bus, func(event.TraitAdded) { s.added++ })
	event.Subscribe(bus, func(event.TraitRemoved) { s.removed++ })
	event.Subscribe(bus, func(event.TraitChanged) { s.changed++ })
	return s
}

func (s *mutationStats) report(log *zap.Logger, ticks uint64, entities int, elapsed time.Duration) {
	log.Info("simulation finished",
		zap.Uint64("ticks", ticks),
		zap.Int("entities", entities),
		zap.Int("added", s.added),
		zap.Int("removed", s.removed),
		zap.Int("changed", s.changed),
		zap.Duration("elapsed", elapsed),
	)
}

func startProfile(cfg config.ProfileConfig) interface{ Stop() } {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "trace":
		mode = profile.TraceProfile
	default:
		return nil
	}
	return profile.Start(mode, profile.ProfilePath(cfg.Path), profile.NoShutdownHook)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
