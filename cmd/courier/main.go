package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/courier/internal/blueprint"
	"github.com/l1jgo/courier/internal/config"
	"github.com/l1jgo/courier/internal/core/ecs"
	"github.com/l1jgo/courier/internal/core/event"
	"github.com/l1jgo/courier/internal/core/tick"
	"github.com/l1jgo/courier/internal/persist"
	"github.com/l1jgo/courier/internal/scripting"
	"github.com/l1jgo/courier/internal/sim"
	"github.com/l1jgo/courier/internal/snapshot"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              courier  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      message-routed entity runtime        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printSkip(msg string) {
	fmt.Printf("  \033[90m-\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func run() error {
	cfgPath := "config/courier.toml"
	if p := os.Getenv("COURIER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch cfg.Profile.Mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.Profile.Path), profile.NoShutdownHook, profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath(cfg.Profile.Path), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	printBanner()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Persistence (optional)
	printSection("Database")
	var repo *persist.SnapshotRepo
	if cfg.Database.DSN != "" {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		repo = persist.NewSnapshotRepo(db)
	} else {
		printSkip("no dsn, snapshots stay on disk")
	}
	fmt.Println()

	// 2. World, components and blueprints
	printSection("World")
	bus := event.NewBus()
	world := ecs.NewWorld(
		ecs.WithLogger(log.Named("ecs")),
		ecs.WithWorkers(cfg.World.Workers),
		ecs.WithCapacity(cfg.World.Capacity),
		ecs.WithEventBus(bus),
	)

	lib := blueprint.NewLibrary()
	for _, path := range cfg.Blueprints.Files {
		if err := lib.LoadFile(path); err != nil {
			return fmt.Errorf("blueprints: %w", err)
		}
	}
	fab := blueprint.NewFabricator(lib, log.Named("blueprint"))
	if err := sim.Register(world, fab); err != nil {
		return err
	}
	printStat("components", len(world.ComponentNames()))
	printStat("blueprints", lib.Len())
	printStat("broadcast workers", world.Workers())

	// 3. Lua hooks
	lua, err := scripting.NewEngine(cfg.Scripts.Dir, log.Named("lua"))
	if err != nil {
		return fmt.Errorf("scripts: %w", err)
	}
	defer lua.Close()
	hooks, err := sim.HookScripts(lua, world)
	if err != nil {
		return fmt.Errorf("lua hooks: %w", err)
	}
	printStat("lua hooks", len(hooks))

	// 4. Restore the latest snapshot, or seed a fresh world
	if repo != nil {
		restored, err := restoreLatest(ctx, repo, world)
		if err != nil {
			return err
		}
		if restored > 0 {
			printStat("restored entities", restored)
		}
	}
	if world.Len() == 0 {
		seeded, err := seed(world, fab, cfg.Blueprints.Seed)
		if err != nil {
			return err
		}
		printStat("seeded entities", seeded)
	}
	fmt.Println()

	// 5. Stages
	var store sim.SnapshotStore
	if repo != nil {
		store = repo
	}
	persistStage := sim.NewPersistStage(world, store, cfg.Snapshot.Dir, cfg.Snapshot.Keep, cfg.Snapshot.IntervalTicks, log.Named("snapshot"))

	runner := tick.NewRunner()
	runner.Register(sim.NewEventStage(bus, log.Named("events")))
	runner.Register(sim.NewBroadcastStage(world, log.Named("tick")))
	runner.Register(sim.NewFinalizeStage(world))
	runner.Register(persistStage)

	// 6. Loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Tick.Rate)
	defer ticker.Stop()

	printSection("Running")
	printReady(fmt.Sprintf("tick loop started (rate: %s)", cfg.Tick.Rate))
	if cfg.Tick.Rounds > 0 {
		printReady(fmt.Sprintf("stopping after %d rounds", cfg.Tick.Rounds))
	}
	fmt.Println()

	const statusInterval = 25
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Tick.Rate)
			if runner.Ticks()%statusInterval == 0 {
				pop := sim.PopulationOf(world)
				log.Info("population",
					zap.Uint64("tick", runner.Ticks()),
					zap.Int("entities", world.Len()),
					zap.Int("alive", pop.Alive),
					zap.Int("recovering", sim.Recovering(world)),
					zap.Uint64("born", pop.Born),
					zap.Uint64("died", pop.Died))
			}
			if cfg.Tick.Rounds > 0 && runner.Ticks() >= uint64(cfg.Tick.Rounds) {
				log.Info("configured rounds complete", zap.Int("rounds", cfg.Tick.Rounds))
				return shutdown(persistStage, store, cfg.Snapshot.Dir, log)
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			runner.TickPhase(tick.PhaseFinalize, 0)
			return shutdown(persistStage, store, cfg.Snapshot.Dir, log)
		}
	}
}

func shutdown(ps *sim.PersistStage, store sim.SnapshotStore, dir string, log *zap.Logger) error {
	if store != nil || dir != "" {
		if _, err := ps.SaveNow(); err != nil {
			return fmt.Errorf("final snapshot: %w", err)
		}
	}
	log.Info("stopped")
	return nil
}

func restoreLatest(ctx context.Context, repo *persist.SnapshotRepo, world *ecs.World) (int, error) {
	snap, err := repo.Latest(ctx)
	if errors.Is(err, persist.ErrSnapshotNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	ids, err := snapshot.Restore(world, snap)
	if err != nil {
		return 0, fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
	}
	return len(ids), nil
}

// seed spawns the configured number of entities per blueprint, in name order.
func seed(world *ecs.World, fab *blueprint.Fabricator, counts map[string]int) (int, error) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		for range counts[name] {
			if _, err := fab.Spawn(world, name); err != nil {
				return total, fmt.Errorf("seed %s: %w", name, err)
			}
			total++
		}
	}
	return total, nil
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
