package sim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/l1jgo/courier/internal/core/ecs"
	"github.com/l1jgo/courier/internal/core/event"
	"github.com/l1jgo/courier/internal/core/tick"
	"github.com/l1jgo/courier/internal/snapshot"
	"go.uber.org/zap"
)

// BroadcastStage sends Tick to every entity. Phase 1 (Dispatch).
type BroadcastStage struct {
	world *ecs.World
	log   *zap.Logger
	n     uint64
}

func NewBroadcastStage(w *ecs.World, log *zap.Logger) *BroadcastStage {
	return &BroadcastStage{world: w, log: log}
}

func (s *BroadcastStage) Phase() tick.Phase { return tick.PhaseDispatch }

func (s *BroadcastStage) Run(_ time.Duration) {
	s.n++
	if err := ecs.DispatchToAll(s.world, Tick{N: s.n}); err != nil {
		s.log.Warn("tick handlers failed", zap.Uint64("tick", s.n), zap.Error(err))
	}
}

// FinalizeStage applies the structural changes queued during the tick.
// Phase 2 (Finalize).
type FinalizeStage struct {
	world *ecs.World
}

func NewFinalizeStage(w *ecs.World) *FinalizeStage {
	return &FinalizeStage{world: w}
}

func (s *FinalizeStage) Phase() tick.Phase { return tick.PhaseFinalize }

func (s *FinalizeStage) Run(_ time.Duration) {
	s.world.Finalize()
}

// EventStage delivers last tick's lifecycle events. Phase 0 (Events).
type EventStage struct {
	bus *event.Bus
	log *zap.Logger
}

func NewEventStage(bus *event.Bus, log *zap.Logger) *EventStage {
	s := &EventStage{bus: bus, log: log}
	event.Subscribe(bus, func(ev ecs.EntityDespawned) {
		log.Debug("entity despawned", zap.Stringer("entity", ev.Entity))
	})
	return s
}

func (s *EventStage) Phase() tick.Phase { return tick.PhaseEvents }

func (s *EventStage) Run(_ time.Duration) {
	s.bus.SwapBuffers()
	if n := s.bus.DispatchAll(); n > 0 {
		s.log.Debug("lifecycle events delivered", zap.Int("events", n))
	}
}

// SnapshotStore is where PersistStage sends snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap *snapshot.Snapshot) error
	Prune(ctx context.Context, keep int) (int64, error)
}

// PersistStage periodically snapshots the world to a store and/or a
// directory of YAML files. Phase 3 (Persist).
type PersistStage struct {
	world     *ecs.World
	store     SnapshotStore
	dir       string
	keep      int
	interval  int // snapshot every N ticks
	tickCount int
	log       *zap.Logger
}

func NewPersistStage(w *ecs.World, store SnapshotStore, dir string, keep, intervalTicks int, log *zap.Logger) *PersistStage {
	return &PersistStage{
		world:    w,
		store:    store,
		dir:      dir,
		keep:     keep,
		interval: intervalTicks,
		log:      log,
	}
}

func (s *PersistStage) Phase() tick.Phase { return tick.PhasePersist }

func (s *PersistStage) Run(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	if _, err := s.SaveNow(); err != nil {
		s.log.Error("snapshot failed", zap.Error(err))
	}
}

// SaveNow snapshots immediately, ignoring the interval. Used on shutdown.
func (s *PersistStage) SaveNow() (*snapshot.Snapshot, error) {
	snap, err := snapshot.Capture(s.world)
	if err != nil {
		return nil, err
	}

	if s.dir != "" {
		if err := s.writeFile(snap); err != nil {
			return snap, err
		}
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Save(ctx, snap); err != nil {
			return snap, fmt.Errorf("store snapshot: %w", err)
		}
		if s.keep > 0 {
			if n, err := s.store.Prune(ctx, s.keep); err != nil {
				s.log.Warn("prune snapshots", zap.Error(err))
			} else if n > 0 {
				s.log.Debug("pruned snapshots", zap.Int64("deleted", n))
			}
		}
	}

	s.log.Info("snapshot saved",
		zap.String("id", snap.ID.String()),
		zap.Int("entities", len(snap.Entities)))
	return snap, nil
}

func (s *PersistStage) writeFile(snap *snapshot.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("snapshot-%s.yaml", snap.ID))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := snapshot.Encode(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
