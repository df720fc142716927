package ecs

import (
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/l1jgo/courier/internal/core/event"
	"go.uber.org/zap"
)

// World is the top-level container. It owns the entity pool, the component
// registry, the command queue and resources. Structural changes made while a
// dispatch is running must go through the queue and are applied by Finalize.
type World struct {
	pool      *EntityPool
	reg       *registry
	records   []entityRecord
	queue     *CommandQueue
	resources *resourceMap
	bus       *event.Bus
	log       *zap.Logger
	workers   int
	capacity  int

	dispatching atomic.Int32
}

// entityRecord is the insertion-ordered component list of one slot.
type entityRecord struct {
	id    EntityID
	types []*componentType
}

type Option func(*World)

func WithLogger(log *zap.Logger) Option {
	return func(w *World) {
		if log != nil {
			w.log = log
		}
	}
}

// WithWorkers sets how many goroutines DispatchToAll may use. 1 keeps
// broadcast on the calling goroutine; 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(w *World) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		w.workers = n
	}
}

func WithCapacity(n int) Option {
	return func(w *World) { w.capacity = n }
}

// WithEventBus makes the World emit lifecycle events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(w *World) { w.bus = bus }
}

func NewWorld(opts ...Option) *World {
	w := &World{
		log:       zap.NewNop(),
		workers:   1,
		capacity:  1024,
		reg:       newRegistry(),
		queue:     &CommandQueue{},
		resources: newResourceMap(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pool = NewEntityPool(w.capacity)
	w.records = make([]entityRecord, 0, w.capacity)
	return w
}

func (w *World) viewWorld() *World { return w }

func (w *World) Queue() *CommandQueue { return w.queue }

func (w *World) Workers() int { return w.workers }

func (w *World) mustNotDispatch(op string) {
	if w.dispatching.Load() > 0 {
		panic(fmt.Errorf("%s: %w", op, ErrDispatchActive))
	}
}

// Spawn creates an entity with components attached in argument order.
// Components must be values of registered types, at most one per type.
func (w *World) Spawn(components ...any) (EntityID, error) {
	w.mustNotDispatch("Spawn")
	types, err := w.resolve(components)
	if err != nil {
		return 0, fmt.Errorf("spawn: %w", err)
	}
	id := w.pool.Create()
	w.attachAll(id, types, components)
	return id, nil
}

// Despawn removes every component of e and frees its ID.
func (w *World) Despawn(e EntityID) error {
	w.mustNotDispatch("Despawn")
	if !w.pool.Alive(e) {
		return fmt.Errorf("despawn %s: %w", e, ErrStaleEntity)
	}
	w.despawn(e)
	return nil
}

// Insert attaches a component to a live entity. It fails with
// ErrDuplicateComponent if e already has one of that type.
func (w *World) Insert(e EntityID, component any) error {
	w.mustNotDispatch("Insert")
	ct, err := w.reg.lookupValue(component)
	if err != nil {
		return fmt.Errorf("insert on %s: %w", e, err)
	}
	if !w.pool.Alive(e) {
		return fmt.Errorf("insert %s on %s: %w", ct.name, e, ErrStaleEntity)
	}
	if err := w.attach(e, ct, component); err != nil {
		return fmt.Errorf("insert %s on %s: %w", ct.name, e, err)
	}
	return nil
}

// Remove detaches e's C and returns it. ok is false if e had none.
func Remove[C any](w *World, e EntityID) (c C, ok bool, err error) {
	w.mustNotDispatch("Remove")
	_, ct, err := storeFor[C](w)
	if err != nil {
		return c, false, err
	}
	if !w.pool.Alive(e) {
		return c, false, fmt.Errorf("remove %s from %s: %w", ct.name, e, ErrStaleEntity)
	}
	v, ok := w.detach(e, ct)
	if !ok {
		return c, false, nil
	}
	return v.(C), true, nil
}

func (w *World) resolve(components []any) ([]*componentType, error) {
	types := make([]*componentType, len(components))
	for i, c := range components {
		ct, err := w.reg.lookupValue(c)
		if err != nil {
			return nil, err
		}
		if slices.Contains(types[:i], ct) {
			return nil, fmt.Errorf("%w: %s given twice", ErrDuplicateComponent, ct.name)
		}
		types[i] = ct
	}
	return types, nil
}

func (w *World) record(e EntityID) *entityRecord {
	idx := int(e.Index())
	if idx >= len(w.records) {
		w.records = append(w.records, make([]entityRecord, idx+1-len(w.records))...)
	}
	r := &w.records[idx]
	if r.id != e {
		r.id = e
		r.types = r.types[:0]
	}
	return r
}

func (w *World) attachAll(e EntityID, types []*componentType, values []any) {
	rec := w.record(e)
	for i, ct := range types {
		if err := ct.store.insertAny(e, values[i]); err != nil {
			w.log.Error("attach component", zap.Stringer("entity", e), zap.String("component", ct.name), zap.Error(err))
			continue
		}
		rec.types = append(rec.types, ct)
	}
	emit(w, EntitySpawned{Entity: e})
	for _, ct := range rec.types {
		emit(w, ComponentAttached{Entity: e, Component: ct.name})
	}
	for _, ct := range rec.types {
		w.created(e, ct)
	}
}

func (w *World) attach(e EntityID, ct *componentType, value any) error {
	if err := ct.store.insertAny(e, value); err != nil {
		return err
	}
	rec := w.record(e)
	rec.types = append(rec.types, ct)
	emit(w, ComponentAttached{Entity: e, Component: ct.name})
	w.created(e, ct)
	return nil
}

func (w *World) created(e EntityID, ct *componentType) {
	if ct.onCreate == nil {
		return
	}
	sl, ok := ct.store.slot(e)
	if !ok {
		return
	}
	ct.onCreate(sl.ptr(), e, &CallbackAccess{world: w})
}

func (w *World) detach(e EntityID, ct *componentType) (any, bool) {
	v, ok := ct.store.removeAny(e)
	if !ok {
		return nil, false
	}
	rec := w.record(e)
	if i := slices.Index(rec.types, ct); i >= 0 {
		rec.types = slices.Delete(rec.types, i, i+1)
	}
	emit(w, ComponentDetached{Entity: e, Component: ct.name})
	if ct.onRemove != nil {
		ct.onRemove(v, e, &CallbackAccess{world: w})
	}
	return v, true
}

// despawn detaches everything, frees the ID and only then runs remove
// callbacks, so callbacks always see a dead owner.
func (w *World) despawn(e EntityID) {
	rec := w.record(e)
	types := rec.types
	rec.types = nil

	removed := make([]any, len(types))
	for i, ct := range types {
		removed[i], _ = ct.store.removeAny(e)
		emit(w, ComponentDetached{Entity: e, Component: ct.name})
	}
	if err := w.pool.Destroy(e); err != nil {
		w.log.Error("despawn", zap.Error(err))
	}
	emit(w, EntityDespawned{Entity: e})

	for i, ct := range types {
		if ct.onRemove != nil && removed[i] != nil {
			ct.onRemove(removed[i], e, &CallbackAccess{world: w})
		}
	}
}

// Len is the number of live entities.
func (w *World) Len() int { return w.pool.Len() }

func (w *World) Alive(e EntityID) bool { return w.pool.Alive(e) }

func (w *World) Liveness(e EntityID) Liveness { return w.pool.Liveness(e) }

// Entities returns the live entities in slot order.
func (w *World) Entities() []EntityID { return w.pool.Live() }

// LenOf is the number of components attached to e.
func (w *World) LenOf(e EntityID) (int, error) {
	if !w.pool.Alive(e) {
		return 0, fmt.Errorf("%s: %w", e, ErrStaleEntity)
	}
	return len(w.records[e.Index()].types), nil
}

// ComponentValue is a copy of one component, tagged with its friendly name.
type ComponentValue struct {
	Name  string
	Value any
}

// ComponentsOf copies e's components in insertion order.
func (w *World) ComponentsOf(e EntityID) ([]ComponentValue, error) {
	if !w.pool.Alive(e) {
		return nil, fmt.Errorf("%s: %w", e, ErrStaleEntity)
	}
	types := w.records[e.Index()].types
	out := make([]ComponentValue, 0, len(types))
	for _, ct := range types {
		v, err := ct.store.valueAny(e)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ct.name, err)
		}
		out = append(out, ComponentValue{Name: ct.name, Value: v})
	}
	return out, nil
}
