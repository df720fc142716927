package ecs

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type commandKind uint8

const (
	cmdSpawn commandKind = iota
	cmdDespawn
	cmdInsert
	cmdRemove
)

type command struct {
	kind   commandKind
	entity EntityID
	types  []*componentType
	values []any
}

// CommandQueue is the FIFO of structural changes requested during dispatch.
// Handlers running in parallel push to it concurrently.
type CommandQueue struct {
	mu   sync.Mutex
	cmds []command
}

func (q *CommandQueue) push(c command) {
	q.mu.Lock()
	q.cmds = append(q.cmds, c)
	q.mu.Unlock()
}

func (q *CommandQueue) drain() []command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.cmds
	q.cmds = nil
	return out
}

// Len is the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}

// LazySpawn reserves an ID immediately; the entity becomes alive with its
// components at the next Finalize.
func (w *World) LazySpawn(components ...any) (EntityID, error) {
	types, err := w.resolve(components)
	if err != nil {
		return 0, fmt.Errorf("lazy spawn: %w", err)
	}
	id := w.pool.Reserve()
	w.queue.push(command{kind: cmdSpawn, entity: id, types: types, values: components})
	return id, nil
}

func (w *World) LazyDespawn(e EntityID) {
	w.queue.push(command{kind: cmdDespawn, entity: e})
}

// LazyInsert attaches component to e at Finalize, replacing any value of the
// same type already there.
func (w *World) LazyInsert(e EntityID, component any) error {
	ct, err := w.reg.lookupValue(component)
	if err != nil {
		return fmt.Errorf("lazy insert on %s: %w", e, err)
	}
	w.queue.push(command{kind: cmdInsert, entity: e, types: []*componentType{ct}, values: []any{component}})
	return nil
}

// LazyRemove detaches e's C at Finalize.
func LazyRemove[C any](v Viewer, e EntityID) error {
	w := v.viewWorld()
	_, ct, err := storeFor[C](w)
	if err != nil {
		return fmt.Errorf("lazy remove on %s: %w", e, err)
	}
	w.queue.push(command{kind: cmdRemove, entity: e, types: []*componentType{ct}})
	return nil
}

type finalizeStats struct {
	spawned, despawned, inserted, replaced, removed, skipped int
}

// Finalize applies every queued command in the order it was queued. Commands
// queued by lifecycle callbacks during the pass are applied in the same call.
// Commands against entities that are no longer alive are dropped.
func (w *World) Finalize() {
	w.mustNotDispatch("Finalize")

	var st finalizeStats
	for {
		cmds := w.queue.drain()
		if len(cmds) == 0 {
			break
		}
		for _, c := range cmds {
			w.apply(c, &st)
		}
	}

	if st != (finalizeStats{}) {
		w.log.Debug("finalize",
			zap.Int("spawned", st.spawned),
			zap.Int("despawned", st.despawned),
			zap.Int("inserted", st.inserted),
			zap.Int("replaced", st.replaced),
			zap.Int("removed", st.removed),
			zap.Int("skipped", st.skipped))
	}
}

func (w *World) apply(c command, st *finalizeStats) {
	switch c.kind {
	case cmdSpawn:
		if !w.pool.Finish(c.entity) {
			st.skipped++
			return
		}
		w.attachAll(c.entity, c.types, c.values)
		st.spawned++

	case cmdDespawn:
		if !w.pool.Alive(c.entity) {
			st.skipped++
			return
		}
		w.despawn(c.entity)
		st.despawned++

	case cmdInsert:
		if !w.pool.Alive(c.entity) {
			st.skipped++
			return
		}
		ct := c.types[0]
		if ct.store.has(c.entity) {
			if err := ct.store.replaceAny(c.entity, c.values[0]); err != nil {
				w.log.Error("finalize insert", zap.Stringer("entity", c.entity), zap.Error(err))
				return
			}
			w.log.Debug("lazy insert replaced component",
				zap.Stringer("entity", c.entity),
				zap.String("component", ct.name))
			st.replaced++
			return
		}
		if err := w.attach(c.entity, ct, c.values[0]); err != nil {
			w.log.Error("finalize insert", zap.Stringer("entity", c.entity), zap.Error(err))
			return
		}
		st.inserted++

	case cmdRemove:
		if !w.pool.Alive(c.entity) {
			st.skipped++
			return
		}
		if _, ok := w.detach(c.entity, c.types[0]); ok {
			st.removed++
		} else {
			st.skipped++
		}
	}
}
