package ecs

import (
	"fmt"
	"sync"
)

// cell holds one component value. Handlers lock it for the length of a call;
// locks are only ever taken with TryLock/TryRLock so a re-entrant dispatch
// reports ErrBorrowConflict instead of deadlocking.
type cell[C any] struct {
	mu  sync.RWMutex
	val C
}

func (c *cell[C]) ptr() any       { return &c.val }
func (c *cell[C]) tryRead() bool  { return c.mu.TryRLock() }
func (c *cell[C]) readDone()      { c.mu.RUnlock() }
func (c *cell[C]) tryWrite() bool { return c.mu.TryLock() }
func (c *cell[C]) writeDone()     { c.mu.Unlock() }

// slot is the type-erased view of a cell used by the dispatcher.
type slot interface {
	ptr() any
	tryRead() bool
	readDone()
	tryWrite() bool
	writeDone()
}

// componentStore is implemented by every Store so the World can work with
// component types it only knows by reflect.Type.
type componentStore interface {
	has(id EntityID) bool
	slot(id EntityID) (slot, bool)
	insertAny(id EntityID, v any) error
	replaceAny(id EntityID, v any) error
	removeAny(id EntityID) (any, bool)
	valueAny(id EntityID) (any, error)
	Len() int
}

// Store is the storage for one component type, indexed by entity slot.
// Structural changes (Insert, Set, Remove) must not race with dispatch; the
// World only makes them outside of an active dispatch.
type Store[C any] struct {
	cells  []*cell[C]
	owners []EntityID
	count  int
}

func NewStore[C any](capacity int) *Store[C] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Store[C]{
		cells:  make([]*cell[C], 0, capacity),
		owners: make([]EntityID, 0, capacity),
	}
}

func (s *Store[C]) lookup(id EntityID) (*cell[C], bool) {
	idx := int(id.Index())
	if idx >= len(s.cells) || s.owners[idx] != id || s.cells[idx] == nil {
		return nil, false
	}
	return s.cells[idx], true
}

func (s *Store[C]) grow(idx int) {
	if idx < len(s.cells) {
		return
	}
	n := idx + 1 - len(s.cells)
	s.cells = append(s.cells, make([]*cell[C], n)...)
	s.owners = append(s.owners, make([]EntityID, n)...)
}

// Insert attaches c to id. It fails if id already has a C.
func (s *Store[C]) Insert(id EntityID, c C) error {
	if s.Has(id) {
		return fmt.Errorf("insert %T on %s: %w", c, id, ErrDuplicateComponent)
	}
	s.Set(id, c)
	return nil
}

// Set attaches or overwrites c and reports whether a value was replaced.
func (s *Store[C]) Set(id EntityID, c C) bool {
	if cl, ok := s.lookup(id); ok {
		cl.val = c
		return true
	}
	idx := int(id.Index())
	s.grow(idx)
	if s.cells[idx] == nil {
		s.count++
	}
	s.cells[idx] = &cell[C]{val: c}
	s.owners[idx] = id
	return false
}

func (s *Store[C]) Get(id EntityID) (*C, bool) {
	cl, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return &cl.val, true
}

func (s *Store[C]) Remove(id EntityID) (C, bool) {
	var zero C
	cl, ok := s.lookup(id)
	if !ok {
		return zero, false
	}
	idx := int(id.Index())
	s.cells[idx] = nil
	s.owners[idx] = 0
	s.count--
	return cl.val, true
}

func (s *Store[C]) Has(id EntityID) bool {
	_, ok := s.lookup(id)
	return ok
}

func (s *Store[C]) Len() int {
	return s.count
}

// Each visits every stored component in slot order.
func (s *Store[C]) Each(fn func(EntityID, *C)) {
	for idx, cl := range s.cells {
		if cl != nil {
			fn(s.owners[idx], &cl.val)
		}
	}
}

func (s *Store[C]) has(id EntityID) bool { return s.Has(id) }

func (s *Store[C]) slot(id EntityID) (slot, bool) {
	cl, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return cl, true
}

func (s *Store[C]) cast(v any) (C, error) {
	c, ok := v.(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("%w: want %T, got %T", ErrComponentTypeMismatch, zero, v)
	}
	return c, nil
}

func (s *Store[C]) insertAny(id EntityID, v any) error {
	c, err := s.cast(v)
	if err != nil {
		return err
	}
	return s.Insert(id, c)
}

func (s *Store[C]) replaceAny(id EntityID, v any) error {
	c, err := s.cast(v)
	if err != nil {
		return err
	}
	s.Set(id, c)
	return nil
}

func (s *Store[C]) removeAny(id EntityID) (any, bool) {
	c, ok := s.Remove(id)
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *Store[C]) valueAny(id EntityID) (any, error) {
	cl, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrMissingComponent)
	}
	if !cl.mu.TryRLock() {
		return nil, fmt.Errorf("%s: %w", id, ErrBorrowConflict)
	}
	defer cl.mu.RUnlock()
	return cl.val, nil
}
