package ecs

import (
	"fmt"
	"reflect"
)

// Ref is a scoped borrow of one component. Release must be called once the
// caller is done with Value; a second Release is a no-op.
type Ref[C any] struct {
	val      *C
	unlock   func()
	released bool
}

func (r *Ref[C]) Value() *C { return r.val }

func (r *Ref[C]) Release() {
	if r.released {
		return
	}
	r.released = true
	r.unlock()
}

func cellOf[C any](w *World, e EntityID) (*cell[C], error) {
	s, ct, err := storeFor[C](w)
	if err != nil {
		return nil, err
	}
	if !w.pool.Alive(e) {
		return nil, fmt.Errorf("%s: %w", e, ErrStaleEntity)
	}
	cl, ok := s.lookup(e)
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", ct.name, e, ErrMissingComponent)
	}
	return cl, nil
}

// Read borrows e's C for reading. Inside a handler this fails with
// ErrBorrowConflict if the same component is write-locked further up the
// dispatch stack.
func Read[C any](v Viewer, e EntityID) (*Ref[C], error) {
	cl, err := cellOf[C](v.viewWorld(), e)
	if err != nil {
		return nil, err
	}
	if !cl.mu.TryRLock() {
		return nil, fmt.Errorf("read %s on %s: %w", reflect.TypeFor[C](), e, ErrBorrowConflict)
	}
	return &Ref[C]{val: &cl.val, unlock: cl.mu.RUnlock}, nil
}

// Write borrows e's C exclusively.
func Write[C any](v Viewer, e EntityID) (*Ref[C], error) {
	cl, err := cellOf[C](v.viewWorld(), e)
	if err != nil {
		return nil, err
	}
	if !cl.mu.TryLock() {
		return nil, fmt.Errorf("write %s on %s: %w", reflect.TypeFor[C](), e, ErrBorrowConflict)
	}
	return &Ref[C]{val: &cl.val, unlock: cl.mu.Unlock}, nil
}

// Get returns a copy of e's C.
func Get[C any](v Viewer, e EntityID) (C, error) {
	r, err := Read[C](v, e)
	if err != nil {
		var zero C
		return zero, err
	}
	defer r.Release()
	return *r.val, nil
}

func Has[C any](v Viewer, e EntityID) bool {
	w := v.viewWorld()
	s, _, err := storeFor[C](w)
	if err != nil {
		return false
	}
	return w.pool.Alive(e) && s.Has(e)
}

// Each2 iterates over entities that have both component A and B.
// It iterates over the smaller store and checks the larger one. Not for use
// during dispatch.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	if sa.Len() <= sb.Len() {
		sa.Each(func(id EntityID, a *A) {
			if b, ok := sb.Get(id); ok {
				fn(id, a, b)
			}
		})
	} else {
		sb.Each(func(id EntityID, b *B) {
			if a, ok := sa.Get(id); ok {
				fn(id, a, b)
			}
		})
	}
}
