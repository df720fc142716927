package ecs

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatch delivers msg to every handler for M on target's components and
// returns the final message. Components are visited in insertion order and
// each component's chain in registration order.
func Dispatch[M any](v Viewer, target EntityID, msg M) (M, error) {
	w := v.viewWorld()
	w.dispatching.Add(1)
	defer w.dispatching.Add(-1)

	out, err := w.dispatchOne(target, reflect.TypeFor[M](), msg, nil)
	m, _ := out.(M)
	return m, err
}

// DispatchToAll sends a copy of msg to every entity alive when the call
// starts. Entities spawned lazily during the pass are not visited. Errors
// from individual entities are joined; one failing entity never stops the
// others.
func DispatchToAll[M any](w *World, msg M) error {
	w.dispatching.Add(1)
	defer w.dispatching.Add(-1)

	targets := w.pool.Live()
	mt := reflect.TypeFor[M]()
	if w.workers <= 1 || len(targets) < 2 {
		var errs []error
		for _, e := range targets {
			if _, err := w.dispatchOne(e, mt, msg, nil); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return w.broadcastParallel(targets, mt, msg)
}

// broadcastParallel splits targets into one chunk per worker. Dispatches a
// worker queues for entities other than the one it is folding may target a
// cell another worker holds, so they are set aside per chunk and run once
// every worker is done, in chunk order.
func (w *World) broadcastParallel(targets []EntityID, mt reflect.Type, msg any) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(w.workers)
	chunk := (len(targets) + w.workers - 1) / w.workers
	spills := make([][]queuedDispatch, (len(targets)+chunk-1)/chunk)
	for i := range spills {
		part := targets[i*chunk : min((i+1)*chunk, len(targets))]
		spill := &spills[i]
		g.Go(func() error {
			for _, e := range part {
				if _, err := w.dispatchOne(e, mt, msg, spill); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, spill := range spills {
		for _, q := range spill {
			if _, err := w.dispatchOne(q.target, q.msg, q.value, nil); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// dispatchOne runs target's chain, then every dispatch queued while it ran,
// in queue order. Messages queued by queued messages join the same queue, so
// self-dispatch loops run iteratively. When spill is non-nil, queued messages
// for other entities go there instead of running.
func (w *World) dispatchOne(target EntityID, mt reflect.Type, msg any, spill *[]queuedDispatch) (any, error) {
	var pending []queuedDispatch
	out, err := w.fold(target, mt, msg, &pending)

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for len(pending) > 0 {
		q := pending[0]
		pending = pending[1:]
		if spill != nil && q.target != target {
			*spill = append(*spill, q)
			continue
		}
		if _, qerr := w.fold(q.target, q.msg, q.value, &pending); qerr != nil {
			errs = append(errs, qerr)
		}
	}
	return out, errors.Join(errs...)
}

func (w *World) fold(target EntityID, mt reflect.Type, msg any, pending *[]queuedDispatch) (any, error) {
	if !w.pool.Alive(target) {
		return msg, fmt.Errorf("dispatch %s to %s: %w", mt, target, ErrStaleEntity)
	}
	acc := &Access{world: w, owner: target, pending: pending}
	for _, ct := range w.records[target.Index()].types {
		chain := ct.chains[mt]
		if len(chain) == 0 {
			continue
		}
		sl, ok := ct.store.slot(target)
		if !ok {
			continue
		}
		for _, h := range chain {
			out, err := invoke(h, sl, msg, target, acc)
			if err != nil {
				return msg, fmt.Errorf("dispatch %s to %s (%s): %w", mt, target, ct.name, err)
			}
			msg = out
			if acc.cancelled {
				return msg, nil
			}
		}
	}
	return msg, nil
}

func invoke(h handlerEntry, sl slot, msg any, owner EntityID, acc *Access) (any, error) {
	if h.write {
		if !sl.tryWrite() {
			return msg, ErrBorrowConflict
		}
		defer sl.writeDone()
	} else {
		if !sl.tryRead() {
			return msg, ErrBorrowConflict
		}
		defer sl.readDone()
	}
	return h.call(sl.ptr(), msg, owner, acc)
}
