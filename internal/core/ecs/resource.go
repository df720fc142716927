package ecs

import (
	"fmt"
	"reflect"
	"sync"
)

// Resources are singletons stored on the World outside any entity. Handlers
// use them to aggregate results across a broadcast.
type resourceMap struct {
	mu sync.RWMutex
	m  map[reflect.Type]*resourceCell
}

type resourceCell struct {
	mu  sync.RWMutex
	val any // *R
}

func newResourceMap() *resourceMap {
	return &resourceMap{m: make(map[reflect.Type]*resourceCell)}
}

func (r *resourceMap) get(t reflect.Type) (*resourceCell, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[t]
	return c, ok
}

// InsertResource stores res, returning the value it replaced if any.
func InsertResource[R any](w *World, res R) (old R, replaced bool) {
	t := reflect.TypeFor[R]()
	w.resources.mu.Lock()
	defer w.resources.mu.Unlock()
	if c, ok := w.resources.m[t]; ok {
		c.mu.Lock()
		p := c.val.(*R)
		old, *p = *p, res
		c.mu.Unlock()
		return old, true
	}
	w.resources.m[t] = &resourceCell{val: &res}
	return old, false
}

func RemoveResource[R any](w *World) (R, bool) {
	t := reflect.TypeFor[R]()
	w.resources.mu.Lock()
	defer w.resources.mu.Unlock()
	c, ok := w.resources.m[t]
	if !ok {
		var zero R
		return zero, false
	}
	delete(w.resources.m, t)
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.val.(*R), true
}

func HasResource[R any](v Viewer) bool {
	_, ok := v.viewWorld().resources.get(reflect.TypeFor[R]())
	return ok
}

// ReadResource calls fn with R under a shared lock. fn must not touch R
// through another resource call.
func ReadResource[R any](v Viewer, fn func(r *R)) error {
	c, ok := v.viewWorld().resources.get(reflect.TypeFor[R]())
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, reflect.TypeFor[R]())
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.val.(*R))
	return nil
}

// WriteResource calls fn with R under an exclusive lock. Parallel handlers
// writing the same resource serialize here.
func WriteResource[R any](v Viewer, fn func(r *R)) error {
	c, ok := v.viewWorld().resources.get(reflect.TypeFor[R]())
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, reflect.TypeFor[R]())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.val.(*R))
	return nil
}
