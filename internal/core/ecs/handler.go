package ecs

import (
	"fmt"
	"reflect"
)

// ReadHandler receives a pointer into storage under the component's read
// lock. It must not modify *c.
type ReadHandler[C, M any] func(c *C, msg M, owner EntityID, acc *Access) (M, error)

// WriteHandler receives a pointer into storage under the component's write lock.
type WriteHandler[C, M any] func(c *C, msg M, owner EntityID, acc *Access) (M, error)

type handlerFunc func(comp any, msg any, owner EntityID, acc *Access) (any, error)

type handlerEntry struct {
	write bool
	call  handlerFunc
}

type createCallback func(comp any, owner EntityID, acc *CallbackAccess)
type removeCallback func(comp any, owner EntityID, acc *CallbackAccess)

// HandlerBuilder collects the handlers of one component type. It is handed to
// the function passed to RegisterComponent or ExtendComponent.
type HandlerBuilder[C any] struct {
	chains   map[reflect.Type][]handlerEntry
	order    []reflect.Type
	name     string
	onCreate createCallback
	onRemove removeCallback
}

func newHandlerBuilder[C any]() *HandlerBuilder[C] {
	return &HandlerBuilder[C]{chains: make(map[reflect.Type][]handlerEntry)}
}

func (b *HandlerBuilder[C]) add(msg reflect.Type, h handlerEntry) {
	if _, ok := b.chains[msg]; !ok {
		b.order = append(b.order, msg)
	}
	b.chains[msg] = append(b.chains[msg], h)
}

// Name sets the friendly name blueprints and snapshots use for C.
func (b *HandlerBuilder[C]) Name(name string) *HandlerBuilder[C] {
	b.name = name
	return b
}

// OnCreate runs after a C is attached, whether at spawn or by insert.
func (b *HandlerBuilder[C]) OnCreate(fn func(c *C, owner EntityID, acc *CallbackAccess)) *HandlerBuilder[C] {
	b.onCreate = func(comp any, owner EntityID, acc *CallbackAccess) {
		fn(comp.(*C), owner, acc)
	}
	return b
}

// OnRemove runs after a C is detached. On despawn owner is already dead.
func (b *HandlerBuilder[C]) OnRemove(fn func(c C, owner EntityID, acc *CallbackAccess)) *HandlerBuilder[C] {
	b.onRemove = func(comp any, owner EntityID, acc *CallbackAccess) {
		fn(comp.(C), owner, acc)
	}
	return b
}

func HandleRead[C, M any](b *HandlerBuilder[C], fn ReadHandler[C, M]) *HandlerBuilder[C] {
	b.add(reflect.TypeFor[M](), handlerEntry{call: erase[C, M](fn)})
	return b
}

func HandleWrite[C, M any](b *HandlerBuilder[C], fn WriteHandler[C, M]) *HandlerBuilder[C] {
	b.add(reflect.TypeFor[M](), handlerEntry{write: true, call: erase[C, M](fn)})
	return b
}

func erase[C, M any](fn func(*C, M, EntityID, *Access) (M, error)) handlerFunc {
	return func(comp any, msg any, owner EntityID, acc *Access) (any, error) {
		c, ok := comp.(*C)
		if !ok {
			return msg, fmt.Errorf("%w: handler for %s got %T", ErrComponentTypeMismatch, reflect.TypeFor[C](), comp)
		}
		m, _ := msg.(M)
		return fn(c, m, owner, acc)
	}
}
