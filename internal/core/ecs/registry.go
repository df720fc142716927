package ecs

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// componentType is everything the World knows about one registered type.
type componentType struct {
	typ      reflect.Type
	name     string
	store    componentStore
	chains   map[reflect.Type][]handlerEntry
	onCreate createCallback
	onRemove removeCallback
}

// registry tracks all component types by Go type and by friendly name.
type registry struct {
	byType map[reflect.Type]*componentType
	byName map[string]*componentType
	order  []*componentType
}

func newRegistry() *registry {
	return &registry{
		byType: make(map[reflect.Type]*componentType, 16),
		byName: make(map[string]*componentType, 16),
	}
}

func (r *registry) lookupValue(v any) (*componentType, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil component", ErrUnregisteredComponent)
	}
	ct, ok := r.byType[reflect.TypeOf(v)]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnregisteredComponent, v)
	}
	return ct, nil
}

// RegisterComponent declares C and its handler chains. Each type may be
// registered once per World; later additions go through ExtendComponent.
func RegisterComponent[C any](w *World, build func(b *HandlerBuilder[C])) error {
	w.mustNotDispatch("RegisterComponent")
	t := reflect.TypeFor[C]()
	if _, ok := w.reg.byType[t]; ok {
		return fmt.Errorf("%w: %s", ErrReRegistration, t)
	}
	b := newHandlerBuilder[C]()
	if build != nil {
		build(b)
	}
	name := b.name
	if name == "" {
		name = t.Name()
	}
	if prev, ok := w.reg.byName[name]; ok {
		return fmt.Errorf("%w: %q taken by %s", ErrDuplicateName, name, prev.typ)
	}

	ct := &componentType{
		typ:      t,
		name:     name,
		store:    NewStore[C](w.capacity),
		chains:   b.chains,
		onCreate: b.onCreate,
		onRemove: b.onRemove,
	}
	w.reg.byType[t] = ct
	w.reg.byName[name] = ct
	w.reg.order = append(w.reg.order, ct)

	w.log.Debug("component registered",
		zap.String("component", name),
		zap.Int("messages", len(b.chains)))
	return nil
}

func MustRegisterComponent[C any](w *World, build func(b *HandlerBuilder[C])) {
	if err := RegisterComponent(w, build); err != nil {
		panic(err)
	}
}

// ExtendComponent appends handlers to the chains of an already registered C.
// Extension handlers run after every handler registered before them.
func ExtendComponent[C any](w *World, extend func(b *HandlerBuilder[C])) error {
	w.mustNotDispatch("ExtendComponent")
	t := reflect.TypeFor[C]()
	ct, ok := w.reg.byType[t]
	if !ok {
		return fmt.Errorf("extend %s: %w", t, ErrUnregisteredComponent)
	}
	b := newHandlerBuilder[C]()
	extend(b)
	if b.name != "" || b.onCreate != nil || b.onRemove != nil {
		return fmt.Errorf("extend %s: %w", ct.name, ErrExtensionCallback)
	}
	for _, mt := range b.order {
		ct.chains[mt] = append(ct.chains[mt], b.chains[mt]...)
	}

	w.log.Debug("component extended",
		zap.String("component", ct.name),
		zap.Int("messages", len(b.order)))
	return nil
}

func MustExtendComponent[C any](w *World, extend func(b *HandlerBuilder[C])) {
	if err := ExtendComponent(w, extend); err != nil {
		panic(err)
	}
}

// StoreOf returns the backing store of C for direct iteration between ticks.
func StoreOf[C any](w *World) (*Store[C], error) {
	s, _, err := storeFor[C](w)
	return s, err
}

func storeFor[C any](w *World) (*Store[C], *componentType, error) {
	t := reflect.TypeFor[C]()
	ct, ok := w.reg.byType[t]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnregisteredComponent, t)
	}
	s, ok := ct.store.(*Store[C])
	if !ok {
		return nil, nil, fmt.Errorf("%w: store for %s holds %T", ErrComponentTypeMismatch, t, ct.store)
	}
	return s, ct, nil
}

// KnowsComponent reports whether t was registered.
func (w *World) KnowsComponent(t reflect.Type) bool {
	_, ok := w.reg.byType[t]
	return ok
}

// ComponentNames lists friendly names in registration order.
func (w *World) ComponentNames() []string {
	out := make([]string, len(w.reg.order))
	for i, ct := range w.reg.order {
		out[i] = ct.name
	}
	return out
}

func (w *World) ComponentTypeByName(name string) (reflect.Type, bool) {
	ct, ok := w.reg.byName[name]
	if !ok {
		return nil, false
	}
	return ct.typ, true
}

// ComponentName returns the friendly name of a registered type.
func (w *World) ComponentName(t reflect.Type) (string, bool) {
	ct, ok := w.reg.byType[t]
	if !ok {
		return "", false
	}
	return ct.name, true
}
