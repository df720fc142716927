package blueprint

import (
	"fmt"
	"reflect"

	"github.com/l1jgo/courier/internal/core/ecs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Factory builds one component value from its blueprint node.
type Factory interface {
	Assemble(node *yaml.Node) (any, error)
}

type FactoryFunc func(node *yaml.Node) (any, error)

func (f FactoryFunc) Assemble(node *yaml.Node) (any, error) { return f(node) }

// Fabricator pairs a Library with the factories that turn its component
// nodes into values.
type Fabricator struct {
	lib       *Library
	factories map[string]Factory
	log       *zap.Logger
}

func NewFabricator(lib *Library, log *zap.Logger) *Fabricator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fabricator{lib: lib, factories: make(map[string]Factory), log: log}
}

func (f *Fabricator) Library() *Library { return f.lib }

// Register binds a component name to a factory, replacing any earlier one.
func (f *Fabricator) Register(name string, factory Factory) {
	f.factories[fold(name)] = factory
}

// RegisterDecoder registers a factory that YAML-decodes the node into a C.
// An empty node yields the zero C.
func RegisterDecoder[C any](f *Fabricator, name string) {
	f.Register(name, FactoryFunc(func(node *yaml.Node) (any, error) {
		var c C
		if node.Kind != 0 {
			if err := node.Decode(&c); err != nil {
				return nil, err
			}
		}
		return c, nil
	}))
}

// RegisterWorld adds a decoder for every component registered in w, under its
// friendly name. Names that already have a factory are left alone.
func (f *Fabricator) RegisterWorld(w *ecs.World) {
	for _, name := range w.ComponentNames() {
		if _, ok := f.factories[fold(name)]; ok {
			continue
		}
		typ, _ := w.ComponentTypeByName(name)
		f.Register(name, FactoryFunc(func(node *yaml.Node) (any, error) {
			ptr := reflect.New(typ)
			if node.Kind != 0 {
				if err := node.Decode(ptr.Interface()); err != nil {
					return nil, err
				}
			}
			return ptr.Elem().Interface(), nil
		}))
	}
}

// Instantiate renders name and assembles every component in order.
func (f *Fabricator) Instantiate(name string) ([]any, error) {
	r, err := f.lib.Render(name)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(r.Components))
	for _, c := range r.Components {
		factory, ok := f.factories[fold(c.Name)]
		if !ok {
			return nil, fmt.Errorf("blueprint %q: %w: %q", name, ErrNoFactory, c.Name)
		}
		node := c.Node
		v, err := factory.Assemble(&node)
		if err != nil {
			return nil, fmt.Errorf("blueprint %q: assemble %s: %w", name, c.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Spawn instantiates name directly into w.
func (f *Fabricator) Spawn(w *ecs.World, name string) (ecs.EntityID, error) {
	comps, err := f.Instantiate(name)
	if err != nil {
		return 0, err
	}
	id, err := w.Spawn(comps...)
	if err != nil {
		return 0, fmt.Errorf("blueprint %q: %w", name, err)
	}
	f.log.Debug("blueprint spawned", zap.String("blueprint", name), zap.Stringer("entity", id))
	return id, nil
}

// LazySpawn instantiates name from inside a handler. The entity appears at
// the next Finalize.
func (f *Fabricator) LazySpawn(acc *ecs.Access, name string) (ecs.EntityID, error) {
	comps, err := f.Instantiate(name)
	if err != nil {
		return 0, err
	}
	id, err := acc.LazySpawn(comps...)
	if err != nil {
		return 0, fmt.Errorf("blueprint %q: %w", name, err)
	}
	return id, nil
}
