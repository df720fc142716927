package snapshot

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/l1jgo/courier/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

var ErrUnknownResource = errors.New("unknown resource name")

// Resource is one World resource, saved under the name it was registered
// with.
type Resource struct {
	Name string    `yaml:"name"`
	Data yaml.Node `yaml:"data"`
}

type resourceCodec struct {
	typ     reflect.Type
	capture func(w *ecs.World, node *yaml.Node) (bool, error)
	decode  func(node *yaml.Node) (func(w *ecs.World), error)
}

var resourceCodecs = struct {
	mu     sync.RWMutex
	byName map[string]resourceCodec
}{byName: make(map[string]resourceCodec)}

// RegisterResource makes resources of type R part of every snapshot under
// name. Registering the same name and type again is a no-op; reusing a name
// for another type panics. Call it from init.
func RegisterResource[R any](name string) {
	typ := reflect.TypeFor[R]()
	resourceCodecs.mu.Lock()
	defer resourceCodecs.mu.Unlock()
	if old, ok := resourceCodecs.byName[name]; ok {
		if old.typ != typ {
			panic(fmt.Sprintf("snapshot: resource name %q registered for %s and %s", name, old.typ, typ))
		}
		return
	}
	resourceCodecs.byName[name] = resourceCodec{
		typ: typ,
		capture: func(w *ecs.World, node *yaml.Node) (bool, error) {
			if !ecs.HasResource[R](w) {
				return false, nil
			}
			var val R
			if err := ecs.ReadResource(w, func(r *R) { val = *r }); err != nil {
				return false, err
			}
			return true, node.Encode(val)
		},
		decode: func(node *yaml.Node) (func(w *ecs.World), error) {
			var val R
			if err := node.Decode(&val); err != nil {
				return nil, err
			}
			return func(w *ecs.World) { ecs.InsertResource(w, val) }, nil
		},
	}
}

func captureResources(w *ecs.World) ([]Resource, error) {
	resourceCodecs.mu.RLock()
	defer resourceCodecs.mu.RUnlock()

	names := make([]string, 0, len(resourceCodecs.byName))
	for name := range resourceCodecs.byName {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []Resource
	for _, name := range names {
		res := Resource{Name: name}
		ok, err := resourceCodecs.byName[name].capture(w, &res.Data)
		if err != nil {
			return nil, fmt.Errorf("capture resource %s: %w", name, err)
		}
		if ok {
			out = append(out, res)
		}
	}
	return out, nil
}

// decodeResources decodes every saved resource and returns the inserts to
// run once the entities are back.
func decodeResources(saved []Resource) ([]func(*ecs.World), error) {
	resourceCodecs.mu.RLock()
	defer resourceCodecs.mu.RUnlock()

	inserts := make([]func(*ecs.World), 0, len(saved))
	for _, res := range saved {
		codec, ok := resourceCodecs.byName[res.Name]
		if !ok {
			return nil, fmt.Errorf("restore: %w: %q", ErrUnknownResource, res.Name)
		}
		node := res.Data
		insert, err := codec.decode(&node)
		if err != nil {
			return nil, fmt.Errorf("restore resource %s: %w", res.Name, err)
		}
		inserts = append(inserts, insert)
	}
	return inserts, nil
}
