// Package snapshot converts a World to and from a serializable form. It only
// uses the World's public surface: components are copied out with
// ComponentsOf and restored through ordinary Spawn calls. Resources are
// included when their type was registered with RegisterResource.
package snapshot

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/courier/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

var ErrUnknownComponent = errors.New("unknown component name")

type Snapshot struct {
	ID        uuid.UUID  `yaml:"-"`
	RawID     string     `yaml:"id"`
	TakenAt   time.Time  `yaml:"taken_at"`
	Entities  []Entity   `yaml:"entities"`
	Resources []Resource `yaml:"resources,omitempty"`
}

type Entity struct {
	ID         ecs.EntityID `yaml:"id"`
	Components []Component  `yaml:"components"`
}

// Component is one component value, kept as a YAML node so a snapshot can be
// decoded without knowing the Go types involved.
type Component struct {
	Name string    `yaml:"name"`
	Data yaml.Node `yaml:"data"`
}

// Capture copies every live entity. It must not run during a dispatch.
func Capture(w *ecs.World) (*Snapshot, error) {
	snap := &Snapshot{
		ID:      uuid.New(),
		TakenAt: time.Now().UTC(),
	}
	snap.RawID = snap.ID.String()

	for _, e := range w.Entities() {
		vals, err := w.ComponentsOf(e)
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", e, err)
		}
		rec := Entity{ID: e, Components: make([]Component, len(vals))}
		for i, v := range vals {
			rec.Components[i].Name = v.Name
			if err := rec.Components[i].Data.Encode(v.Value); err != nil {
				return nil, fmt.Errorf("capture %s on %s: %w", v.Name, e, err)
			}
		}
		snap.Entities = append(snap.Entities, rec)
	}

	res, err := captureResources(w)
	if err != nil {
		return nil, err
	}
	snap.Resources = res
	return snap, nil
}

// Restore spawns every entity in snap into w, then puts back the saved
// resources, and returns the mapping from the snapshot's IDs to the new ones.
// Entities get fresh IDs; component order is preserved. Nothing is spawned
// if any component or resource cannot be decoded. Saved resources replace
// whatever the spawn callbacks left in them.
func Restore(w *ecs.World, snap *Snapshot) (map[ecs.EntityID]ecs.EntityID, error) {
	decoded := make([][]any, len(snap.Entities))
	for i, rec := range snap.Entities {
		vals := make([]any, len(rec.Components))
		seen := make(map[reflect.Type]bool, len(rec.Components))
		for j, c := range rec.Components {
			typ, ok := w.ComponentTypeByName(c.Name)
			if !ok {
				return nil, fmt.Errorf("restore %s: %w: %q", rec.ID, ErrUnknownComponent, c.Name)
			}
			if seen[typ] {
				return nil, fmt.Errorf("restore %s: %w: %q", rec.ID, ecs.ErrDuplicateComponent, c.Name)
			}
			seen[typ] = true
			ptr := reflect.New(typ)
			if err := c.Data.Decode(ptr.Interface()); err != nil {
				return nil, fmt.Errorf("restore %s on %s: %w", c.Name, rec.ID, err)
			}
			vals[j] = ptr.Elem().Interface()
		}
		decoded[i] = vals
	}
	inserts, err := decodeResources(snap.Resources)
	if err != nil {
		return nil, err
	}

	ids := make(map[ecs.EntityID]ecs.EntityID, len(snap.Entities))
	for i, rec := range snap.Entities {
		id, err := w.Spawn(decoded[i]...)
		if err != nil {
			return ids, fmt.Errorf("restore %s: %w", rec.ID, err)
		}
		ids[rec.ID] = id
	}
	for _, insert := range inserts {
		insert(w)
	}
	return ids, nil
}

// ComponentCounts tallies components by name.
func (s *Snapshot) ComponentCounts() map[string]int {
	out := make(map[string]int)
	for _, e := range s.Entities {
		for _, c := range e.Components {
			out[c.Name]++
		}
	}
	return out
}
