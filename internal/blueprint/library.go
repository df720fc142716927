// Package blueprint loads entity templates from YAML and turns them into
// component lists.
//
// A file is a list of blueprints:
//
//	- name: creature
//	  components:
//	    - vitals: {hp: 10, max_hp: 10}
//	- name: rabbit
//	  components:
//	    - splice: creature
//	    - breeder: {blueprint: rabbit, every: 8}
//
// Loading a blueprint whose name is already known merges it into the old one
// (components with the same name are replaced in place, new ones appended)
// unless it says merge: clobber, which replaces the old one outright.
package blueprint

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

var (
	ErrBlueprintNotFound = errors.New("blueprint not found")
	ErrInheriteeNotFound = errors.New("spliced blueprint not found")
	ErrInheritanceLoop   = errors.New("blueprint splice loop")
	ErrNoFactory         = errors.New("no factory for component")
	ErrMalformed         = errors.New("malformed blueprint")
)

const spliceKey = "splice"

type MergeMode int

const (
	Merge MergeMode = iota
	Clobber
)

type element struct {
	name   string // component name, or the spliced blueprint
	splice bool
	node   yaml.Node
}

type raw struct {
	name     string
	elements []element
}

// fileEntry is the on-disk shape of one blueprint.
type fileEntry struct {
	Name       string                 `yaml:"name"`
	Merge      string                 `yaml:"merge"`
	Components []map[string]yaml.Node `yaml:"components"`
}

// fold normalizes names for lookup. A Caser is stateful, so one is made per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Library holds raw blueprints keyed by folded name. Load everything before
// sharing a Library between goroutines.
type Library struct {
	prints map[string]*raw
}

func NewLibrary() *Library {
	return &Library{prints: make(map[string]*raw)}
}

func (l *Library) Len() int { return len(l.prints) }

func (l *Library) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read blueprints %s: %w", path, err)
	}
	return l.LoadBytes(data, path)
}

// LoadBytes parses src and inserts every blueprint in it. source names the
// input in errors. Nothing is inserted if any blueprint is malformed.
func (l *Library) LoadBytes(src []byte, source string) error {
	var entries []fileEntry
	if err := yaml.Unmarshal(src, &entries); err != nil {
		return fmt.Errorf("parse blueprints %s: %w", source, err)
	}

	parsed := make([]*raw, 0, len(entries))
	modes := make([]MergeMode, 0, len(entries))
	for i, fe := range entries {
		r, mode, err := parseEntry(fe)
		if err != nil {
			return fmt.Errorf("%s: blueprint #%d: %w", source, i+1, err)
		}
		parsed = append(parsed, r)
		modes = append(modes, mode)
	}
	for i, r := range parsed {
		l.insert(r, modes[i])
	}
	return nil
}

func parseEntry(fe fileEntry) (*raw, MergeMode, error) {
	if strings.TrimSpace(fe.Name) == "" {
		return nil, 0, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	var mode MergeMode
	switch strings.ToLower(fe.Merge) {
	case "", "merge":
		mode = Merge
	case "clobber":
		mode = Clobber
	default:
		return nil, 0, fmt.Errorf("%w: %s: merge mode %q", ErrMalformed, fe.Name, fe.Merge)
	}

	r := &raw{name: fe.Name, elements: make([]element, 0, len(fe.Components))}
	for _, entry := range fe.Components {
		if len(entry) != 1 {
			return nil, 0, fmt.Errorf("%w: %s: component entries need exactly one key, got %d", ErrMalformed, fe.Name, len(entry))
		}
		for key, node := range entry {
			if fold(key) == spliceKey {
				var target string
				if err := node.Decode(&target); err != nil || target == "" {
					return nil, 0, fmt.Errorf("%w: %s: splice needs a blueprint name", ErrMalformed, fe.Name)
				}
				r.elements = append(r.elements, element{name: target, splice: true})
				continue
			}
			r.elements = append(r.elements, element{name: key, node: node})
		}
	}
	return r, mode, nil
}

func (l *Library) insert(r *raw, mode MergeMode) {
	key := fold(r.name)
	old, ok := l.prints[key]
	if !ok || mode == Clobber {
		l.prints[key] = r
		return
	}
	for _, el := range r.elements {
		if !el.splice {
			if i := old.find(el.name); i >= 0 {
				old.elements[i] = el
				continue
			}
		}
		old.elements = append(old.elements, el)
	}
}

func (r *raw) find(component string) int {
	want := fold(component)
	for i, el := range r.elements {
		if !el.splice && fold(el.name) == want {
			return i
		}
	}
	return -1
}

// Rendered is a blueprint with every splice inlined.
type Rendered struct {
	Name       string
	Components []RenderedComponent
}

type RenderedComponent struct {
	Name string
	Node yaml.Node
}

// Render resolves name and its splices, depth first in declaration order.
func (l *Library) Render(name string) (*Rendered, error) {
	comps, err := l.render(name, nil)
	if err != nil {
		return nil, err
	}
	return &Rendered{Name: name, Components: comps}, nil
}

func (l *Library) render(name string, path []string) ([]RenderedComponent, error) {
	r, ok := l.prints[fold(name)]
	if !ok {
		if len(path) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrBlueprintNotFound, name)
		}
		return nil, fmt.Errorf("%w: %q spliced by %q", ErrInheriteeNotFound, name, path[len(path)-1])
	}

	var out []RenderedComponent
	for _, el := range r.elements {
		if !el.splice {
			out = append(out, RenderedComponent{Name: el.name, Node: el.node})
			continue
		}
		for i, seen := range path {
			if fold(seen) == fold(el.name) {
				loop := append(append([]string{}, path[i:]...), name, path[i])
				return nil, fmt.Errorf("%w: %s", ErrInheritanceLoop, strings.Join(loop, " -> "))
			}
		}
		spliced, err := l.render(el.name, append(path[:len(path):len(path)], name))
		if err != nil {
			return nil, err
		}
		out = append(out, spliced...)
	}
	return out, nil
}
