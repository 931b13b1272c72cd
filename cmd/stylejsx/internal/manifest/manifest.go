// Package manifest reads YAML descriptions of components and the
// instances mounted from them.
//
//	components:
//	  card:
//	    css: |
//	      .card { padding: 1rem }
//	  button:
//	    dynamic: true
//	    css: ".btn { color: %s }"
//	instances:
//	  - card
//	  - {component: button, values: [red], count: 2}
package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/recera/stylejsx/pkg/styling"
	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/transform"
)

// Manifest is a parsed manifest file.
type Manifest struct {
	Components map[string]Component `yaml:"components"`
	Instances  []Instance           `yaml:"instances"`

	path string
}

// Component is one component stylesheet. Dynamic components treat CSS
// as a fmt format string filled from instance values.
type Component struct {
	CSS     string `yaml:"css"`
	Dynamic bool   `yaml:"dynamic"`
}

// Instance mounts a component Count times.
type Instance struct {
	Component string `yaml:"component"`
	Values    []any  `yaml:"values"`
	Count     int    `yaml:"count"`
}

// UnmarshalYAML accepts both forms:
// Simple form:   - card
// Extended form: - {component: button, values: [red]}
func (i *Instance) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		i.Component = value.Value
		i.Count = 1
		return nil
	}

	type rawInstance Instance
	var raw rawInstance
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*i = Instance(raw)
	if i.Count == 0 {
		i.Count = 1
	}
	return nil
}

// Mounted is one resolved instance: its payload and the class an
// element rendered from it carries.
type Mounted struct {
	Component string
	Class     string
	Payload   registry.Payload
}

// Load reads and validates a manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// Parse decodes and validates manifest data.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every instance names a known component.
func (m *Manifest) Validate() error {
	for i, inst := range m.Instances {
		c, ok := m.Components[inst.Component]
		if !ok {
			return fmt.Errorf("instance %d: unknown component %q", i, inst.Component)
		}
		if inst.Count < 0 {
			return fmt.Errorf("instance %d: count must not be negative", i)
		}
		if len(inst.Values) > 0 && !c.Dynamic {
			return fmt.Errorf("instance %d: component %q is not dynamic but has values", i, inst.Component)
		}
	}
	return nil
}

// Names lists the component names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Components))
	for name := range m.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve scopes every instance, in manifest order, repeated by count.
// r resolves dynamic identities.
func (m *Manifest) Resolve(r *registry.Registry) ([]Mounted, error) {
	static := make(map[string]*styling.ComponentStyle)
	dynamic := make(map[string]*styling.DynamicComponentStyle)

	for _, name := range m.Names() {
		c := m.Components[name]
		opts := transform.Options{Filename: m.source(name)}
		if c.Dynamic {
			dynamic[name] = styling.DynamicStyle(c.CSS, opts)
			continue
		}
		s, err := styling.Style(c.CSS, opts)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", name, err)
		}
		static[name] = s
	}

	var out []Mounted
	for _, inst := range m.Instances {
		var mounted Mounted
		if s, ok := static[inst.Component]; ok {
			mounted = Mounted{Component: inst.Component, Class: s.Class(), Payload: s.Payload()}
		} else {
			d := dynamic[inst.Component]
			p, err := d.Payload(inst.Values...)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", inst.Component, err)
			}
			mounted = Mounted{Component: inst.Component, Class: d.Class(r, inst.Values...), Payload: p}
		}
		for n := 0; n < inst.Count; n++ {
			out = append(out, mounted)
		}
	}
	return out, nil
}

// Mount resolves the manifest and adds every instance to r.
func (m *Manifest) Mount(r *registry.Registry) ([]Mounted, error) {
	mounted, err := m.Resolve(r)
	if err != nil {
		return nil, err
	}
	for _, inst := range mounted {
		if err := r.Add(inst.Payload); err != nil {
			return nil, fmt.Errorf("mount %s: %w", inst.Component, err)
		}
	}
	return mounted, nil
}

func (m *Manifest) source(component string) string {
	if m.path == "" {
		return component
	}
	return m.path + "#" + component
}
