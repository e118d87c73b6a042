// Package manifest loads the declaration file describing data-access
// interfaces, the host types they use and the custom adapters available to
// them.
//
// A manifest looks like:
//
//	types:
//	  com.acme.Order:
//	    fields: {id: java.lang.Long, total: com.acme.Money}
//	adapters:
//	  - name: money
//	    direction: result
//	    types: [com.acme.Money]
//	    width: 2
//	interfaces:
//	  - name: com.acme.OrderQueries
//	    methods:
//	      - name: findOrder
//	        parameters: [java.lang.Long]
//	        returns: com.acme.Order
//	        sql: >
//	          select id {%%.id}, amount {money%%.total@1}, ccy {money%%.total@2}
//	          from orders where id = {%1}
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Adapter directions accepted in the manifest.
const (
	DirectionParameter = "parameter"
	DirectionResult    = "result"
	DirectionBoth      = "both"
)

// ErrInvalid is wrapped by every manifest validation failure.
var ErrInvalid = errors.New("invalid manifest")

// Manifest is the decoded declaration file.
type Manifest struct {
	Types      map[string]TypeDecl `yaml:"types"`
	Adapters   []AdapterDecl       `yaml:"adapters"`
	Interfaces []Interface         `yaml:"interfaces"`
}

// TypeDecl describes a host type: its supertypes, bean fields and
// constructor parameters.
type TypeDecl struct {
	Extends     []string          `yaml:"extends"`
	Fields      map[string]string `yaml:"fields"`
	Constructor []string          `yaml:"constructor"`
}

// AdapterDecl declares a custom adapter.
type AdapterDecl struct {
	Name      string   `yaml:"name"`
	Direction string   `yaml:"direction"`
	Types     []string `yaml:"types"`
	// Width is the number of columns the adapter spans, 0 for any.
	Width int `yaml:"width"`
	// Global registers the adapter in the global scope instead of the
	// manifest's own scope.
	Global bool `yaml:"global"`
}

// Interface declares one data-access interface.
type Interface struct {
	Name    string   `yaml:"name"`
	Base    string   `yaml:"base"`
	Methods []Method `yaml:"methods"`
}

// Method declares one annotated data-access method.
type Method struct {
	Name       string   `yaml:"name"`
	SQL        string   `yaml:"sql"`
	Callable   bool     `yaml:"callable"`
	Parameters []string `yaml:"parameters"`
	// Returns is the row type, or the value type of a map result.
	Returns string `yaml:"returns"`
	// Key is the key type of a map result.
	Key string `yaml:"key"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, directions and widths.
func (m *Manifest) Validate() error {
	adapters := make(map[string]bool)
	for i, a := range m.Adapters {
		if a.Name == "" {
			return fmt.Errorf("%w: adapter #%d has no name", ErrInvalid, i+1)
		}
		switch a.Direction {
		case DirectionParameter, DirectionResult, DirectionBoth:
		default:
			return fmt.Errorf("%w: adapter %q has direction %q (want parameter, result or both)", ErrInvalid, a.Name, a.Direction)
		}
		if len(a.Types) == 0 {
			return fmt.Errorf("%w: adapter %q declares no types", ErrInvalid, a.Name)
		}
		if a.Width < 0 {
			return fmt.Errorf("%w: adapter %q has negative width", ErrInvalid, a.Name)
		}
		if adapters[a.Name] {
			return fmt.Errorf("%w: adapter %q declared twice", ErrInvalid, a.Name)
		}
		adapters[a.Name] = true
	}

	ifaces := make(map[string]bool)
	for i, iface := range m.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("%w: interface #%d has no name", ErrInvalid, i+1)
		}
		if ifaces[iface.Name] {
			return fmt.Errorf("%w: interface %q declared twice", ErrInvalid, iface.Name)
		}
		ifaces[iface.Name] = true

		methods := make(map[string]bool)
		for j, meth := range iface.Methods {
			if meth.Name == "" {
				return fmt.Errorf("%w: %s method #%d has no name", ErrInvalid, iface.Name, j+1)
			}
			if strings.TrimSpace(meth.SQL) == "" {
				return fmt.Errorf("%w: %s.%s has no sql", ErrInvalid, iface.Name, meth.Name)
			}
			if methods[meth.Name] {
				return fmt.Errorf("%w: %s.%s declared twice", ErrInvalid, iface.Name, meth.Name)
			}
			methods[meth.Name] = true
		}
	}
	return nil
}

// Interface returns the interface declared under name.
func (m *Manifest) Interface(name string) (Interface, bool) {
	for _, iface := range m.Interfaces {
		if iface.Name == name {
			return iface, true
		}
	}
	return Interface{}, false
}

// FieldType walks path through the declared fields starting at owner and
// returns the type of the last field. An empty path returns owner.
func (m *Manifest) FieldType(owner string, path []string) (string, error) {
	cur := owner
	for i, field := range path {
		decl, ok := m.Types[cur]
		if !ok {
			return "", fmt.Errorf("type %s is not declared (resolving %s)", cur, strings.Join(path[:i+1], "."))
		}
		next, ok := decl.Fields[field]
		if !ok {
			return "", fmt.Errorf("type %s has no field %q", cur, field)
		}
		cur = next
	}
	return cur, nil
}

// ConstructorParameter returns the type of the 1-based constructor
// parameter idx of owner.
func (m *Manifest) ConstructorParameter(owner string, idx int) (string, error) {
	decl, ok := m.Types[owner]
	if !ok {
		return "", fmt.Errorf("type %s is not declared", owner)
	}
	if idx < 1 || idx > len(decl.Constructor) {
		return "", fmt.Errorf("type %s has %d constructor parameters, not %d", owner, len(decl.Constructor), idx)
	}
	return decl.Constructor[idx-1], nil
}
