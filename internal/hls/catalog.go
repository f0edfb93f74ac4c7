package hls

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind distinguishes array action points from loop action points.
type Kind int

const (
	Array Kind = iota
	Loop
)

func (k Kind) String() string {
	if k == Array {
		return "array"
	}
	return "loop"
}

// ActionPoint is a fixed location in source code eligible for a directive.
// Ordinal is the 1-based position in the catalog.
type ActionPoint struct {
	Ordinal int
	Name    string
	Kind    Kind
}

// Catalog is the ordered, immutable list of action points shared by every
// component. Arrays come first, then loops.
type Catalog struct {
	points []ActionPoint
	index  map[string]int
}

// CatalogFile is the YAML layout of a catalog override.
type CatalogFile struct {
	Arrays []string `yaml:"arrays"`
	Loops  []string `yaml:"loops"`
}

// NewCatalog builds a catalog from array and loop names.
func NewCatalog(arrays, loops []string) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(arrays)+len(loops))}
	add := func(name string, kind Kind) error {
		if name == "" {
			return fmt.Errorf("empty action point name")
		}
		if _, dup := c.index[name]; dup {
			return fmt.Errorf("duplicate action point %s", name)
		}
		c.index[name] = len(c.points)
		c.points = append(c.points, ActionPoint{Ordinal: len(c.points) + 1, Name: name, Kind: kind})
		return nil
	}
	for _, n := range arrays {
		if err := add(n, Array); err != nil {
			return nil, err
		}
	}
	for _, n := range loops {
		if err := add(n, Loop); err != nil {
			return nil, err
		}
	}
	if len(c.points) == 0 {
		return nil, fmt.Errorf("catalog has no action points")
	}
	return c, nil
}

// DefaultCatalog is the action-point list the knowledge base was built with.
func DefaultCatalog() *Catalog {
	var arrays, loops []string
	for i := 1; i <= 22; i++ {
		arrays = append(arrays, "Array_"+strconv.Itoa(i))
	}
	for i := 1; i <= 26; i++ {
		loops = append(loops, "OuterLoop_"+strconv.Itoa(i))
	}
	for outer, n := range []int{16, 7, 5, 2} {
		for i := 1; i <= n; i++ {
			loops = append(loops, fmt.Sprintf("InnerLoop_%d_%d", outer+1, i))
		}
	}
	c, err := NewCatalog(arrays, loops)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a YAML catalog file. An empty path yields the default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return NewCatalog(f.Arrays, f.Loops)
}

// WriteCatalog stores the catalog as YAML.
func WriteCatalog(path string, c *Catalog) error {
	var f CatalogFile
	for _, ap := range c.points {
		if ap.Kind == Array {
			f.Arrays = append(f.Arrays, ap.Name)
		} else {
			f.Loops = append(f.Loops, ap.Name)
		}
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Len returns the number of action points.
func (c *Catalog) Len() int { return len(c.points) }

// At returns the action point at a 0-based position.
func (c *Catalog) At(i int) ActionPoint { return c.points[i] }

// Points returns a copy of the ordered action points.
func (c *Catalog) Points() []ActionPoint {
	out := make([]ActionPoint, len(c.points))
	copy(out, c.points)
	return out
}

// Index returns the 0-based position of a named action point.
func (c *Catalog) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Lookup returns a named action point.
func (c *Catalog) Lookup(name string) (ActionPoint, bool) {
	i, ok := c.index[name]
	if !ok {
		return ActionPoint{}, false
	}
	return c.points[i], true
}

// Resolve accepts either an action-point name or a 1-based ordinal.
func (c *Catalog) Resolve(ref string) (ActionPoint, error) {
	if ap, ok := c.Lookup(ref); ok {
		return ap, nil
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(c.points) {
		return ActionPoint{}, fmt.Errorf("unknown action point %q", ref)
	}
	return c.points[n-1], nil
}

// Empty returns an assignment with NoDirective at every action point.
func (c *Catalog) Empty() Assignment {
	a := make(Assignment, len(c.points))
	for _, ap := range c.points {
		a[ap.Name] = NoDirective
	}
	return a
}
