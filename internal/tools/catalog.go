package tools

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog []byte

// Definition is one tool as written in a catalog file.
type Definition struct {
	Name          string                 `toml:"name"`
	Description   string                 `toml:"description"`
	Properties    map[string]PropertyDef `toml:"properties"`
	Required      []string               `toml:"required"`
	InlinePayload bool                   `toml:"inline_payload"`
}

// PropertyDef is a single parameter of a tool.
type PropertyDef struct {
	Type        string       `toml:"type"`
	Description string       `toml:"description"`
	Enum        []string     `toml:"enum"`
	Items       *PropertyDef `toml:"items"`
	Default     any          `toml:"default"`
}

// Catalog is the ordered set of tools known to the assistant.
type Catalog struct {
	specs []Spec
	index map[string]int
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a TOML catalog from path. An empty path loads the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes TOML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file struct {
		Tools []Definition `toml:"tools"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}

	c := &Catalog{index: make(map[string]int, len(file.Tools))}
	for _, def := range file.Tools {
		if def.Name == "" {
			return nil, fmt.Errorf("parse tool catalog: tool without a name")
		}
		if _, dup := c.index[def.Name]; dup {
			return nil, fmt.Errorf("parse tool catalog: duplicate tool %q", def.Name)
		}
		c.index[def.Name] = len(c.specs)
		c.specs = append(c.specs, def.Spec())
	}
	return c, nil
}

// Spec converts the definition to the schema sent to the model.
func (d Definition) Spec() Spec {
	props := make(map[string]any, len(d.Properties))
	for name, p := range d.Properties {
		props[name] = p.schema()
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	required := d.Required
	if required == nil {
		required = []string{}
	}
	schema["required"] = required

	return Spec{
		Name:          d.Name,
		Description:   d.Description,
		InputSchema:   schema,
		InlinePayload: d.InlinePayload,
	}
}

func (p PropertyDef) schema() map[string]any {
	out := map[string]any{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Items != nil {
		out["items"] = p.Items.schema()
	}
	if p.Default != nil {
		out["default"] = p.Default
	}
	return out
}

// All returns every spec in catalog order.
func (c *Catalog) All() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Lookup returns the spec called name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	i, ok := c.index[name]
	if !ok {
		return Spec{}, false
	}
	return c.specs[i], true
}

// Subset returns the specs named, in the order given. Unknown names are
// reported in missing.
func (c *Catalog) Subset(names ...string) (specs []Spec, missing []string) {
	for _, n := range names {
		s, ok := c.Lookup(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		specs = append(specs, s)
	}
	return specs, missing
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.specs) }
