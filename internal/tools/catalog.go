// Package tools defines the tool catalog: every tool the reasoning engine
// may invoke, its JSON Schema, and the scopes a caller needs to use it.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vaultline/vaultline/internal/auth"
	"github.com/vaultline/vaultline/internal/engine"
	"github.com/vaultline/vaultline/pkg/models"
)

// Descriptor declares one tool.
type Descriptor struct {
	// Name is the tool's wire name.
	Name string

	// Description tells the engine when to use the tool.
	Description string

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema json.RawMessage

	// RequiredScopes must all be granted for the tool to be visible and
	// callable.
	RequiredScopes []auth.Scope

	// Intent is the action category the tool maps to.
	Intent models.Intent

	// Defaults fill argument keys the caller omitted.
	Defaults map[string]any

	schema *jsonschema.Schema
}

// Catalog is an ordered, immutable set of tool descriptors. Schemas are
// compiled once at construction.
type Catalog struct {
	order  []string
	byName map[string]*Descriptor
}

// NewCatalog compiles the descriptors into a catalog.
func NewCatalog(descriptors ...Descriptor) (*Catalog, error) {
	catalog := &Catalog{
		byName: make(map[string]*Descriptor, len(descriptors)),
	}
	for i := range descriptors {
		desc := descriptors[i]
		if desc.Name == "" {
			return nil, fmt.Errorf("tools: descriptor %d has no name", i)
		}
		if _, exists := catalog.byName[desc.Name]; exists {
			return nil, fmt.Errorf("tools: duplicate tool %q", desc.Name)
		}

		schema, err := jsonschema.CompileString(desc.Name+".json", string(desc.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("tools: compile schema for %q: %w", desc.Name, err)
		}
		desc.schema = schema

		catalog.order = append(catalog.order, desc.Name)
		catalog.byName[desc.Name] = &desc
	}
	return catalog, nil
}

// Get returns the descriptor for a tool name.
func (c *Catalog) Get(name string) (*Descriptor, bool) {
	desc, ok := c.byName[name]
	return desc, ok
}

// Validate checks tool arguments against the tool's compiled schema.
func (c *Catalog) Validate(name string, args map[string]any) error {
	desc, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("tools: unknown tool %q", name)
	}
	// The validator wants decoded JSON; normalize through a round trip so
	// non-JSON number types coming from callers do not trip it.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tools: encode arguments for %q: %w", name, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("tools: decode arguments for %q: %w", name, err)
	}
	if err := desc.schema.Validate(decoded); err != nil {
		return fmt.Errorf("tools: invalid arguments for %q: %w", name, err)
	}
	return nil
}

// Canonicalize copies the arguments and fills in the tool's defaults for
// omitted keys. The input map is never mutated.
func (c *Catalog) Canonicalize(name string, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if desc, ok := c.byName[name]; ok {
		for k, v := range desc.Defaults {
			if _, present := out[k]; !present {
				out[k] = v
			}
		}
	}
	return out
}

// Specs returns the engine tool specs for every tool the scope set is
// authorized to use, in catalog order.
func (c *Catalog) Specs(scopes auth.ScopeSet) []engine.ToolSpec {
	var specs []engine.ToolSpec
	for _, name := range c.order {
		desc := c.byName[name]
		if !scopes.Authorized(desc.RequiredScopes) {
			continue
		}
		specs = append(specs, engine.ToolSpec{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}
	return specs
}

// Names returns every tool name in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
