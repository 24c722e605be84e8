// Package nodes is the built-in node catalog: the static field tables and
// behaviors of the node types the engine understands.
//
// Renderer-only node types (geometry, textures, lights) are outside the
// event model and not listed here, except for the few data nodes that are
// common route targets (Material, Coordinate) and the grouping nodes that
// hold the scene's node references.
package nodes

import (
	"fmt"
	"sync"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/node"
)

// Factory creates the behavior for one node instance. A nil Factory means
// the type is plain storage.
type Factory func() node.Behavior

// Catalog maps node type names to schemas and behavior factories.
type Catalog struct {
	schemas   *field.Registry
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewCatalog creates a catalog holding every built-in node type.
func NewCatalog() *Catalog {
	c := &Catalog{
		schemas:   field.NewRegistry(),
		factories: make(map[string]Factory),
	}
	for _, b := range builtins() {
		if err := c.Register(b.schema, b.factory); err != nil {
			panic(err)
		}
	}
	return c
}

var defaultCatalog = sync.OnceValue(NewCatalog)

// Default returns the process-wide built-in catalog. It is built once and
// shared read-only.
func Default() *Catalog {
	return defaultCatalog()
}

// Register adds a node type. f may be nil for plain storage nodes.
func (c *Catalog) Register(s *field.Schema, f Factory) error {
	if err := c.schemas.Register(s); err != nil {
		return fmt.Errorf("register %s: %w", s.TypeName(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[s.TypeName()] = f
	return nil
}

// Lookup returns the schema and behavior factory of a node type.
func (c *Catalog) Lookup(typeName string) (*field.Schema, Factory, bool) {
	s, ok := c.schemas.Lookup(typeName)
	if !ok {
		return nil, nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return s, c.factories[typeName], true
}

// NewBehavior instantiates the behavior of typeName, or nil for plain
// storage types.
func (c *Catalog) NewBehavior(typeName string) node.Behavior {
	_, f, ok := c.Lookup(typeName)
	if !ok || f == nil {
		return nil
	}
	return f()
}

// Schemas returns the underlying field registry.
func (c *Catalog) Schemas() *field.Registry {
	return c.schemas
}

// TypeNames returns every registered type name in sorted order.
func (c *Catalog) TypeNames() []string {
	return c.schemas.TypeNames()
}

type builtin struct {
	schema  *field.Schema
	factory Factory
}

func builtins() []builtin {
	return []builtin{
		{groupSchema, newGrouping},
		{transformSchema, newGrouping},
		{shapeSchema, nil},
		{appearanceSchema, nil},
		{materialSchema, nil},
		{coordinateSchema, nil},
		{timeSensorSchema, newTimeSensor},
		{positionInterpolatorSchema, newPositionInterpolator},
		{scalarInterpolatorSchema, newScalarInterpolator},
		{colorInterpolatorSchema, newColorInterpolator},
		{orientationInterpolatorSchema, newOrientationInterpolator},
		{coordinateInterpolatorSchema, newCoordinateInterpolator},
		{integerSequencerSchema, newIntegerSequencer},
		{booleanSequencerSchema, newBooleanSequencer},
		{booleanFilterSchema, newBooleanFilter},
		{booleanToggleSchema, newBooleanToggle},
		{booleanTriggerSchema, newBooleanTrigger},
		{integerTriggerSchema, newIntegerTrigger},
		{timeTriggerSchema, newTimeTrigger},
		{touchSensorSchema, newTouchSensor},
		{proximitySensorSchema, newProximitySensor},
	}
}
