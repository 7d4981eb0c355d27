package pipeline

import (
	"errors"
	"fmt"
)

// Registry maps stage type names to their factories.
type Registry struct {
	factories map[string]Factory
}

var errDuplicateStage = errors.New("duplicate stage type")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given stage type name.
func (r *Registry) Register(stageType string, factory Factory) error {
	if stageType == "" {
		return errors.New("empty stage type")
	}
	if factory == nil {
		return errors.New("nil factory")
	}
	if _, exists := r.factories[stageType]; exists {
		return fmt.Errorf("%w: %s", errDuplicateStage, stageType)
	}
	r.factories[stageType] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(stageType string, factory Factory) {
	if err := r.Register(stageType, factory); err != nil {
		panic("pipeline registry: " + err.Error())
	}
}

// Lookup returns the factory registered for stageType, or nil if absent.
func (r *Registry) Lookup(stageType string) Factory {
	return r.factories[stageType]
}

// NewDefaultRegistry returns a Registry with every built-in stage type
// registered (spec §4.3's stage table). Stage packages call Register on
// this from their own init, keeping the registry the single source of
// truth for "what name maps to what factory" without pipeline needing to
// import every stage package directly.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for name, factory := range defaultFactories {
		r.MustRegister(name, factory)
	}
	return r
}

// defaultFactories is populated by stage packages' init() functions via
// RegisterDefault, so pipeline itself never needs to import
// pipeline/stages (which would be a cyclic import: stages imports
// pipeline for the Stage interface).
var defaultFactories = make(map[string]Factory)

// RegisterDefault adds a factory to the set NewDefaultRegistry will include.
// Intended to be called from a stage package's init().
func RegisterDefault(stageType string, factory Factory) {
	defaultFactories[stageType] = factory
}
