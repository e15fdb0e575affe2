// Package registry holds the step handler factories and validates step
// configs against their JSON schemas.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.StepType]protocol.StepHandlerFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[models.StepType]protocol.StepHandlerFactory),
	}
}

// Register adds one step handler factory, replacing any factory already
// registered for the same type.
func (r *Registry) Register(factory protocol.StepHandlerFactory) {
	r.factories[factory.Type()] = factory
}

// Create builds a handler for the step type, wired to the collaborators.
func (r *Registry) Create(stepType models.StepType, collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	factory, ok := r.factories[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' not registered", stepType)
	}

	return factory.Create(collaborators)
}

// Types returns the registered step types.
func (r *Registry) Types() []models.StepType {
	types := make([]models.StepType, 0, len(r.factories))
	for stepType := range r.factories {
		types = append(types, stepType)
	}

	return types
}

// Factory returns the factory for a step type, for schema introspection.
func (r *Registry) Factory(stepType models.StepType) (protocol.StepHandlerFactory, bool) {
	factory, ok := r.factories[stepType]

	return factory, ok
}

// ValidateConfig checks a step config against the type's JSON schema. A
// type with no schema accepts any config.
func (r *Registry) ValidateConfig(stepType models.StepType, config map[string]any) error {
	factory, ok := r.factories[stepType]
	if !ok {
		return fmt.Errorf("step type '%s' not registered", stepType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid config for step type '%s': %s",
			stepType, strings.Join(descriptions, "; "))
	}

	return nil
}

// LoadHandlerPlugins loads step handler factories from .so plugins under
// pluginsPath/handlers, for step types built out of tree.
func (r *Registry) LoadHandlerPlugins(pluginsPath string) ([]protocol.StepHandlerFactory, error) {
	rootPath := pluginsPath + "/handlers"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := r.logger.With(slog.String("path", rootPath))
	l.Info("Loading handler plugins")

	factories := make([]protocol.StepHandlerFactory, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup("Handler")
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no Handler symbol: %w", p, err)
		}

		factory, ok := symbol.(protocol.StepHandlerFactory)
		if !ok {
			return nil, fmt.Errorf("plugin %s Handler is not a step handler factory", p)
		}

		factories = append(factories, factory)
		l.Info("Loaded handler plugin", slog.String("plugin", p))
	}

	return factories, nil
}
