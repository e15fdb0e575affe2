package cmd

import (
	"log/slog"

	"github.com/enroutehq/enroute/pkg/registry"
)

// NewRegistry builds the step handler registry: built-in handlers plus any
// .so plugins found under pluginsPath.
func NewRegistry(logger *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultHandlers()

	if pluginsPath != "" {
		factories, err := reg.LoadHandlerPlugins(pluginsPath)
		if err != nil {
			panic(err)
		}

		for _, factory := range factories {
			reg.Register(factory)
		}
	}

	return reg
}
