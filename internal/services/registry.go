package services

import (
	"fmt"
	"sort"

	"github.com/desertthunder/mixtape/internal/shared"
)

// Factory builds a service adapter from application dependencies.
type Factory func(deps Deps) (Service, error)

// Registry maps service names to adapter factories.
type Registry map[string]Factory

// DefaultRegistry returns the registry of every adapter compiled into the binary.
func DefaultRegistry() Registry {
	return Registry{
		shared.ServiceSpotify:    NewSpotifyFromConfig,
		shared.ServiceAppleMusic: NewAppleMusicFromConfig,
	}
}

// Names returns the registered service names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the named service.
func (r Registry) Create(name string, deps Deps) (Service, error) {
	factory, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownService, name)
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("%w: no configuration for %s", shared.ErrMissingConfig, name)
	}
	return factory(deps)
}
