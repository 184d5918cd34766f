package xdispatch

import (
	"errors"
	"sort"
	"sync"
)

// RegistryFactory constructs an aggregate registry from a config blob.
type RegistryFactory func(cfg map[string]any) (Registry, error)

var (
	registryFactoriesMu sync.RWMutex
	registryFactories   = map[string]RegistryFactory{}
)

// RegisterRegistry makes an aggregate registry backend available by name.
// Adapters call it from init.
func RegisterRegistry(name string, factory RegistryFactory) error {
	if name == "" {
		return errors.New("registry name must not be empty")
	}
	if factory == nil {
		return errors.New("registry factory must not be nil")
	}
	registryFactoriesMu.Lock()
	registryFactories[name] = factory
	registryFactoriesMu.Unlock()
	return nil
}

// NewRegistry constructs a registered aggregate registry by name.
func NewRegistry(name string, cfg map[string]any) (Registry, error) {
	registryFactoriesMu.RLock()
	f, ok := registryFactories[name]
	registryFactoriesMu.RUnlock()
	if !ok {
		return nil, ErrUnknownRegistry{name: name}
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return f(cfg)
}

// RegisteredRegistries lists registry backend names in sorted order.
func RegisteredRegistries() []string {
	registryFactoriesMu.RLock()
	names := make([]string, 0, len(registryFactories))
	for n := range registryFactories {
		names = append(names, n)
	}
	registryFactoriesMu.RUnlock()
	sort.Strings(names)
	return names
}
