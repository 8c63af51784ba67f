package broker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/miladsoleymani/mqshim/core"
)

// Factory creates a Dialer from the given Config.
type Factory func(cfg Config) (core.Dialer, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a named dialer factory. Plugins call this from init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Create instantiates a dialer by name using the registered factory.
// Nothing is dialed until the first Service operation.
func Create(name string, cfg Config) (core.Dialer, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mqshim: unknown broker %q", name)
	}
	return f(cfg)
}

// Names lists the registered broker names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
