package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownExchange is returned for an exchange name with no registered provider.
var ErrUnknownExchange = errors.New("unknown exchange")

// Constructor builds a provider for one exchange.
type Constructor func() (Provider, error)

// Registry maps exchange names to provider constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under a case-insensitive exchange name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[normalize(name)] = ctor
}

// New builds a fresh provider for the named exchange.
func (r *Registry) New(name string) (Provider, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[normalize(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, name)
	}
	return ctor()
}

// Names lists the registered exchange names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
