package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"algoengine/internal/algo"
)

// ErrDuplicateAlgo is returned when an instance name is already active.
var ErrDuplicateAlgo = errors.New("algo name already active")

// Registry owns the three routing tables: active instances by name, order
// ownership by vtOrderID and symbol fan-out sets. Every accessor copies
// out, so callers deliver events without holding the lock.
type Registry struct {
	mu      sync.RWMutex
	algos   map[string]algo.Algo
	orders  map[string]algo.Algo
	symbols map[string]map[string]algo.Algo
}

func NewRegistry() *Registry {
	return &Registry{
		algos:   make(map[string]algo.Algo),
		orders:  make(map[string]algo.Algo),
		symbols: make(map[string]map[string]algo.Algo),
	}
}

func (r *Registry) Add(a algo.Algo) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("algo instance has empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.algos[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAlgo, name)
	}
	r.algos[name] = a
	return nil
}

func (r *Registry) Remove(name string) (algo.Algo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.algos[name]
	if ok {
		delete(r.algos, name)
	}
	return a, ok
}

func (r *Registry) Get(name string) (algo.Algo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algos[name]
	return a, ok
}

// IsActive reports whether this exact instance is still registered.
func (r *Registry) IsActive(a algo.Algo) bool {
	if a == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.algos[a.Name()]
	return ok && cur == a
}

// Names returns a sorted snapshot of active names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.algos))
	for name := range r.algos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active returns a snapshot of active instances ordered by name.
func (r *Registry) Active() []algo.Algo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedAlgos(r.algos)
}

func (r *Registry) SetOwner(vtOrderID string, a algo.Algo) {
	r.mu.Lock()
	r.orders[vtOrderID] = a
	r.mu.Unlock()
}

func (r *Registry) Owner(vtOrderID string) (algo.Algo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.orders[vtOrderID]
	return a, ok
}

func (r *Registry) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// AddSubscriber puts a in the fan-out set of vtSymbol. It returns true only
// when this call created the set, i.e. when the caller must issue the
// upstream subscription.
func (r *Registry) AddSubscriber(vtSymbol string, a algo.Algo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.symbols[vtSymbol]
	if !ok {
		set = make(map[string]algo.Algo)
		r.symbols[vtSymbol] = set
	}
	set[a.Name()] = a
	return !ok
}

func (r *Registry) Subscribers(vtSymbol string) []algo.Algo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.symbols[vtSymbol]
	if !ok {
		return nil
	}
	return sortedAlgos(set)
}

// Unsubscribe drops a from every fan-out set. Another instance holding the
// same name is left alone. Empty sets stay, their upstream subscriptions
// are still live.
func (r *Registry) Unsubscribe(a algo.Algo) {
	name := a.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.symbols {
		if cur, ok := set[name]; ok && cur == a {
			delete(set, name)
		}
	}
}

// Symbols returns every symbol with an upstream subscription.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for sym := range r.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func sortedAlgos(m map[string]algo.Algo) []algo.Algo {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]algo.Algo, 0, len(names))
	for _, name := range names {
		out = append(out, m[name])
	}
	return out
}
