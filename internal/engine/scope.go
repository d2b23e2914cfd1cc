package engine

import (
	"sync"

	"algoengine/internal/algo"
)

type scopeState int

const (
	scopeBuilding scopeState = iota
	scopeLive
	scopeDiscarded
)

type pendingSub struct {
	a        algo.Algo
	vtSymbol string
}

// buildScope is the Engine a factory receives. Subscriptions made before
// the instance is registered are held and replayed by commit; discard
// drops them and ignores any later ones.
type buildScope struct {
	*Engine

	mu      sync.Mutex
	state   scopeState
	pending []pendingSub
}

func newBuildScope(e *Engine) *buildScope {
	return &buildScope{Engine: e}
}

func (s *buildScope) Subscribe(a algo.Algo, vtSymbol string) {
	s.mu.Lock()
	switch s.state {
	case scopeBuilding:
		s.pending = append(s.pending, pendingSub{a: a, vtSymbol: vtSymbol})
		s.mu.Unlock()
		return
	case scopeDiscarded:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.Engine.Subscribe(a, vtSymbol)
}

func (s *buildScope) commit() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.state = scopeLive
	s.mu.Unlock()
	for _, p := range pending {
		s.Engine.Subscribe(p.a, p.vtSymbol)
	}
}

func (s *buildScope) discard() {
	s.mu.Lock()
	s.pending = nil
	s.state = scopeDiscarded
	s.mu.Unlock()
}
