package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/simulation"
)

// Selector tracks the simulation shown for a conversation. At most one is active.
type Selector struct {
	mu      sync.Mutex
	catalog simulation.Catalog
	active  *simulation.Simulation
	logger  *zap.Logger
}

// NewSelector creates a selector over catalog.
func NewSelector(catalog simulation.Catalog, logger *zap.Logger) *Selector {
	return &Selector{catalog: catalog, logger: logger}
}

// Activate shows the simulation named by a tutor turn. Turns without a
// simulation and unknown identifiers leave the current state untouched.
func (s *Selector) Activate(turn chat.Turn) (simulation.Simulation, bool) {
	if !turn.HasSimulation() {
		return simulation.Unknown, false
	}

	sim, ok := s.catalog.Lookup(turn.Data)
	if !ok {
		s.logger.Warn("ignoring unknown simulation", zap.String("simulation", turn.Data))
		return simulation.Unknown, false
	}
	if !sim.Implemented {
		s.logger.Info("simulation has no dedicated view", zap.String("simulation", string(sim.ID)))
	}

	s.mu.Lock()
	s.active = &sim
	s.mu.Unlock()
	return sim, true
}

// Dismiss hides the active simulation, if any.
func (s *Selector) Dismiss() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

// Active returns the shown simulation.
func (s *Selector) Active() (simulation.Simulation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return simulation.Unknown, false
	}
	return *s.active, true
}
