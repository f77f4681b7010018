package breaker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

// Registry hands out one long-lived circuit breaker per source name.
// Breakers survive across orchestrator runs; state is process-local
// and rebuilt from scratch on restart.
type Registry struct {
	logger *zap.Logger
	config Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty breaker registry
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for the source, creating it on first sight
func (r *Registry) Get(source string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[source]
	if !ok {
		b = New(source, r.config, r.logger)
		r.breakers[source] = b
	}
	return b
}

// States returns a snapshot of the current state per tracked source
func (r *Registry) States() map[string]model.CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]model.CircuitState, len(r.breakers))
	for source, b := range r.breakers {
		states[source] = b.State()
	}
	return states
}
