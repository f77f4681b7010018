package breaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

// ErrCircuitOpen is returned by Allow when the breaker is open and the
// reset timeout has not elapsed. The call is skipped, not attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	// DefaultFailureThreshold is the number of consecutive failures
	// that trips a closed breaker.
	DefaultFailureThreshold = 5

	// DefaultResetTimeout is how long an open breaker waits before
	// admitting a probe call.
	DefaultResetTimeout = 30 * time.Second
)

// Config holds the tunables for a circuit breaker
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// withDefaults fills zero fields with the package defaults
func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	return c
}

// CircuitBreaker isolates one persistently failing source. It moves
// through closed -> open -> half-open: open fails fast until the reset
// timeout elapses, then exactly one probe call is admitted; the probe's
// outcome decides between closing and re-opening.
//
// All methods are safe for concurrent use on the same instance.
type CircuitBreaker struct {
	logger *zap.Logger
	source string
	config Config

	mu            sync.Mutex
	state         model.CircuitState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// New creates a closed circuit breaker for the given source
func New(source string, config Config, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		logger: logger.Named("breaker"),
		source: source,
		config: config.withDefaults(),
		state:  model.CircuitStateClosed,
	}
}

// Allow decides whether a call to the source may proceed. It returns
// ErrCircuitOpen while the breaker is open and the reset timeout has
// not elapsed. Once the timeout elapses the breaker transitions to
// half-open and admits exactly one probe; concurrent callers are
// rejected until the probe's outcome is recorded.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case model.CircuitStateClosed:
		return nil

	case model.CircuitStateOpen:
		if time.Since(b.openedAt) < b.config.ResetTimeout {
			return ErrCircuitOpen
		}
		b.state = model.CircuitStateHalfOpen
		b.probeInFlight = true
		b.logger.Info("Circuit breaker half-open, admitting probe",
			zap.String("source", b.source))
		return nil

	case model.CircuitStateHalfOpen:
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	}

	return nil
}

// RecordSuccess resets the failure counter and closes a half-open breaker
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false

	if b.state == model.CircuitStateHalfOpen {
		b.state = model.CircuitStateClosed
		b.logger.Info("Circuit breaker closed after successful probe",
			zap.String("source", b.source))
	}
}

// RecordFailure increments the failure counter. A half-open breaker
// re-opens immediately, re-arming the reset timeout; a closed breaker
// opens once the counter reaches the failure threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probeInFlight = false

	switch b.state {
	case model.CircuitStateHalfOpen:
		b.open()
	case model.CircuitStateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	}
}

// open transitions to the open state. Caller must hold the lock.
// Opening is a deliberate throttle, not an error condition.
func (b *CircuitBreaker) open() {
	b.state = model.CircuitStateOpen
	b.openedAt = time.Now()
	b.logger.Warn("Circuit breaker opened",
		zap.String("source", b.source),
		zap.Int("failures", b.failures),
		zap.Duration("reset_timeout", b.config.ResetTimeout))
}

// State returns the current circuit state
func (b *CircuitBreaker) State() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
