package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oddsflow/collector/internal/model"
)

func newTestBreaker(t *testing.T, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	t.Helper()
	return New("test-source", Config{
		FailureThreshold: threshold,
		ResetTimeout:     resetTimeout,
	}, zaptest.NewLogger(t))
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	b := newTestBreaker(t, 3, time.Minute)

	// Failures below the threshold keep the breaker closed.
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, model.CircuitStateClosed, b.State())
	}

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, model.CircuitStateOpen, b.State())

	// Every call fails fast while the reset timeout has not elapsed.
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(t, 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, 2, b.Failures())

	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())

	// The counter starts over, so two more failures still don't trip it.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, model.CircuitStateClosed, b.State())
}

func TestCircuitBreaker_HalfOpenProbeSuccess(t *testing.T) {
	b := newTestBreaker(t, 1, 50*time.Millisecond)

	b.RecordFailure()
	require.Equal(t, model.CircuitStateOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	time.Sleep(60 * time.Millisecond)

	// Exactly one probe is admitted once the timeout elapses.
	require.NoError(t, b.Allow())
	assert.Equal(t, model.CircuitStateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	b.RecordSuccess()
	assert.Equal(t, model.CircuitStateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.NoError(t, b.Allow())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := newTestBreaker(t, 1, 50*time.Millisecond)

	b.RecordFailure()
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.RecordFailure()

	// The failed probe re-opens the breaker and re-arms the timeout.
	assert.Equal(t, model.CircuitStateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, b.Allow())
	assert.Equal(t, model.CircuitStateHalfOpen, b.State())
}

func TestCircuitBreaker_ConcurrentCallers(t *testing.T) {
	b := newTestBreaker(t, 5, time.Minute)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				if err := b.Allow(); err == nil {
					if j%2 == 0 {
						b.RecordSuccess()
					} else {
						b.RecordFailure()
					}
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	// No assertion beyond not racing; state must still be coherent.
	state := b.State()
	assert.Contains(t, []model.CircuitState{
		model.CircuitStateClosed,
		model.CircuitStateOpen,
		model.CircuitStateHalfOpen,
	}, state)
}

func TestRegistry_OneBreakerPerSource(t *testing.T) {
	r := NewRegistry(Config{}, zaptest.NewLogger(t))

	a := r.Get("espn")
	b := r.Get("weather")
	assert.NotSame(t, a, b)
	assert.Same(t, a, r.Get("espn"))

	a.RecordFailure()
	states := r.States()
	assert.Len(t, states, 2)
	assert.Equal(t, model.CircuitStateClosed, states["espn"])
}

func TestConfig_Defaults(t *testing.T) {
	b := New("s", Config{}, zaptest.NewLogger(t))
	assert.Equal(t, DefaultFailureThreshold, b.config.FailureThreshold)
	assert.Equal(t, DefaultResetTimeout, b.config.ResetTimeout)
}
