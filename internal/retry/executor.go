package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/breaker"
	"github.com/oddsflow/collector/internal/model"
)

// Executor wraps fetcher calls with a per-attempt timeout, bounded
// retries with backoff, and circuit-breaker consultation. Breakers are
// shared through the registry so their state outlives individual runs.
type Executor struct {
	logger        *zap.Logger
	breakers      *breaker.Registry
	strategy      Strategy
	enableRetries bool
}

// NewExecutor creates a retry executor. With enableRetries false every
// call is a single attempt, used for faster test and debug runs.
func NewExecutor(breakers *breaker.Registry, strategy Strategy, enableRetries bool, logger *zap.Logger) *Executor {
	if strategy == nil {
		strategy = DefaultBackoff()
	}
	return &Executor{
		logger:        logger.Named("retry-executor"),
		breakers:      breakers,
		strategy:      strategy,
		enableRetries: enableRetries,
	}
}

// fetchResult carries one attempt's outcome out of its goroutine
type fetchResult struct {
	payload any
	err     error
}

// Execute runs the fetcher for the source, retrying transient failures
// up to maxRetries times. It returns the payload, the number of retries
// performed, and the last error when all attempts are spent. A skipped
// call (open circuit) and a timed-out or failed attempt all count as
// failures for backoff purposes, but only attempted calls are recorded
// against the breaker.
func (e *Executor) Execute(ctx context.Context, source string, fetcher model.Fetcher, timeout time.Duration, maxRetries int) (any, int, error) {
	br := e.breakers.Get(source)

	if !e.enableRetries {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.strategy.NextDelay(attempt - 1)
			e.logger.Debug("Backing off before retry",
				zap.String("source", source),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			if err := sleep(ctx, delay); err != nil {
				return nil, attempt - 1, err
			}
		}

		payload, err := e.attempt(ctx, br, source, fetcher, timeout, attempt)
		if err == nil {
			return payload, attempt, nil
		}
		lastErr = err

		e.logger.Warn("Fetch attempt failed",
			zap.String("source", source),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))
	}

	return nil, maxRetries, fmt.Errorf("%w for source %q: %w", ErrRetriesExhausted, source, lastErr)
}

// attempt performs a single breaker-guarded, timeout-bounded fetch
func (e *Executor) attempt(ctx context.Context, br *breaker.CircuitBreaker, source string, fetcher model.Fetcher, timeout time.Duration, attempt int) (any, error) {
	if err := br.Allow(); err != nil {
		// Skipped, not attempted: the breaker is throttling this
		// source, so nothing is recorded against it.
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan fetchResult, 1)
	go func() {
		payload, err := fetcher.Fetch(attemptCtx)
		resultCh <- fetchResult{payload: payload, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		br.RecordFailure()
		return nil, &TimeoutError{Source: source, Attempt: attempt, Timeout: timeout}

	case result := <-resultCh:
		if result.err != nil {
			br.RecordFailure()
			if errors.Is(result.err, context.DeadlineExceeded) {
				return nil, &TimeoutError{Source: source, Attempt: attempt, Timeout: timeout}
			}
			return nil, &FetchError{Source: source, Attempt: attempt, Err: result.err}
		}

		br.RecordSuccess()
		return result.payload, nil
	}
}

// sleep waits for the given duration or until the context is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
