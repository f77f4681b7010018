package model

import "context"

// Fetcher is the capability supplied by callers for one data source:
// a single operation that produces a payload or fails. The concrete
// implementations (HTTP clients, scrapers) live outside the core.
type Fetcher interface {
	Fetch(ctx context.Context) (any, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface
type FetcherFunc func(ctx context.Context) (any, error)

// Fetch implements Fetcher
func (f FetcherFunc) Fetch(ctx context.Context) (any, error) {
	return f(ctx)
}

// Verdict is a validator's quality judgement on a fetched payload.
// An unacceptable verdict downgrades a task to degraded: the data is
// present but untrustworthy.
type Verdict struct {
	Acceptable bool    `json:"acceptable"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason,omitempty"`
}

// Validator inspects a fetched payload and returns a quality verdict.
// Optional per task; supplied by callers.
type Validator interface {
	Validate(payload any) Verdict
}

// ValidatorFunc adapts a plain function to the Validator interface
type ValidatorFunc func(payload any) Verdict

// Validate implements Validator
func (f ValidatorFunc) Validate(payload any) Verdict {
	return f(payload)
}
