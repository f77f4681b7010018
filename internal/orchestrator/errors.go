package orchestrator

import "fmt"

// ConfigurationError is a programmer error: a task or orchestrator was
// set up in a way that can never work. It is raised immediately from
// Schedule or the constructor and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
