package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/oddsflow/collector/internal/model"
)

// FileSink appends alerts to a line-delimited JSON file
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the alert log file for appending
func NewFileSink(path string) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert file: %w", err)
	}
	return &FileSink{file: file}, nil
}

// Write appends one alert as a single JSON line
func (s *FileSink) Write(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

// Close closes the underlying file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
