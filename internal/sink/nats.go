package sink

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

const (
	alertStreamName     = "ALERTS"
	alertStreamSubjects = "alert.*"
)

// NATSSink publishes alerts to JetStream on alert.<level> subjects so
// downstream consumers can subscribe per severity.
type NATSSink struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSSink creates the sink, ensuring the ALERTS stream exists
func NewNATSSink(js nats.JetStreamContext, logger *zap.Logger) (*NATSSink, error) {
	stream, err := js.StreamInfo(alertStreamName)
	if err != nil && err != nats.ErrStreamNotFound {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     alertStreamName,
			Subjects: []string{alertStreamSubjects},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NATSSink{
		logger: logger.Named("nats-sink"),
		js:     js,
	}, nil
}

// Write publishes one alert
func (s *NATSSink) Write(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	subject := "alert." + string(alert.Level)
	if _, err := s.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	s.logger.Debug("Alert published",
		zap.String("id", alert.ID),
		zap.String("subject", subject))

	return nil
}

// Close is a no-op; the NATS connection is owned by the caller
func (s *NATSSink) Close() error {
	return nil
}
