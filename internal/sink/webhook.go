package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

// WebhookSink delivers alerts as JSON POSTs to a configured endpoint
type WebhookSink struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
}

// NewWebhookSink creates a webhook sink for the given URL
func NewWebhookSink(url string, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		logger: logger.Named("webhook-sink"),
		url:    url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Write posts one alert to the endpoint
func (s *WebhookSink) Write(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	resp, err := s.httpClient.Post(s.url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	s.logger.Debug("Alert delivered to webhook",
		zap.String("id", alert.ID),
		zap.Int("status", resp.StatusCode))

	return nil
}

// Close is a no-op
func (s *WebhookSink) Close() error {
	return nil
}
