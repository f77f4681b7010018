package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPFetcher is a reference fetcher implementation for JSON HTTP
// APIs. The orchestration core treats it like any caller-supplied
// fetcher; it exists so the collector binary has real sources to pull.
type HTTPFetcher struct {
	logger     *zap.Logger
	url        string
	headers    map[string]string
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher for the given endpoint
func NewHTTPFetcher(url string, headers map[string]string, logger *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		logger:  logger.Named("http-fetcher"),
		url:     url,
		headers: headers,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch performs the HTTP request and decodes the JSON response
func (f *HTTPFetcher) Fetch(ctx context.Context) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	f.logger.Debug("Fetching", zap.String("url", f.url))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, f.url)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return payload, nil
}
