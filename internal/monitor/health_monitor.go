package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

const (
	// DefaultWindowSize bounds the rolling window of checks per source.
	DefaultWindowSize = 100

	// DefaultAlertThresholdFailures is the consecutive-failure count
	// that raises a warning alert.
	DefaultAlertThresholdFailures = 3

	// DefaultMinSamples is the minimum window size before any status
	// other than unknown is assigned.
	DefaultMinSamples = 5

	// DefaultAlertLogCapacity bounds the in-memory alert log.
	DefaultAlertLogCapacity = 200

	// DefaultDegradedAlertInterval throttles degraded warnings to one
	// per source per interval.
	DefaultDegradedAlertInterval = time.Hour
)

// Status thresholds over the rolling-window success rate.
const (
	healthyRate   = 0.95
	degradedRate  = 0.80
	unhealthyRate = 0.50
)

// Config holds health monitor tunables
type Config struct {
	WindowSize             int
	AlertThresholdFailures int
	MinSamples             int
	AlertLogCapacity       int
	DegradedAlertInterval  time.Duration
}

// withDefaults fills zero fields with the package defaults
func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.AlertThresholdFailures <= 0 {
		c.AlertThresholdFailures = DefaultAlertThresholdFailures
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.AlertLogCapacity <= 0 {
		c.AlertLogCapacity = DefaultAlertLogCapacity
	}
	if c.DegradedAlertInterval <= 0 {
		c.DegradedAlertInterval = DefaultDegradedAlertInterval
	}
	return c
}

// AlertCallback is invoked synchronously for every new alert. Panics
// and slow callbacks are the caller's problem only up to a point:
// panics are caught and logged so monitoring itself never breaks.
type AlertCallback func(alert model.Alert)

// ResourceProvider supplies host resource snapshots for health reports
type ResourceProvider interface {
	Snapshot() *model.SystemStats
}

// sourceState is the monitor's mutable per-source record
type sourceState struct {
	window            []model.HealthCheck
	metrics           model.HealthMetrics
	lastDegradedAlert time.Time
}

// HealthMonitor ingests a stream of per-source outcome events,
// maintains a bounded rolling window per source, derives a health
// status, and raises alerts on threshold crossings. It is independent
// of any single orchestrator run and lives for the whole process.
//
// All methods are safe for concurrent use.
type HealthMonitor struct {
	logger    *zap.Logger
	config    Config
	resources ResourceProvider

	mu        sync.Mutex
	sources   map[string]*sourceState
	alerts    []model.Alert
	callbacks []AlertCallback
}

// NewHealthMonitor creates a health monitor with the given tunables;
// zero values select the defaults.
func NewHealthMonitor(config Config, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		logger:  logger.Named("health-monitor"),
		config:  config.withDefaults(),
		sources: make(map[string]*sourceState),
	}
}

// AttachResources wires a host resource sampler into health reports
func (m *HealthMonitor) AttachResources(provider ResourceProvider) {
	m.mu.Lock()
	m.resources = provider
	m.mu.Unlock()
}

// RegisterAlertCallback adds a listener invoked synchronously for every
// new alert
func (m *HealthMonitor) RegisterAlertCallback(cb AlertCallback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()
}

// RecordCheck appends an outcome to the source's rolling window,
// evicting the oldest entry at capacity, recomputes the source's
// metrics, and evaluates the alert rules. It never fails: malformed
// input is clamped and logged, not rejected.
func (m *HealthMonitor) RecordCheck(check model.HealthCheck) {
	if check.Duration < 0 {
		m.logger.Warn("Clamping negative check duration",
			zap.String("source", check.Source),
			zap.Duration("duration", check.Duration))
		check.Duration = 0
	}
	if check.Timestamp.IsZero() {
		check.Timestamp = time.Now()
	}

	m.mu.Lock()

	state, ok := m.sources[check.Source]
	if !ok {
		state = &sourceState{
			window:  make([]model.HealthCheck, 0, m.config.WindowSize),
			metrics: model.HealthMetrics{Source: check.Source, Status: model.HealthStatusUnknown},
		}
		m.sources[check.Source] = state
	}

	if len(state.window) >= m.config.WindowSize {
		state.window = state.window[1:]
	}
	state.window = append(state.window, check)

	if check.Success {
		state.metrics.ConsecutiveFailures = 0
		state.metrics.LastSuccess = timePtr(check.Timestamp)
	} else {
		state.metrics.ConsecutiveFailures++
		state.metrics.LastFailure = timePtr(check.Timestamp)
	}

	m.recompute(state)
	alerts := m.evaluate(state, check)

	callbacks := make([]AlertCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, alert := range alerts {
		m.dispatch(alert, callbacks)
	}
}

// recompute derives the source metrics from its current window.
// Caller must hold the lock.
func (m *HealthMonitor) recompute(state *sourceState) {
	metrics := &state.metrics
	metrics.TotalChecks = len(state.window)
	metrics.SuccessfulChecks = 0
	metrics.FailedChecks = 0

	var total time.Duration
	var min, max time.Duration
	for i, check := range state.window {
		if check.Success {
			metrics.SuccessfulChecks++
		} else {
			metrics.FailedChecks++
		}
		total += check.Duration
		if i == 0 || check.Duration < min {
			min = check.Duration
		}
		if check.Duration > max {
			max = check.Duration
		}
	}

	if metrics.TotalChecks > 0 {
		metrics.SuccessRate = float64(metrics.SuccessfulChecks) / float64(metrics.TotalChecks)
		metrics.AvgDuration = total / time.Duration(metrics.TotalChecks)
	}
	metrics.MinDuration = min
	metrics.MaxDuration = max
	metrics.Status = m.statusFor(metrics)
}

// statusFor maps a window success rate to a health status. Fewer than
// MinSamples checks means we do not know yet.
func (m *HealthMonitor) statusFor(metrics *model.HealthMetrics) model.HealthStatus {
	if metrics.TotalChecks < m.config.MinSamples {
		return model.HealthStatusUnknown
	}
	switch {
	case metrics.SuccessRate >= healthyRate:
		return model.HealthStatusHealthy
	case metrics.SuccessRate >= degradedRate:
		return model.HealthStatusDegraded
	case metrics.SuccessRate >= unhealthyRate:
		return model.HealthStatusUnhealthy
	default:
		return model.HealthStatusCritical
	}
}

// evaluate applies the alert rules after a recompute and returns the
// alerts to dispatch. Caller must hold the lock.
//
// Rule order: the consecutive-failure warning fires exactly once at the
// crossing; a critical status alerts on every recompute, an unhealthy
// one likewise, and a degraded one at most once per rolling interval.
func (m *HealthMonitor) evaluate(state *sourceState, check model.HealthCheck) []model.Alert {
	var alerts []model.Alert
	metrics := &state.metrics

	if !check.Success && metrics.ConsecutiveFailures == m.config.AlertThresholdFailures {
		alerts = append(alerts, m.newAlert(model.AlertLevelWarning, check.Source,
			fmt.Sprintf("%d consecutive failures", metrics.ConsecutiveFailures), metrics))
	}

	switch metrics.Status {
	case model.HealthStatusCritical:
		alerts = append(alerts, m.newAlert(model.AlertLevelCritical, check.Source,
			fmt.Sprintf("source critical: success rate %.0f%%", metrics.SuccessRate*100), metrics))

	case model.HealthStatusUnhealthy:
		alerts = append(alerts, m.newAlert(model.AlertLevelError, check.Source,
			fmt.Sprintf("source unhealthy: success rate %.0f%%", metrics.SuccessRate*100), metrics))

	case model.HealthStatusDegraded:
		if time.Since(state.lastDegradedAlert) >= m.config.DegradedAlertInterval {
			state.lastDegradedAlert = time.Now()
			alerts = append(alerts, m.newAlert(model.AlertLevelWarning, check.Source,
				fmt.Sprintf("source degraded: success rate %.0f%%", metrics.SuccessRate*100), metrics))
		}
	}

	for _, alert := range alerts {
		if len(m.alerts) >= m.config.AlertLogCapacity {
			m.alerts = m.alerts[1:]
		}
		m.alerts = append(m.alerts, alert)
	}

	return alerts
}

// newAlert builds an alert carrying the current metrics as metadata
func (m *HealthMonitor) newAlert(level model.AlertLevel, source, message string, metrics *model.HealthMetrics) model.Alert {
	return model.Alert{
		ID:        uuid.New().String(),
		Level:     level,
		Source:    source,
		Message:   message,
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"status":               string(metrics.Status),
			"success_rate":         metrics.SuccessRate,
			"consecutive_failures": metrics.ConsecutiveFailures,
			"total_checks":         metrics.TotalChecks,
		},
	}
}

// dispatch delivers one alert to the registered callbacks. Callback
// panics are caught and logged, never allowed to break monitoring.
func (m *HealthMonitor) dispatch(alert model.Alert, callbacks []AlertCallback) {
	m.logger.Info("Alert raised",
		zap.String("id", alert.ID),
		zap.String("level", string(alert.Level)),
		zap.String("source", alert.Source),
		zap.String("message", alert.Message))

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Alert callback panicked",
						zap.String("alert_id", alert.ID),
						zap.Any("panic", r))
				}
			}()
			cb(alert)
		}()
	}
}

// GetMetrics returns a read-only snapshot of one source's metrics
func (m *HealthMonitor) GetMetrics(source string) (model.HealthMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sources[source]
	if !ok {
		return model.HealthMetrics{}, false
	}
	return state.metrics, true
}

// GetAllMetrics returns read-only snapshots for every tracked source
func (m *HealthMonitor) GetAllMetrics() map[string]model.HealthMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make(map[string]model.HealthMetrics, len(m.sources))
	for source, state := range m.sources {
		all[source] = state.metrics
	}
	return all
}

// SystemHealth returns the worst status among all tracked sources: the
// system is only as healthy as its weakest source. With no sources
// tracked the answer is unknown.
func (m *HealthMonitor) SystemHealth() model.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.systemHealthLocked()
}

func (m *HealthMonitor) systemHealthLocked() model.HealthStatus {
	if len(m.sources) == 0 {
		return model.HealthStatusUnknown
	}

	worst := model.HealthStatusUnknown
	for _, state := range m.sources {
		if state.metrics.Status.WorseThan(worst) {
			worst = state.metrics.Status
		}
	}
	return worst
}

// RecentAlerts returns up to n alerts from the log, newest last
func (m *HealthMonitor) RecentAlerts(n int) []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.alerts) {
		n = len(m.alerts)
	}
	recent := make([]model.Alert, n)
	copy(recent, m.alerts[len(m.alerts)-n:])
	return recent
}

// Report assembles the exposed health report: system status, a
// per-source breakdown, recent alerts, and a host resource snapshot
// when a sampler is attached.
func (m *HealthMonitor) Report() model.HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := model.HealthReport{
		Timestamp:    time.Now(),
		SystemHealth: m.systemHealthLocked(),
		Sources:      make(map[string]model.SourceHealth, len(m.sources)),
	}

	for source, state := range m.sources {
		metrics := state.metrics
		report.Sources[source] = model.SourceHealth{
			Status:              metrics.Status,
			SuccessRate:         metrics.SuccessRate,
			TotalChecks:         metrics.TotalChecks,
			ConsecutiveFailures: metrics.ConsecutiveFailures,
			AvgDurationMS:       metrics.AvgDuration.Milliseconds(),
			LastSuccess:         metrics.LastSuccess,
			LastFailure:         metrics.LastFailure,
		}
	}

	report.RecentAlerts = make([]model.Alert, len(m.alerts))
	copy(report.RecentAlerts, m.alerts)

	if m.resources != nil {
		report.Resources = m.resources.Snapshot()
	}

	return report
}

func timePtr(t time.Time) *time.Time {
	return &t
}
