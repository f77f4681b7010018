package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration for the collector process
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Alerts       AlertsConfig       `mapstructure:"alerts"`
	History      HistoryConfig      `mapstructure:"history"`
	Sources      []SourceConfig     `mapstructure:"sources"`
	Schedules    []ScheduleConfig   `mapstructure:"schedules"`
}

// AppConfig identifies the process
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// OrchestratorConfig tunes task scheduling and retries
type OrchestratorConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	EnableRetries      bool          `mapstructure:"enable_retries"`
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
	DefaultMaxRetries  int           `mapstructure:"default_max_retries"`
}

// BreakerConfig tunes the per-source circuit breakers
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// MonitorConfig tunes the health monitor
type MonitorConfig struct {
	WindowSize             int           `mapstructure:"window_size"`
	AlertThresholdFailures int           `mapstructure:"alert_threshold_failures"`
	MinSamples             int           `mapstructure:"min_samples"`
	AlertLogCapacity       int           `mapstructure:"alert_log_capacity"`
	DegradedAlertInterval  time.Duration `mapstructure:"degraded_alert_interval"`
}

// MetricsConfig tunes the host resource sampler
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// AlertsConfig configures the alert sinks
type AlertsConfig struct {
	File    FileSinkConfig    `mapstructure:"file"`
	NATS    NATSSinkConfig    `mapstructure:"nats"`
	Webhook WebhookSinkConfig `mapstructure:"webhook"`
}

// FileSinkConfig configures the line-delimited JSON alert file
type FileSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NATSSinkConfig configures alert publishing over JetStream
type NATSSinkConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
}

// WebhookSinkConfig configures alert delivery to an HTTP endpoint
type WebhookSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// HistoryConfig configures run report persistence
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	MaxAge  int    `mapstructure:"max_age_days"`
}

// SourceConfig describes one HTTP data source to collect from
type SourceConfig struct {
	Name        string            `mapstructure:"name"`
	Description string            `mapstructure:"description"`
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	Priority    int               `mapstructure:"priority"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxRetries  int               `mapstructure:"max_retries"`
}

// ScheduleConfig names one recurring collection run
type ScheduleConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

// Load reads configuration from the given directory, layering defaults,
// an optional config.yaml, and COLLECTOR_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("collector")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file means defaults only; anything else is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers the default value for every tunable
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "collector")

	v.SetDefault("orchestrator.max_concurrent_tasks", 5)
	v.SetDefault("orchestrator.enable_retries", true)
	v.SetDefault("orchestrator.default_timeout", 10*time.Second)
	v.SetDefault("orchestrator.default_max_retries", 3)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)

	v.SetDefault("monitor.window_size", 100)
	v.SetDefault("monitor.alert_threshold_failures", 3)
	v.SetDefault("monitor.min_samples", 5)
	v.SetDefault("monitor.alert_log_capacity", 200)
	v.SetDefault("monitor.degraded_alert_interval", time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.interval", 30*time.Second)

	v.SetDefault("alerts.file.enabled", false)
	v.SetDefault("alerts.file.path", "alerts.jsonl")
	v.SetDefault("alerts.nats.enabled", false)
	v.SetDefault("alerts.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("alerts.nats.connect_timeout", 5*time.Second)
	v.SetDefault("alerts.nats.max_reconnects", 5)
	v.SetDefault("alerts.nats.reconnect_wait", 2*time.Second)
	v.SetDefault("alerts.webhook.enabled", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "run_history.db")
	v.SetDefault("history.max_age_days", 30)
}

// Validate rejects configurations that can never work
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent_tasks must be positive, got %d", c.Orchestrator.MaxConcurrentTasks)
	}
	if c.Orchestrator.DefaultTimeout <= 0 {
		return fmt.Errorf("orchestrator.default_timeout must be positive, got %s", c.Orchestrator.DefaultTimeout)
	}
	if c.Orchestrator.DefaultMaxRetries < 0 {
		return fmt.Errorf("orchestrator.default_max_retries must not be negative, got %d", c.Orchestrator.DefaultMaxRetries)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("breaker.reset_timeout must be positive, got %s", c.Breaker.ResetTimeout)
	}
	if c.Monitor.WindowSize <= 0 {
		return fmt.Errorf("monitor.window_size must be positive, got %d", c.Monitor.WindowSize)
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.url must be set when the webhook sink is enabled")
	}
	for _, source := range c.Sources {
		if source.Name == "" {
			return fmt.Errorf("every source needs a name")
		}
		if source.URL == "" {
			return fmt.Errorf("source %q has no URL", source.Name)
		}
	}
	for _, schedule := range c.Schedules {
		if schedule.Expression == "" {
			return fmt.Errorf("schedule %q has an empty cron expression", schedule.Name)
		}
	}
	return nil
}
