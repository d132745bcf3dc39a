package config

import (
	"fmt"
	"time"

	"github.com/kubescape/kernel-agent/pkg/exporters"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const ConfigDirEnvVar = "CONFIG_DIR"
const DefaultConfigDir = "/etc/config"

// Config is the pipeline configuration. It must not be mutated once a
// pipeline has been started with it.
type Config struct {
	Exporters                exporters.ExportersConfig `mapstructure:"exporters"`
	RingBufferSize           int                       `mapstructure:"ring_buffer_size"`
	EventBatchSize           int                       `mapstructure:"event_batch_size"`
	PollTimeoutMs            int                       `mapstructure:"poll_timeout_ms"`
	MaxEventsPerSec          int                       `mapstructure:"max_events_per_sec"`
	EnableBackpressure       bool                      `mapstructure:"enable_backpressure"`
	AutoRecovery             bool                      `mapstructure:"auto_recovery"`
	MetricsIntervalSec       int                       `mapstructure:"metrics_interval_sec"`
	RingBufferPollTimeoutUs  *int                      `mapstructure:"ring_buffer_poll_timeout_us"`
	BatchSize                *int                      `mapstructure:"batch_size"`
	BatchTimeoutUs           *int                      `mapstructure:"batch_timeout_us"`
	ChannelDepth             int                       `mapstructure:"channel_depth"`
	ProcessedChannelDepth    int                       `mapstructure:"processed_channel_depth"`
	MaxRestartAttempts       int                       `mapstructure:"max_restart_attempts"`
	ShutdownTimeout          time.Duration             `mapstructure:"shutdown_timeout"`
	RingBufferPins           []string                  `mapstructure:"ring_buffer_pins"`
	EnablePrometheusExporter bool                      `mapstructure:"prometheus_exporter_enabled"`
	MetricsPort              int                       `mapstructure:"metrics_port"`
}

// Default returns the configuration used when no file overrides a key.
func Default() Config {
	return Config{
		RingBufferSize:        2 * 1024 * 1024,
		EventBatchSize:        256,
		PollTimeoutMs:         1,
		MaxEventsPerSec:       100000,
		EnableBackpressure:    true,
		AutoRecovery:          true,
		MetricsIntervalSec:    10,
		ChannelDepth:          1000,
		ProcessedChannelDepth: 1000,
		MaxRestartAttempts:    5,
		ShutdownTimeout:       5 * time.Second,
		MetricsPort:           8080,
	}
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	return LoadConfigFs(afero.NewOsFs(), path)
}

// LoadConfigFs reads config.json from path on the given filesystem.
func LoadConfigFs(fs afero.Fs, path string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("json")

	d := Default()
	v.SetDefault("ring_buffer_size", d.RingBufferSize)
	v.SetDefault("event_batch_size", d.EventBatchSize)
	v.SetDefault("poll_timeout_ms", d.PollTimeoutMs)
	v.SetDefault("max_events_per_sec", d.MaxEventsPerSec)
	v.SetDefault("enable_backpressure", d.EnableBackpressure)
	v.SetDefault("auto_recovery", d.AutoRecovery)
	v.SetDefault("metrics_interval_sec", d.MetricsIntervalSec)
	v.SetDefault("channel_depth", d.ChannelDepth)
	v.SetDefault("processed_channel_depth", d.ProcessedChannelDepth)
	v.SetDefault("max_restart_attempts", d.MaxRestartAttempts)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("metrics_port", d.MetricsPort)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch {
	case c.EventBatchSize <= 0:
		return fmt.Errorf("event_batch_size must be positive, got %d", c.EventBatchSize)
	case c.PollTimeoutMs <= 0:
		return fmt.Errorf("poll_timeout_ms must be positive, got %d", c.PollTimeoutMs)
	case c.MaxEventsPerSec <= 0:
		return fmt.Errorf("max_events_per_sec must be positive, got %d", c.MaxEventsPerSec)
	case c.MetricsIntervalSec <= 0:
		return fmt.Errorf("metrics_interval_sec must be positive, got %d", c.MetricsIntervalSec)
	case c.ChannelDepth <= 0:
		return fmt.Errorf("channel_depth must be positive, got %d", c.ChannelDepth)
	case c.ProcessedChannelDepth <= 0:
		return fmt.Errorf("processed_channel_depth must be positive, got %d", c.ProcessedChannelDepth)
	case c.MaxRestartAttempts < 0:
		return fmt.Errorf("max_restart_attempts must not be negative, got %d", c.MaxRestartAttempts)
	case c.BatchSize != nil && *c.BatchSize <= 0:
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	case c.BatchTimeoutUs != nil && *c.BatchTimeoutUs <= 0:
		return fmt.Errorf("batch_timeout_us must be positive, got %d", *c.BatchTimeoutUs)
	case c.RingBufferPollTimeoutUs != nil && *c.RingBufferPollTimeoutUs <= 0:
		return fmt.Errorf("ring_buffer_poll_timeout_us must be positive, got %d", *c.RingBufferPollTimeoutUs)
	}
	return nil
}

// EffectiveBatchSize prefers batch_size over event_batch_size.
func (c *Config) EffectiveBatchSize() int {
	if c.BatchSize != nil {
		return *c.BatchSize
	}
	return c.EventBatchSize
}

// EffectiveBatchTimeout prefers batch_timeout_us; otherwise the batch waits
// ten poll periods.
func (c *Config) EffectiveBatchTimeout() time.Duration {
	if c.BatchTimeoutUs != nil {
		return time.Duration(*c.BatchTimeoutUs) * time.Microsecond
	}
	return 10 * time.Duration(c.PollTimeoutMs) * time.Millisecond
}

// EffectivePollTimeout prefers ring_buffer_poll_timeout_us over poll_timeout_ms.
func (c *Config) EffectivePollTimeout() time.Duration {
	if c.RingBufferPollTimeoutUs != nil {
		return time.Duration(*c.RingBufferPollTimeoutUs) * time.Microsecond
	}
	return time.Duration(c.PollTimeoutMs) * time.Millisecond
}

func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSec) * time.Second
}
