package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/config/config.json", []byte(content), 0644))
	return fs
}

func TestLoadConfig(t *testing.T) {
	fs := writeConfig(t, `{
		"ring_buffer_size": 4194304,
		"event_batch_size": 64,
		"poll_timeout_ms": 2,
		"max_events_per_sec": 5000,
		"enable_backpressure": false,
		"auto_recovery": false,
		"metrics_interval_sec": 30,
		"batch_timeout_us": 50,
		"shutdown_timeout": "2s",
		"ring_buffer_pins": ["/sys/fs/bpf/rb", "/sys/fs/bpf/syscall_events"],
		"exporters": {"stdout_exporter": true}
	}`)

	cfg, err := LoadConfigFs(fs, "/etc/config")
	require.NoError(t, err)

	assert.Equal(t, 4194304, cfg.RingBufferSize)
	assert.Equal(t, 64, cfg.EventBatchSize)
	assert.Equal(t, 2, cfg.PollTimeoutMs)
	assert.Equal(t, 5000, cfg.MaxEventsPerSec)
	assert.False(t, cfg.EnableBackpressure)
	assert.False(t, cfg.AutoRecovery)
	assert.Equal(t, 30, cfg.MetricsIntervalSec)
	assert.Nil(t, cfg.BatchSize)
	require.NotNil(t, cfg.BatchTimeoutUs)
	assert.Equal(t, 50, *cfg.BatchTimeoutUs)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"/sys/fs/bpf/rb", "/sys/fs/bpf/syscall_events"}, cfg.RingBufferPins)
	require.NotNil(t, cfg.Exporters.StdoutExporter)
	assert.True(t, *cfg.Exporters.StdoutExporter)

	// defaults for keys absent from the file
	assert.Equal(t, 1000, cfg.ChannelDepth)
	assert.Equal(t, 1000, cfg.ProcessedChannelDepth)
	assert.Equal(t, 5, cfg.MaxRestartAttempts)
	assert.Equal(t, 8080, cfg.MetricsPort)
}

func TestLoadConfigDefaults(t *testing.T) {
	fs := writeConfig(t, `{}`)

	cfg, err := LoadConfigFs(fs, "/etc/config")
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.RingBufferSize, cfg.RingBufferSize)
	assert.Equal(t, d.EventBatchSize, cfg.EventBatchSize)
	assert.Equal(t, d.MaxEventsPerSec, cfg.MaxEventsPerSec)
	assert.True(t, cfg.EnableBackpressure)
	assert.True(t, cfg.AutoRecovery)
	assert.Equal(t, d.ShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfigFs(afero.NewMemMapFs(), "/etc/config")
	assert.Error(t, err)
}

func TestLoadConfigInvalid(t *testing.T) {
	fs := writeConfig(t, `{"max_events_per_sec": 0}`)

	_, err := LoadConfigFs(fs, "/etc/config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_events_per_sec")
}

func TestEffectiveValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 256, cfg.EffectiveBatchSize())
	assert.Equal(t, 10*time.Millisecond, cfg.EffectiveBatchTimeout())
	assert.Equal(t, time.Millisecond, cfg.EffectivePollTimeout())
	assert.Equal(t, 10*time.Second, cfg.MetricsInterval())

	batchSize, batchTimeout, pollTimeout := 32, 50, 5
	cfg.BatchSize = &batchSize
	cfg.BatchTimeoutUs = &batchTimeout
	cfg.RingBufferPollTimeoutUs = &pollTimeout
	assert.Equal(t, 32, cfg.EffectiveBatchSize())
	assert.Equal(t, 50*time.Microsecond, cfg.EffectiveBatchTimeout())
	assert.Equal(t, 5*time.Microsecond, cfg.EffectivePollTimeout())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	zero := 0
	cfg.BatchSize = &zero
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ChannelDepth = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxRestartAttempts = -1
	assert.Error(t, cfg.Validate())
}
