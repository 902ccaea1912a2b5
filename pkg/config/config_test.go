package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/config"
)

func clearABPEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ABP_LOG_LEVEL", "ABP_CHANNEL_BUFFER_SIZE", "ABP_HANDSHAKE_TIMEOUT",
		"ABP_CANCEL_GRACE", "ABP_RUN_TIMEOUT", "ABP_STRICT_CAPABILITIES",
		"ABP_TELEMETRY_ENABLED", "ABP_TELEMETRY_ENDPOINT", "ABP_REDIS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearABPEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 128, cfg.ChannelBufferSize)
	assert.Equal(t, 30*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 2*time.Second, cfg.CancelGrace)
	assert.False(t, cfg.StrictCapabilities)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearABPEnv(t)
	t.Setenv("ABP_LOG_LEVEL", "debug")
	t.Setenv("ABP_CHANNEL_BUFFER_SIZE", "256")
	t.Setenv("ABP_STRICT_CAPABILITIES", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 256, cfg.ChannelBufferSize)
	assert.True(t, cfg.StrictCapabilities)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	clearABPEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "abp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nchannel_buffer_size: 64\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 64, cfg.ChannelBufferSize)
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	clearABPEnv(t)
	cfg, err := config.Load("/nonexistent/path/abp.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
