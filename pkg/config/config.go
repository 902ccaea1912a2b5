// Package config loads the fully-resolved BackplaneConfig the runtime
// orchestrator and sidecar transport are constructed from (spec §6:
// "Configuration consumed as a fully-resolved BackplaneConfig struct;
// loading is external"). Defaults come from the environment; an
// optional YAML file passed to Load overlays them.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// BackplaneConfig is the resolved runtime configuration consumed by
// pkg/runtime and pkg/sidecar.
type BackplaneConfig struct {
	LogLevel string `yaml:"log_level"`

	ChannelBufferSize int           `yaml:"channel_buffer_size"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	CancelGrace       time.Duration `yaml:"cancel_grace"`
	RunTimeout        time.Duration `yaml:"run_timeout"`

	StrictCapabilities bool `yaml:"strict_capabilities"`

	TelemetryEnabled  bool   `yaml:"telemetry_enabled"`
	TelemetryEndpoint string `yaml:"telemetry_endpoint"`

	RedisAddr string `yaml:"redis_addr"`
}

// Default returns the built-in defaults (spec §4.9/§5: buffer 128,
// handshake 30s, cancel grace 2s).
func Default() BackplaneConfig {
	return BackplaneConfig{
		LogLevel:          "info",
		ChannelBufferSize: 128,
		HandshakeTimeout:  30 * time.Second,
		CancelGrace:       2 * time.Second,
		TelemetryEndpoint: "localhost:4317",
	}
}

// Load starts from Default, overlays environment variables, then
// overlays a YAML file at path if it is non-empty and exists.
func Load(path string) (BackplaneConfig, error) {
	cfg := Default()
	applyEnv(&cfg)

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return BackplaneConfig{}, bperr.Wrap(bperr.CodeConfigInvalid, "config: read failed", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BackplaneConfig{}, bperr.Wrap(bperr.CodeConfigInvalid, "config: yaml parse failed", err)
	}
	return cfg, nil
}

func applyEnv(cfg *BackplaneConfig) {
	if v := os.Getenv("ABP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ABP_CHANNEL_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChannelBufferSize = n
		}
	}
	if v := os.Getenv("ABP_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HandshakeTimeout = d
		}
	}
	if v := os.Getenv("ABP_CANCEL_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CancelGrace = d
		}
	}
	if v := os.Getenv("ABP_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunTimeout = d
		}
	}
	if v := os.Getenv("ABP_STRICT_CAPABILITIES"); v != "" {
		cfg.StrictCapabilities = v == "true"
	}
	if v := os.Getenv("ABP_TELEMETRY_ENABLED"); v != "" {
		cfg.TelemetryEnabled = v == "true"
	}
	if v := os.Getenv("ABP_TELEMETRY_ENDPOINT"); v != "" {
		cfg.TelemetryEndpoint = v
	}
	if v := os.Getenv("ABP_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
}
