package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Version is reported by the health and info endpoints.
const Version = "2.2.0"

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are filled from Default before use.
type Config struct {
	Addr          string  `json:"addr" yaml:"addr" toml:"addr" env:"VLMD_ADDR"`
	ModelDir      string  `json:"model_dir" yaml:"model_dir" toml:"model_dir" env:"VLMD_MODEL_DIR"`
	ModelName     string  `json:"model_name" yaml:"model_name" toml:"model_name" env:"VLMD_MODEL_NAME"`
	MaxConcurrent int     `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent" env:"VLMD_MAX_CONCURRENT"`
	DeviceID      int     `json:"device_id" yaml:"device_id" toml:"device_id" env:"VLMD_DEVID"`
	VideoRatio    float64 `json:"video_ratio" yaml:"video_ratio" toml:"video_ratio" env:"VLMD_VIDEO_RATIO"`

	// Engine selects the inference backend: "runner" (per-slot subprocess)
	// or "llama" (in-process, requires the llama build tag).
	Engine    string `json:"engine" yaml:"engine" toml:"engine" env:"VLMD_ENGINE"`
	RunnerBin string `json:"runner_bin" yaml:"runner_bin" toml:"runner_bin" env:"VLMD_RUNNER_BIN"`

	// AcquireTimeoutSec bounds the wait for a free slot before 503.
	AcquireTimeoutSec int `json:"acquire_timeout_sec" yaml:"acquire_timeout_sec" toml:"acquire_timeout_sec" env:"VLMD_ACQUIRE_TIMEOUT_SEC"`
	// FetchTimeoutSec bounds a single remote media download.
	FetchTimeoutSec int `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec" toml:"fetch_timeout_sec" env:"VLMD_FETCH_TIMEOUT_SEC"`
	MaxBodyMB       int `json:"max_body_mb" yaml:"max_body_mb" toml:"max_body_mb" env:"VLMD_MAX_BODY_MB"`

	// APIKey empty disables authentication entirely.
	APIKey       string `json:"api_key" yaml:"api_key" toml:"api_key" env:"VLMD_API_KEY"`
	APIKeyHeader string `json:"api_key_header" yaml:"api_key_header" toml:"api_key_header" env:"VLMD_API_KEY_HEADER"`
	APIKeyPrefix string `json:"api_key_prefix" yaml:"api_key_prefix" toml:"api_key_prefix" env:"VLMD_API_KEY_PREFIX"`

	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level" env:"VLMD_LOG_LEVEL"`
	CORSEnabled bool   `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" env:"VLMD_CORS_ENABLED"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:              ":8899",
		ModelDir:          "./models/qwen3vl_2b",
		ModelName:         "qwen3-vl-instruct",
		MaxConcurrent:     2,
		VideoRatio:        0.5,
		Engine:            "runner",
		RunnerBin:         "vlm-runner",
		AcquireTimeoutSec: 30,
		FetchTimeoutSec:   15,
		MaxBodyMB:         32,
		APIKeyHeader:      "Authorization",
		APIKeyPrefix:      "Bearer",
		LogLevel:          "info",
	}
}

// Overlay copies the non-zero fields of o into c. Used to layer a config file
// over the defaults before env and flags are applied.
func (c *Config) Overlay(o Config) {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.ModelDir != "" {
		c.ModelDir = o.ModelDir
	}
	if o.ModelName != "" {
		c.ModelName = o.ModelName
	}
	if o.MaxConcurrent != 0 {
		c.MaxConcurrent = o.MaxConcurrent
	}
	if o.DeviceID != 0 {
		c.DeviceID = o.DeviceID
	}
	if o.VideoRatio != 0 {
		c.VideoRatio = o.VideoRatio
	}
	if o.Engine != "" {
		c.Engine = o.Engine
	}
	if o.RunnerBin != "" {
		c.RunnerBin = o.RunnerBin
	}
	if o.AcquireTimeoutSec != 0 {
		c.AcquireTimeoutSec = o.AcquireTimeoutSec
	}
	if o.FetchTimeoutSec != 0 {
		c.FetchTimeoutSec = o.FetchTimeoutSec
	}
	if o.MaxBodyMB != 0 {
		c.MaxBodyMB = o.MaxBodyMB
	}
	if o.APIKey != "" {
		c.APIKey = o.APIKey
	}
	if o.APIKeyHeader != "" {
		c.APIKeyHeader = o.APIKeyHeader
	}
	if o.APIKeyPrefix != "" {
		c.APIKeyPrefix = o.APIKeyPrefix
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.CORSEnabled {
		c.CORSEnabled = true
	}
}

// ApplyEnv overrides fields from VLMD_* environment variables.
func (c *Config) ApplyEnv() error {
	return env.Parse(c)
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.VideoRatio <= 0 || c.VideoRatio > 1 {
		return fmt.Errorf("video_ratio must be in (0,1], got %g", c.VideoRatio)
	}
	if c.AcquireTimeoutSec < 1 {
		return fmt.Errorf("acquire_timeout_sec must be >= 1, got %d", c.AcquireTimeoutSec)
	}
	switch c.Engine {
	case "runner", "llama":
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	return nil
}

// AuthEnabled reports whether API-key auth is enforced.
func (c Config) AuthEnabled() bool { return c.APIKey != "" }

func (c Config) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutSec) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c Config) MaxBodyBytes() int64 { return int64(c.MaxBodyMB) << 20 }
