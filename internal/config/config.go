// Package config provides YAML configuration loading for the bridge
// and gym-agent entrypoints, layered under CLI flags and the
// ZENEDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for either
// entrypoint. Every field is optional; zero values fall back to the
// flag defaults in cmd/.
type Config struct {
	ShmPath      string  `yaml:"shm_path"`
	ModelsDir    string  `yaml:"models_dir"`
	IFRDir       string  `yaml:"ifr_dir"`
	Create       bool    `yaml:"create"`
	PollInterval float64 `yaml:"poll_interval_seconds"`

	EnvName string `yaml:"env"`
	EnvSeed int64  `yaml:"env_seed"`

	ArbiterURL        string `yaml:"arbiter_url"`
	ArbiterProfileEnv string `yaml:"arbiter_profile_env"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TelemetryConfig holds the synthetic telemetry stub values
// TELEMETRY_POLL reports, overridable through the ZENEDGE_GPU_TEMP_C,
// ZENEDGE_RDMA_QP_DEPTH and ZENEDGE_NUMA_LOCALITY environment
// variables.
type TelemetryConfig struct {
	GPUTempC     float32 `yaml:"gpu_temp_c"`
	RDMAQPDepth  float32 `yaml:"rdma_qp_depth"`
	NUMALocality float32 `yaml:"numa_locality"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// Load reads the YAML file at path, if non-empty, and applies
// defaults. An empty path returns a zero-valued Config with defaults
// applied — callers are expected to layer CLI flags on top.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.EnvName == "" {
		cfg.EnvName = "CartPole-v1"
	}
}

func validate(cfg *Config) error {
	var errs []error
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validLogFormats[cfg.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format %q must be one of: text, json", cfg.LogFormat))
	}
	if cfg.PollInterval < 0 {
		errs = append(errs, errors.New("poll_interval_seconds must not be negative"))
	}
	return errors.Join(errs...)
}

// TelemetryFromEnv reads ZENEDGE_GPU_TEMP_C, ZENEDGE_RDMA_QP_DEPTH,
// and ZENEDGE_NUMA_LOCALITY, overriding any field present in base
// that has a corresponding environment variable set. Unparsable
// values are ignored, leaving base's value in place.
func TelemetryFromEnv(base TelemetryConfig) TelemetryConfig {
	out := base
	if v, ok := parseFloatEnv("ZENEDGE_GPU_TEMP_C"); ok {
		out.GPUTempC = v
	}
	if v, ok := parseFloatEnv("ZENEDGE_RDMA_QP_DEPTH"); ok {
		out.RDMAQPDepth = v
	}
	if v, ok := parseFloatEnv("ZENEDGE_NUMA_LOCALITY"); ok {
		out.NUMALocality = v
	}
	return out
}

func parseFloatEnv(name string) (float32, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}
