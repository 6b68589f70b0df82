package config_test

import (
	"os"
	"testing"

	"github.com/zen-systems/edgebridge/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
shm_path: /dev/shm/test.shm
models_dir: ./testmodels
ifr_dir: /tmp/test_ifr
create: true
poll_interval_seconds: 0.002
env: CartPole-v1
arbiter_url: "http://localhost:9999/decide"
telemetry:
  gpu_temp_c: 55.5
  rdma_qp_depth: 4
  numa_locality: 0.9
log_level: debug
log_format: json
`

func TestLoad_Valid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ShmPath != "/dev/shm/test.shm" {
		t.Errorf("ShmPath = %q", cfg.ShmPath)
	}
	if !cfg.Create {
		t.Error("Create = false, want true")
	}
	if cfg.PollInterval != 0.002 {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.Telemetry.GPUTempC != 55.5 {
		t.Errorf("Telemetry.GPUTempC = %v", cfg.Telemetry.GPUTempC)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("LogLevel/LogFormat = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
	if cfg.EnvName != "CartPole-v1" {
		t.Errorf("EnvName = %q, want CartPole-v1", cfg.EnvName)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeTemp(t, "log_level: verbose\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTelemetryFromEnv(t *testing.T) {
	t.Setenv("ZENEDGE_GPU_TEMP_C", "72.5")
	t.Setenv("ZENEDGE_RDMA_QP_DEPTH", "")
	t.Setenv("ZENEDGE_NUMA_LOCALITY", "not-a-number")

	base := config.TelemetryConfig{GPUTempC: 10, RDMAQPDepth: 20, NUMALocality: 30}
	out := config.TelemetryFromEnv(base)

	if out.GPUTempC != 72.5 {
		t.Errorf("GPUTempC = %v, want 72.5 (from env)", out.GPUTempC)
	}
	if out.RDMAQPDepth != 20 {
		t.Errorf("RDMAQPDepth = %v, want 20 (unset env keeps base)", out.RDMAQPDepth)
	}
	if out.NUMALocality != 30 {
		t.Errorf("NUMALocality = %v, want 30 (unparsable env keeps base)", out.NUMALocality)
	}
}
