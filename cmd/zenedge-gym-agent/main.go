// Command zenedge-gym-agent is a body-side variant of the bridge: it
// always creates the backing file, runs the same dispatch loop, and
// additionally accepts --env to name the environment driving
// ENV_RESET/ENV_STEP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	edgebridge "github.com/zen-systems/edgebridge"
	"github.com/zen-systems/edgebridge/internal/config"
	"github.com/zen-systems/edgebridge/internal/handlers"
	"github.com/zen-systems/edgebridge/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		envName      string
		shmPath      string
		modelsDir    string
		ifrDir       string
		pollInterval float64
		configFile   string
		logLevel     string
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "zenedge-gym-agent",
		Short: "Gym-backed body process: drives CartPole-v1 through the shared memory bridge",
	}

	cmd.Flags().StringVar(&envName, "env", "", "gym environment name (default CartPole-v1)")
	cmd.Flags().StringVar(&shmPath, "shm", "", "backing file path (default /dev/shm/zenedge.shm)")
	cmd.Flags().StringVar(&modelsDir, "models", "", "model weights directory (default ./models)")
	cmd.Flags().StringVar(&ifrDir, "ifr-dir", "", "IFR persistence directory (default /tmp/zenedge_ifr)")
	cmd.Flags().Float64Var(&pollInterval, "poll-interval", 0, "poll interval in seconds (default 0.001)")
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (default info)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "text|json (default text)")

	cmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if envName != "" {
			cfg.EnvName = envName
		}
		if shmPath != "" {
			cfg.ShmPath = shmPath
		}
		if modelsDir != "" {
			cfg.ModelsDir = modelsDir
		}
		if ifrDir != "" {
			cfg.IFRDir = ifrDir
		}
		if pollInterval > 0 {
			cfg.PollInterval = pollInterval
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}

		logger := logging.NewLogger(&logging.Config{
			Level:  parseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
			Output: os.Stderr,
		})
		logging.SetDefault(logger)

		if cfg.EnvName != "CartPole-v1" {
			logger.Warnf("gym-agent: %q requested but only CartPole-v1 physics is implemented, proceeding with CartPole-v1", cfg.EnvName)
		}

		params := edgebridge.DefaultParams()
		params.Create = true
		if cfg.ShmPath != "" {
			params.ShmPath = cfg.ShmPath
		}
		if cfg.ModelsDir != "" {
			params.ModelsDir = cfg.ModelsDir
		}
		if cfg.IFRDir != "" {
			params.IFRDir = cfg.IFRDir
		}
		if cfg.PollInterval > 0 {
			params.PollInterval = time.Duration(cfg.PollInterval * float64(time.Second))
		}
		telemetry := config.TelemetryFromEnv(cfg.Telemetry)
		params.Telemetry = handlers.TelemetryConfig{
			GPUTempC:     telemetry.GPUTempC,
			RDMAQPDepth:  telemetry.RDMAQPDepth,
			NUMALocality: telemetry.NUMALocality,
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		bridge, err := edgebridge.Open(params, &edgebridge.Options{Context: ctx})
		if err != nil {
			logger.Errorf("gym-agent: failed to open shared region: %v", err)
			return err
		}
		defer bridge.Close()

		logger.Infof("gym-agent: bridge running at %s, environment %s", params.ShmPath, cfg.EnvName)

		done := make(chan struct{})
		go func() {
			bridge.Serve()
			close(done)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Infof("gym-agent: received shutdown signal")
			cancel()
		case <-done:
			return nil
		}

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			logger.Warnf("gym-agent: dispatch loop did not stop within timeout, exiting anyway")
		}
		return nil
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func parseLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
