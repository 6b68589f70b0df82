// Command zenedge-bridge is the host-side entrypoint: it maps the
// shared memory region, wires the heap/model/env/arbiter substrate,
// and runs the dispatch loop until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	edgebridge "github.com/zen-systems/edgebridge"
	"github.com/zen-systems/edgebridge/internal/config"
	"github.com/zen-systems/edgebridge/internal/constants"
	"github.com/zen-systems/edgebridge/internal/handlers"
	"github.com/zen-systems/edgebridge/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		shmPath      string
		modelsDir    string
		ifrDir       string
		create       bool
		pollInterval float64
		arbiterURL   string
		configFile   string
		logLevel     string
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "zenedge-bridge",
		Short: "Host-side shared-memory bridge to the zenedge kernel peer",
		Long: `zenedge-bridge maps a fixed 1 MiB shared memory region, verifies the
command/response rings and doorbell, and runs a polling dispatch loop
that answers PING, PRINT, RUN_MODEL, IFR_PERSIST, TELEMETRY_POLL,
ENV_RESET/ENV_STEP, and ARB_EPISODE commands from an external peer.`,
	}

	cmd.Flags().StringVar(&shmPath, "shm", "", "backing file path (default /dev/shm/zenedge.shm)")
	cmd.Flags().StringVar(&modelsDir, "models", "", "model weights directory (default ./models)")
	cmd.Flags().StringVar(&ifrDir, "ifr-dir", "", "IFR persistence directory (default /tmp/zenedge_ifr)")
	cmd.Flags().BoolVar(&create, "create", false, "create the backing file if missing")
	cmd.Flags().Float64Var(&pollInterval, "poll-interval", 0, "poll interval in seconds (default 0.001)")
	cmd.Flags().StringVar(&arbiterURL, "arbiter-url", "", "arbiter HTTP endpoint (overrides ZENEDGE_ARBITER_URL)")
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (default info)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "text|json (default text)")

	exitCode := 0
	cmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cfg, shmPath, modelsDir, ifrDir, arbiterURL, logLevel, logFormat, pollInterval, create)

		logger := logging.NewLogger(&logging.Config{
			Level:  parseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
			Output: os.Stderr,
		})
		logging.SetDefault(logger)

		params := edgebridge.DefaultParams()
		if cfg.ShmPath != "" {
			params.ShmPath = cfg.ShmPath
		}
		if cfg.ModelsDir != "" {
			params.ModelsDir = cfg.ModelsDir
		}
		if cfg.IFRDir != "" {
			params.IFRDir = cfg.IFRDir
		}
		params.Create = cfg.Create
		if cfg.PollInterval > 0 {
			params.PollInterval = time.Duration(cfg.PollInterval * float64(time.Second))
		}
		params.ArbiterURL = cfg.ArbiterURL
		params.ArbiterProfileEnv = cfg.ArbiterProfileEnv
		params.EnvSeed = cfg.EnvSeed
		telemetry := config.TelemetryFromEnv(cfg.Telemetry)
		params.Telemetry = handlers.TelemetryConfig{
			GPUTempC:     telemetry.GPUTempC,
			RDMAQPDepth:  telemetry.RDMAQPDepth,
			NUMALocality: telemetry.NUMALocality,
		}

		if !params.Create {
			if err := requireBackingFile(params.ShmPath); err != nil {
				logger.Errorf("bridge: %v", err)
				exitCode = 1
				return nil
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		bridge, err := edgebridge.Open(params, &edgebridge.Options{Context: ctx})
		if err != nil {
			logger.Errorf("bridge: failed to open shared region: %v", err)
			exitCode = 2
			return nil
		}
		defer bridge.Close()

		logger.Infof("bridge: mapped %s (%d bytes), polling every %s", params.ShmPath, constants.RegionSize, params.PollInterval)

		go installStackDumpHandler(logger)

		done := make(chan struct{})
		go func() {
			bridge.Serve()
			close(done)
		}()

		waitForShutdown(logger, cancel, done)
		return nil
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

func applyFlagOverrides(cfg *config.Config, shmPath, modelsDir, ifrDir, arbiterURL, logLevel, logFormat string, pollInterval float64, create bool) {
	if shmPath != "" {
		cfg.ShmPath = shmPath
	}
	if cfg.ShmPath == "" {
		cfg.ShmPath = constants.DefaultShmPath
	}
	if modelsDir != "" {
		cfg.ModelsDir = modelsDir
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = constants.DefaultModelsDir
	}
	if ifrDir != "" {
		cfg.IFRDir = ifrDir
	}
	if cfg.IFRDir == "" {
		cfg.IFRDir = constants.DefaultIFRDir
	}
	if arbiterURL != "" {
		cfg.ArbiterURL = arbiterURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if pollInterval > 0 {
		cfg.PollInterval = pollInterval
	}
	if create {
		cfg.Create = true
	}
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

// requireBackingFile makes a missing backing file without --create a
// clean exit-code-1 failure instead of an mmap error.
func requireBackingFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("backing file %s does not exist (pass --create to create it): %w", path, err)
	}
	if info.Size() != constants.RegionSize {
		return fmt.Errorf("backing file %s is %d bytes, want %d", path, info.Size(), constants.RegionSize)
	}
	return nil
}

// installStackDumpHandler dumps every goroutine's stack to stderr and
// to a file named by the process id on SIGUSR1, a debugging aid the dispatch loop
// otherwise gives no visibility into since it never returns on its
// own.
func installStackDumpHandler(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])

		filename := fmt.Sprintf("zenedge-bridge-stacks-%d.txt", os.Getpid())
		if f, err := os.Create(filename); err == nil {
			f.Write(buf[:n])
			pprof.Lookup("goroutine").WriteTo(f, 2)
			f.Close()
			logger.Infof("bridge: stack dump written to %s", filename)
		}
	}
}

func waitForShutdown(logger *logging.Logger, cancel context.CancelFunc, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Infof("bridge: received shutdown signal")
		cancel()
	case <-done:
		return
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logger.Warnf("bridge: dispatch loop did not stop within timeout, exiting anyway")
	}
}
