package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/blendlab/internal/config"
	"github.com/KaramelBytes/blendlab/internal/logging"
	"github.com/KaramelBytes/blendlab/internal/training"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Service/retry flags (override config if set)
	flagServiceURL       string
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "blendlab",
	Short: "BlendLab CLI: analyze fuel-blend datasets and drive remote model training",
	Long: `BlendLab ingests blend CSV files, reports correlations, projections and column
statistics, finds the reference blend closest to a set of target properties, and
submits and tracks training jobs on a remote training service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.blendlab/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagServiceURL, "service-url", "", "training service base URL (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	cfg = nil
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		logger, _ = logging.Setup("", debug)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("service-url") && flagServiceURL != "" {
		cfg.ServiceURL = flagServiceURL
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}

	l, err := logging.Setup(cfg.LogLevel, debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
	logger = l
}

var errNoConfig = errors.New("no configuration loaded")

// requireConfig returns the loaded configuration or errNoConfig.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		return nil, errNoConfig
	}
	return cfg, nil
}

func newClient() (*training.Client, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("service_url", c.ServiceURL).Msg("training client")
	return training.NewClient(c.ServiceURL, c.HTTPTimeout(), c.RetryMaxAttempts, c.RetryBaseDelay(), c.RetryMaxDelay()), nil
}

func newTracker(svc training.Service) *training.Tracker {
	opts := []training.Option{training.WithLogger(logger)}
	if cfg != nil && cfg.PollIntervalMs > 0 {
		opts = append(opts, training.WithInterval(cfg.PollInterval()))
	}
	return training.NewTracker(svc, opts...)
}
