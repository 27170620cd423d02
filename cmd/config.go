package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/blendlab/internal/config"
	"github.com/KaramelBytes/blendlab/internal/logging"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set BlendLab configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "service_url: %s\n", cfg.ServiceURL)
		fmt.Fprintf(out, "poll_interval_ms: %d\n", cfg.PollIntervalMs)
		fmt.Fprintf(out, "target_transformation: %s\n", cfg.TargetTransformation)
		fmt.Fprintf(out, "feature_engineering: %t\n", cfg.FeatureEngineering)
		fmt.Fprintf(out, "validation_split: %.3f\n", cfg.ValidationSplit)
		fmt.Fprintf(out, "cross_validation_folds: %d\n", cfg.CrossValidationFolds)
		fmt.Fprintf(out, "device_preference: %s\n", cfg.DevicePreference)
		fmt.Fprintf(out, "sample_rows: %d\n", cfg.SampleRows)
		fmt.Fprintf(out, "outlier_threshold: %.3f\n", cfg.OutlierThreshold)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Fprintf(out, "retry_base_delay_ms: %d\n", cfg.RetryBaseDelayMs)
		fmt.Fprintf(out, "retry_max_delay_ms: %d\n", cfg.RetryMaxDelayMs)
		fmt.Fprintf(out, "listen_address: %s\n", cfg.ListenAddress)
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := applyConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func applyConfigValue(c *cfgpkg.Global, key, val string) error {
	positiveInt := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return 0, fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		return i, nil
	}
	switch key {
	case "service_url":
		if !strings.HasPrefix(val, "http://") && !strings.HasPrefix(val, "https://") {
			return fmt.Errorf("invalid service_url: %s (must start with http:// or https://)", val)
		}
		c.ServiceURL = strings.TrimRight(val, "/")
	case "poll_interval_ms":
		i, err := positiveInt()
		if err != nil {
			return err
		}
		c.PollIntervalMs = i
	case "target_transformation":
		switch val {
		case "none", "power", "standard", "minmax":
			c.TargetTransformation = val
		default:
			return fmt.Errorf("invalid target_transformation: %s (use none, power, standard or minmax)", val)
		}
	case "feature_engineering":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for feature_engineering: %w", err)
		}
		c.FeatureEngineering = b
	case "validation_split":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 || f >= 1 {
			return fmt.Errorf("invalid float for validation_split: %v (must be between 0 and 1)", val)
		}
		c.ValidationSplit = f
	case "cross_validation_folds":
		i, err := strconv.Atoi(val)
		if err != nil || i < 2 {
			return fmt.Errorf("invalid int for cross_validation_folds: %v (must be at least 2)", val)
		}
		c.CrossValidationFolds = i
	case "device_preference":
		switch strings.ToLower(val) {
		case "auto", "cpu", "cuda":
			c.DevicePreference = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid device_preference: %s (use auto, cpu or cuda)", val)
		}
	case "sample_rows":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for sample_rows: %v", val)
		}
		c.SampleRows = i
	case "outlier_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid float for outlier_threshold: %v", val)
		}
		c.OutlierThreshold = f
	case "http_timeout_sec":
		i, err := positiveInt()
		if err != nil {
			return err
		}
		c.HTTPTimeoutSec = i
	case "retry_max_attempts":
		i, err := positiveInt()
		if err != nil {
			return err
		}
		c.RetryMaxAttempts = i
	case "retry_base_delay_ms":
		i, err := positiveInt()
		if err != nil {
			return err
		}
		c.RetryBaseDelayMs = i
	case "retry_max_delay_ms":
		i, err := positiveInt()
		if err != nil {
			return err
		}
		c.RetryMaxDelayMs = i
	case "listen_address":
		c.ListenAddress = val
	case "log_level":
		if _, err := logging.ParseLevel(val); err != nil {
			return err
		}
		c.LogLevel = strings.ToLower(val)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}
