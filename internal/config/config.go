package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/blendlab/internal/utils"
)

// Global configuration structure.
type Global struct {
	// Training service
	ServiceURL     string `mapstructure:"service_url" yaml:"service_url"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`

	// Training defaults applied to `train submit`
	TargetTransformation string  `mapstructure:"target_transformation" yaml:"target_transformation"`
	FeatureEngineering   bool    `mapstructure:"feature_engineering" yaml:"feature_engineering"`
	ValidationSplit      float64 `mapstructure:"validation_split" yaml:"validation_split"`
	CrossValidationFolds int     `mapstructure:"cross_validation_folds" yaml:"cross_validation_folds"`
	DevicePreference     string  `mapstructure:"device_preference" yaml:"device_preference"`

	// Analysis
	SampleRows       int     `mapstructure:"sample_rows" yaml:"sample_rows"`
	OutlierThreshold float64 `mapstructure:"outlier_threshold" yaml:"outlier_threshold"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// API server and logging
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
}

// PollInterval returns the tracker polling period.
func (c *Global) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// HTTPTimeout returns the training client timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// RetryBaseDelay returns the initial retry backoff.
func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the retry backoff cap.
func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// Dir returns ~/.blendlab.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".blendlab"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.blendlab/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("BLENDLAB")
	v.AutomaticEnv()

	v.SetDefault("service_url", "http://127.0.0.1:8000")
	v.SetDefault("poll_interval_ms", 2000)
	v.SetDefault("target_transformation", "power")
	v.SetDefault("feature_engineering", true)
	v.SetDefault("validation_split", 0.2)
	v.SetDefault("cross_validation_folds", 5)
	v.SetDefault("device_preference", "auto")
	v.SetDefault("sample_rows", 5)
	v.SetDefault("outlier_threshold", 3.5)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("listen_address", "127.0.0.1:8080")
	v.SetDefault("log_level", "info")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read; an explicit file that exists must parse
	if err := v.ReadInConfig(); err != nil && cfgFile != "" && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
