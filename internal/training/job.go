// Package training submits model-training jobs to the remote training service and
// tracks them until they finish.
package training

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a remote training job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job mirrors the service's training status payload. Times are kept as the
// service sends them since it omits the zone offset.
type Job struct {
	JobID     string             `json:"job_id"`
	Status    Status             `json:"status"`
	Progress  float64            `json:"progress"`
	Message   string             `json:"message"`
	StartTime string             `json:"start_time,omitempty"`
	EndTime   string             `json:"end_time,omitempty"`
	ModelPath string             `json:"model_path,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// clone returns a deep copy so callers never share the metrics map.
func (j Job) clone() Job {
	if j.Metrics != nil {
		m := make(map[string]float64, len(j.Metrics))
		for k, v := range j.Metrics {
			m[k] = v
		}
		j.Metrics = m
	}
	return j
}

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid training config")

var (
	transformations = []string{"none", "power", "standard", "minmax"}
	devices         = []string{"auto", "cpu", "cuda"}
)

// Config is the training request body.
type Config struct {
	ModelName            string  `json:"model_name" yaml:"model_name"`
	TargetTransformation string  `json:"target_transformation" yaml:"target_transformation"`
	FeatureEngineering   bool    `json:"feature_engineering" yaml:"feature_engineering"`
	ValidationSplit      float64 `json:"validation_split" yaml:"validation_split"`
	CrossValidationFolds int     `json:"cross_validation_folds" yaml:"cross_validation_folds"`
	DevicePreference     string  `json:"device_preference" yaml:"device_preference"`
	SaveModel            bool    `json:"save_model" yaml:"save_model"`
}

// DefaultConfig returns the service defaults with an empty model name.
func DefaultConfig() Config {
	return Config{
		TargetTransformation: "power",
		FeatureEngineering:   true,
		ValidationSplit:      0.2,
		CrossValidationFolds: 5,
		DevicePreference:     "auto",
		SaveModel:            true,
	}
}

// Validate checks the fields locally before anything is sent.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidConfig)
	}
	if !oneOf(c.TargetTransformation, transformations) {
		return fmt.Errorf("%w: target transformation %q (want one of %s)", ErrInvalidConfig, c.TargetTransformation, strings.Join(transformations, ", "))
	}
	if !(c.ValidationSplit > 0 && c.ValidationSplit < 1) {
		return fmt.Errorf("%w: validation split %.3g must be between 0 and 1", ErrInvalidConfig, c.ValidationSplit)
	}
	if c.CrossValidationFolds < 2 {
		return fmt.Errorf("%w: cross validation folds must be at least 2, got %d", ErrInvalidConfig, c.CrossValidationFolds)
	}
	if !oneOf(c.DevicePreference, devices) {
		return fmt.Errorf("%w: device preference %q (want one of %s)", ErrInvalidConfig, c.DevicePreference, strings.Join(devices, ", "))
	}
	return nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Dataset describes a dataset file stored by the service.
type Dataset struct {
	Filename      string   `json:"filename"`
	UploadDate    string   `json:"upload_date"`
	FileSize      int64    `json:"file_size"`
	Columns       int      `json:"columns"`
	SampleColumns []string `json:"sample_columns"`
}

// Model describes a trained model stored by the service.
type Model struct {
	ModelName    string             `json:"model_name"`
	FilePath     string             `json:"file_path"`
	CreationDate string             `json:"creation_date"`
	FileSize     int64              `json:"file_size"`
	Config       map[string]any     `json:"config,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Upload is the service response to a dataset upload.
type Upload struct {
	Message  string   `json:"message"`
	Filename string   `json:"filename"`
	Shape    []int    `json:"shape,omitempty"`
	Columns  []string `json:"columns,omitempty"`
}

// Health is the service health payload.
type Health struct {
	Status             string `json:"status"`
	Device             string `json:"device,omitempty"`
	CUDAAvailable      bool   `json:"cuda_available"`
	ActiveTrainingJobs int    `json:"active_training_jobs"`
}
