package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/blendlab/internal/training"
)

var (
	trModelName  string
	trTransform  string
	trFeatureEng bool
	trSplit      float64
	trFolds      int
	trDevice     string
	trSaveModel  bool
	trFromFile   string
	trUpload     bool
	trWatch      bool
	trJSON       bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Submit and track training jobs on the remote training service",
	Example: `  blendlab train upload train.csv
  blendlab train submit train.csv --model-name blend-v1 --watch
  blendlab train status <job_id>
  blendlab train jobs`,
}

var trainSubmitCmd = &cobra.Command{
	Use:   "submit <dataset>",
	Short: "Start a training job on a dataset stored by the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := trainingConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		dataset := args[0]
		if trUpload {
			up, err := uploadFile(cmd.Context(), client, dataset)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s\n", up.Filename)
			dataset = up.Filename
		}

		tracker := newTracker(client)
		defer tracker.Close()
		id, err := tracker.Submit(cmd.Context(), tc, dataset)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Submitted training job %s (model %s)\n", id, tc.ModelName)
		if !trWatch {
			return nil
		}
		return watchJob(cmd, tracker, id)
	},
}

var trainStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Fetch the current status of a training job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		tracker := newTracker(client)
		if err := tracker.Attach(args[0]); err != nil {
			return err
		}
		job, err := tracker.Poll(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if trJSON {
			return writeJSON(cmd.OutOrStdout(), job)
		}
		printJob(cmd.OutOrStdout(), job)
		return nil
	},
}

var trainWatchCmd = &cobra.Command{
	Use:   "watch <job_id>",
	Short: "Poll a training job until it completes or fails",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		tracker := newTracker(client)
		defer tracker.Close()
		if err := tracker.Attach(args[0]); err != nil {
			return err
		}
		return watchJob(cmd, tracker, args[0])
	},
}

var trainJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List training jobs known to the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		jobs, err := client.Jobs(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if trJSON {
			return writeJSON(out, jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(out, "(no jobs)")
			return nil
		}
		for _, j := range jobs {
			fmt.Fprintf(out, "- %s: %s %.0f%% %s\n", j.JobID, colorStatus(j.Status), j.Progress*100, j.Message)
		}
		return nil
	},
}

var trainDatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List datasets stored by the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ds, err := client.Datasets(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if trJSON {
			return writeJSON(out, ds)
		}
		if len(ds) == 0 {
			fmt.Fprintln(out, "(no datasets)")
			return nil
		}
		for _, d := range ds {
			fmt.Fprintf(out, "- %s (%d columns, %d bytes, uploaded %s)\n", d.Filename, d.Columns, d.FileSize, d.UploadDate)
		}
		return nil
	},
}

var trainUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a local CSV dataset to the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		up, err := uploadFile(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if trJSON {
			return writeJSON(cmd.OutOrStdout(), up)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s", up.Filename)
		if len(up.Shape) == 2 {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d rows, %d columns)", up.Shape[0], up.Shape[1])
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

var trainModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List trained models stored by the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		models, err := client.Models(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if trJSON {
			return writeJSON(out, models)
		}
		if len(models) == 0 {
			fmt.Fprintln(out, "(no models)")
			return nil
		}
		for _, m := range models {
			fmt.Fprintf(out, "- %s (%s, %d bytes, created %s)\n", m.ModelName, m.FilePath, m.FileSize, m.CreationDate)
		}
		return nil
	},
}

var trainDeleteModelCmd = &cobra.Command{
	Use:   "delete-model <name>",
	Short: "Delete a trained model and its artifacts from the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		files, err := client.DeleteModel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted model %s (%d file(s))\n", args[0], len(files))
		return nil
	},
}

var trainHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the training service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		h, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		if trJSON {
			return writeJSON(cmd.OutOrStdout(), h)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: status %s, device %s, cuda %t, active jobs %d\n",
			client.BaseURL(), h.Status, h.Device, h.CUDAAvailable, h.ActiveTrainingJobs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.AddCommand(trainSubmitCmd, trainStatusCmd, trainWatchCmd, trainJobsCmd, trainDatasetsCmd,
		trainUploadCmd, trainModelsCmd, trainDeleteModelCmd, trainHealthCmd)
	trainCmd.PersistentFlags().BoolVar(&trJSON, "json", false, "emit JSON output where supported")

	f := trainSubmitCmd.Flags()
	f.StringVarP(&trModelName, "model-name", "m", "", "name of the model to train")
	f.StringVar(&trTransform, "transform", "", "target transformation: none | power | standard | minmax")
	f.BoolVar(&trFeatureEng, "feature-engineering", true, "enable feature engineering")
	f.Float64Var(&trSplit, "split", 0, "validation split fraction")
	f.IntVar(&trFolds, "folds", 0, "cross validation folds")
	f.StringVar(&trDevice, "device", "", "device preference: auto | cpu | cuda")
	f.BoolVar(&trSaveModel, "save-model", true, "persist the trained model on the service")
	f.StringVar(&trFromFile, "from", "", "YAML file with training settings (flags override it)")
	f.BoolVar(&trUpload, "upload", false, "treat <dataset> as a local file and upload it first")
	f.BoolVarP(&trWatch, "watch", "w", false, "watch the job until it finishes")
}

// trainingConfig layers service defaults, config, the --from file and flags.
func trainingConfig(cmd *cobra.Command) (training.Config, error) {
	tc := training.DefaultConfig()
	if cfg != nil {
		if cfg.TargetTransformation != "" {
			tc.TargetTransformation = cfg.TargetTransformation
		}
		tc.FeatureEngineering = cfg.FeatureEngineering
		if cfg.ValidationSplit > 0 {
			tc.ValidationSplit = cfg.ValidationSplit
		}
		if cfg.CrossValidationFolds > 0 {
			tc.CrossValidationFolds = cfg.CrossValidationFolds
		}
		if cfg.DevicePreference != "" {
			tc.DevicePreference = cfg.DevicePreference
		}
	}
	if trFromFile != "" {
		b, err := os.ReadFile(trFromFile)
		if err != nil {
			return tc, fmt.Errorf("read %s: %w", trFromFile, err)
		}
		if err := yaml.Unmarshal(b, &tc); err != nil {
			return tc, fmt.Errorf("parse %s: %w", trFromFile, err)
		}
	}
	f := cmd.Flags()
	if f.Changed("model-name") {
		tc.ModelName = trModelName
	}
	if f.Changed("transform") {
		tc.TargetTransformation = trTransform
	}
	if f.Changed("feature-engineering") {
		tc.FeatureEngineering = trFeatureEng
	}
	if f.Changed("split") {
		tc.ValidationSplit = trSplit
	}
	if f.Changed("folds") {
		tc.CrossValidationFolds = trFolds
	}
	if f.Changed("device") {
		tc.DevicePreference = trDevice
	}
	if f.Changed("save-model") {
		tc.SaveModel = trSaveModel
	}
	if err := tc.Validate(); err != nil {
		return tc, err
	}
	return tc, nil
}

func uploadFile(ctx context.Context, client *training.Client, path string) (*training.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return client.UploadDataset(ctx, filepath.Base(path), f)
}

// watchJob polls id with a progress bar until it is terminal or interrupted.
// An interrupt only stops watching; the job keeps running on the service.
func watchJob(cmd *cobra.Command, tracker *training.Tracker, id string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	errOut := cmd.ErrOrStderr()
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionSetDescription(id),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(30),
	)
	job, err := tracker.Wait(ctx, id, func(j *training.Job, err error) {
		if err != nil {
			logger.Warn().Err(err).Str("job_id", id).Msg("poll failed")
			return
		}
		_ = bar.Set(int(j.Progress*100 + 0.5))
		if j.Message != "" {
			bar.Describe(fmt.Sprintf("%s: %s", j.Status, j.Message))
		}
	})
	fmt.Fprintln(errOut)

	if job != nil {
		printJob(cmd.OutOrStdout(), job)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s; the job continues on the service\n", id)
			return nil
		}
		return err
	}
	if job != nil && job.Status == training.StatusFailed {
		return fmt.Errorf("training job %s failed: %s", id, job.Message)
	}
	return nil
}

func colorStatus(s training.Status) string {
	switch s {
	case training.StatusCompleted:
		return color.GreenString(string(s))
	case training.StatusFailed:
		return color.RedString(string(s))
	case training.StatusRunning:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func printJob(w io.Writer, j *training.Job) {
	fmt.Fprintf(w, "Job %s: %s (%.0f%%)\n", j.JobID, colorStatus(j.Status), j.Progress*100)
	if j.Message != "" {
		fmt.Fprintf(w, "  message: %s\n", j.Message)
	}
	if j.StartTime != "" {
		fmt.Fprintf(w, "  started: %s\n", j.StartTime)
	}
	if j.EndTime != "" {
		fmt.Fprintf(w, "  ended: %s\n", j.EndTime)
	}
	if j.ModelPath != "" {
		fmt.Fprintf(w, "  model: %s\n", j.ModelPath)
	}
	if len(j.Metrics) > 0 {
		keys := make([]string, 0, len(j.Metrics))
		for k := range j.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %.4f\n", k, j.Metrics[k])
		}
	}
}
