package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/blendlab/internal/analysis"
	"github.com/KaramelBytes/blendlab/internal/table"
	"github.com/KaramelBytes/blendlab/internal/utils"
)

var (
	anaOutputPath   string
	anaJSON         bool
	anaSampleRows   int
	anaTopPairs     int
	anaOutlierThr   float64
	anaNoProjection bool
	anaQuiet        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <files...>",
	Short: "Analyze one or more blend CSV files and produce a Markdown report",
	Example: `  blendlab analyze train.csv
  blendlab analyze 'data/*.csv' --json -o reports.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		opt := analysisOptions(cmd)

		reports := make([]*analysis.Report, 0, len(files))
		for i, path := range files {
			if len(files) > 1 && !anaQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Processing %s...\n", i+1, len(files), filepath.Base(path))
			}
			ds, err := table.ParseFile(path)
			if err != nil {
				return err
			}
			rep := analysis.Analyze(filepath.Base(path), ds, opt)
			if rep.NotEnoughData && !anaQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s: not enough numeric data for correlations\n", filepath.Base(path))
			}
			reports = append(reports, rep)
		}

		var data []byte
		if anaJSON {
			b, err := utils.PrettyJSON(reports)
			if err != nil {
				return err
			}
			data = append(b, '\n')
		} else {
			parts := make([]string, len(reports))
			for i, rep := range reports {
				parts[i] = rep.Markdown()
			}
			data = []byte(strings.Join(parts, "\n"))
		}

		if anaOutputPath == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := utils.WriteOutput(anaOutputPath, data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if anaOutputPath != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote analysis to %s\n", anaOutputPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report ('-' for stdout)")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "emit JSON reports instead of Markdown")
	analyzeCmd.Flags().IntVar(&anaSampleRows, "sample-rows", 5, "number of sample rows to include")
	analyzeCmd.Flags().IntVar(&anaTopPairs, "top-pairs", 10, "correlation pairs to list (0 = all)")
	analyzeCmd.Flags().Float64Var(&anaOutlierThr, "outlier-threshold", analysis.DefaultOutlierThreshold, "robust |z| threshold for outliers (MAD-based)")
	analyzeCmd.Flags().BoolVar(&anaNoProjection, "no-projection", false, "omit the 2-D projection section")
	analyzeCmd.Flags().BoolVar(&anaQuiet, "quiet", false, "suppress progress and non-essential output")
}

// analysisOptions merges config defaults with any flags set on cmd.
func analysisOptions(cmd *cobra.Command) analysis.Options {
	opt := analysis.DefaultOptions()
	if cfg != nil {
		if cfg.SampleRows >= 0 {
			opt.SampleRows = cfg.SampleRows
		}
		if cfg.OutlierThreshold > 0 {
			opt.OutlierThreshold = cfg.OutlierThreshold
		}
	}
	f := cmd.Flags()
	if f.Changed("sample-rows") {
		opt.SampleRows = anaSampleRows
	}
	if f.Changed("outlier-threshold") && anaOutlierThr > 0 {
		opt.OutlierThreshold = anaOutlierThr
	}
	if f.Changed("top-pairs") && anaTopPairs >= 0 {
		opt.TopPairs = anaTopPairs
	}
	opt.Projection = !anaNoProjection
	return opt
}

// expandInputs resolves globs and literal paths, dropping duplicates.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}
