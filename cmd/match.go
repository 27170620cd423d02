package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/blendlab/internal/match"
	"github.com/KaramelBytes/blendlab/internal/table"
)

var (
	matchTargets []string
	matchJSON    bool
)

var matchCmd = &cobra.Command{
	Use:   "match <reference.csv>",
	Short: "Find the reference blend closest to the target BlendProperty values",
	Example: `  blendlab match reference.csv --target 1=10 --target 3=0.5
  blendlab match reference.csv -t 2=4.2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(matchTargets) == 0 {
			return fmt.Errorf("at least one --target index=value is required")
		}
		targets, err := match.ParseTargets(matchTargets)
		if err != nil {
			return err
		}
		ref, err := table.ParseFile(args[0])
		if err != nil {
			return err
		}
		res, ok := match.FindBestMatch(ref, targets)
		if !ok {
			return fmt.Errorf("no row in %s carries the requested BlendProperty columns", args[0])
		}
		out := cmd.OutOrStdout()
		if matchJSON {
			return writeJSON(out, res)
		}

		label := fmt.Sprintf("row %d", res.Index+1)
		if id := ref.IDColumn(); id != "" {
			if c, ok := res.Row.Get(id); ok {
				label = fmt.Sprintf("%s (%s %s)", label, id, c.String())
			}
		}
		bold := color.New(color.Bold).SprintFunc()
		fmt.Fprintf(out, "Best match: %s, score %.6g\n", bold(label), res.Score)
		for _, i := range targets.Indices() {
			col := match.PropertyColumn(i)
			c, ok := res.Row.Get(col)
			actual := "n/a"
			if ok {
				actual = c.String()
			}
			fmt.Fprintf(out, "  %s: target %s, actual %s\n", col, table.Number(targets[i]).String(), actual)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringSliceVarP(&matchTargets, "target", "t", nil, "target property as index=value (repeatable)")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "emit the match as JSON")
}
