package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/blendlab/internal/analysis"
	"github.com/KaramelBytes/blendlab/internal/table"
	"github.com/KaramelBytes/blendlab/internal/utils"
)

var (
	corrJSON bool
	corrTop  int
	projJSON bool
)

var correlateCmd = &cobra.Command{
	Use:   "correlate <file>",
	Short: "Print the Pearson correlation matrix of the numeric columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := table.ParseFile(args[0])
		if err != nil {
			return err
		}
		m, err := analysis.Correlation(ds)
		if err != nil {
			return notEnoughData(err)
		}
		out := cmd.OutOrStdout()
		if corrJSON {
			return writeJSON(out, m)
		}
		if corrTop > 0 {
			for _, p := range m.TopPairs(corrTop) {
				fmt.Fprintf(out, "%s ~ %s: r=%.3f\n", p.A, p.B, p.R)
			}
			return nil
		}
		fmt.Fprintf(out, "| |%s|\n", strings.Join(m.Columns, "|"))
		fmt.Fprintf(out, "|---|%s\n", strings.Repeat("---:|", len(m.Columns)))
		for i, c := range m.Columns {
			vals := make([]string, len(m.Columns))
			for j := range m.Columns {
				vals[j] = fmt.Sprintf("%.3f", m.Values[i][j])
			}
			fmt.Fprintf(out, "|%s|%s|\n", c, strings.Join(vals, "|"))
		}
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project <file>",
	Short: "Project every row onto two axes and print x,y,label as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := table.ParseFile(args[0])
		if err != nil {
			return err
		}
		p, err := analysis.Project2D(ds)
		if err != nil {
			return notEnoughData(err)
		}
		out := cmd.OutOrStdout()
		if projJSON {
			return writeJSON(out, p)
		}
		points := make([][]table.Cell, len(p.Points))
		for i, pt := range p.Points {
			points[i] = []table.Cell{table.Number(pt.X), table.Number(pt.Y), table.Text(pt.Label)}
		}
		return table.New([]string{"x", "y", "label"}, points).WriteCSV(out)
	},
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(projectCmd)
	correlateCmd.Flags().BoolVar(&corrJSON, "json", false, "emit the matrix as JSON")
	correlateCmd.Flags().IntVar(&corrTop, "top", 0, "list only the N strongest pairs")
	projectCmd.Flags().BoolVar(&projJSON, "json", false, "emit the projection as JSON")
}

func notEnoughData(err error) error {
	if errors.Is(err, analysis.ErrInsufficientColumns) {
		return fmt.Errorf("not enough data: %w", err)
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
