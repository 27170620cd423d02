package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/blendlab/internal/schema"
)

var (
	valKind string
	valJSON bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a dataset header against the prediction or training column layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var required []string
		switch strings.ToLower(valKind) {
		case "prediction", "":
			required = schema.PredictionColumns()
		case "training":
			required = schema.TrainingColumns()
		default:
			return fmt.Errorf("unsupported --kind: %s (use prediction or training)", valKind)
		}
		header, err := readHeader(args[0])
		if err != nil {
			return err
		}
		res := schema.Check(header, required)
		out := cmd.OutOrStdout()
		if valJSON {
			if err := writeJSON(out, res); err != nil {
				return err
			}
		} else {
			printSchemaResult(out, res)
		}
		if !res.Valid() {
			return fmt.Errorf("%d required column(s) missing", len(res.Missing))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&valKind, "kind", "prediction", "column layout: prediction | training")
	validateCmd.Flags().BoolVar(&valJSON, "json", false, "emit the result as JSON")
}

// readHeader returns the fields of the first non-blank line of path.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		if h := schema.SplitHeader(sc.Text()); len(h) > 0 {
			return h, nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return nil, fmt.Errorf("%s: no header line", path)
}

func printSchemaResult(w io.Writer, res schema.Result) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(w, "Matched %d/%d columns (%.1f%%)\n", len(res.Matched), len(res.Matched)+len(res.Missing), res.Percent)
	if res.Valid() {
		fmt.Fprintln(w, ok("✓ all required columns present"))
	}
	for _, m := range res.Missing {
		if s := res.Suggestions[m]; len(s) > 0 {
			fmt.Fprintf(w, "  %s %s (did you mean %s?)\n", bad("missing"), m, strings.Join(s, ", "))
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", bad("missing"), m)
	}
	if len(res.Extra) > 0 {
		fmt.Fprintf(w, "Extra columns: %s\n", strings.Join(res.Extra, ", "))
	}
}
