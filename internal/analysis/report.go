package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/blendlab/internal/table"
)

// Options controls report generation.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopPairs limits the correlation pairs listed; 0 lists all.
	TopPairs int
	// OutlierThreshold is the robust |z| cutoff; 0 selects the default.
	OutlierThreshold float64
	// Projection includes the 2-D projection in the report.
	Projection bool
}

// DefaultOptions returns reasonable defaults for dataset analysis.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		TopPairs:         10,
		OutlierThreshold: DefaultOutlierThreshold,
		Projection:       true,
	}
}

// Report is a markdown-friendly analysis of a parsed dataset.
type Report struct {
	Name          string          `json:"name"`
	Rows          int             `json:"rows"`
	Cols          []ColumnSummary `json:"columns"`
	Samples       [][]string      `json:"samples,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	Corr          *CorrMatrix     `json:"correlation,omitempty"`
	Pairs         []PairCorr      `json:"top_pairs,omitempty"`
	Projection    *Projection     `json:"projection,omitempty"`
	NotEnoughData bool            `json:"not_enough_data"`
}

// Analyze builds a report for ds. Missing numeric columns never fail the report:
// the statistics sections are dropped and NotEnoughData is set instead.
func Analyze(name string, ds *table.Dataset, opt Options) *Report {
	rep := &Report{Name: name, Rows: ds.Len()}
	rep.Cols = Summarize(ds, opt.OutlierThreshold)

	sampleRows := opt.SampleRows
	if sampleRows < 0 {
		sampleRows = 0
	}
	for i := 0; i < ds.Len() && i < sampleRows; i++ {
		cells := ds.Rows[i].Cells()
		row := make([]string, len(cells))
		for j, c := range cells {
			row[j] = c.String()
		}
		rep.Samples = append(rep.Samples, row)
	}

	corr, err := Correlation(ds)
	if err != nil {
		if errors.Is(err, ErrInsufficientColumns) {
			rep.NotEnoughData = true
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("not enough numeric columns for correlation or projection (%d found, 2 needed)", len(ds.NumericColumns())))
			return rep
		}
		rep.Warnings = append(rep.Warnings, err.Error())
		return rep
	}
	rep.Corr = corr
	rep.Pairs = corr.TopPairs(opt.TopPairs)
	if opt.Projection {
		if p, err := Project2D(ds); err == nil {
			rep.Projection = p
		}
	}
	for _, c := range rep.Cols {
		if c.Kind == KindNumeric && c.Count > 1 && c.Std == 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %s is constant; its correlations are reported as 0", c.Name))
		}
	}
	return rep
}

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		b.WriteString(fmt.Sprintf("- %s: %s", safeName(c.Name), c.Kind))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf(" — min %.4g, q1 %.4g, median %.4g, q3 %.4g, max %.4g, mean %.4g, std %.4g",
				c.Min, c.Q1, c.Median, c.Q3, c.Max, c.Mean, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case KindText:
			b.WriteString(fmt.Sprintf(" (non-empty %d, missing %d)", c.Count, c.Missing))
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		}
		b.WriteString("\n")
	}

	if r.NotEnoughData {
		b.WriteString("\n[STATISTICS]\nNot enough data: at least 2 numeric columns are required.\n")
	}
	if r.Corr != nil && len(r.Pairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if r.Projection != nil && len(r.Projection.Points) > 0 {
		minX, maxX := math.Inf(1), math.Inf(-1)
		minY, maxY := math.Inf(1), math.Inf(-1)
		for _, p := range r.Projection.Points {
			minX = math.Min(minX, p.X)
			maxX = math.Max(maxX, p.X)
			minY = math.Min(minY, p.Y)
			maxY = math.Max(maxY, p.Y)
		}
		b.WriteString("\n[PROJECTION]\n")
		b.WriteString(fmt.Sprintf("- columns: %d, points: %d\n", len(r.Projection.Columns), len(r.Projection.Points)))
		b.WriteString(fmt.Sprintf("- x range [%.4g, %.4g], y range [%.4g, %.4g]\n", minX, maxX, minY, maxY))
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n")
		b.WriteString("| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
