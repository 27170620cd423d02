package analysis

import (
	"strings"
	"testing"
)

func TestAnalyzeNotEnoughData(t *testing.T) {
	rep := Analyze("mixed.csv", mustParse(t, "a,b\n1,x\n2,y\n"), DefaultOptions())
	if !rep.NotEnoughData {
		t.Fatalf("expected NotEnoughData")
	}
	if rep.Corr != nil || rep.Projection != nil {
		t.Fatalf("statistics must be absent: %+v", rep)
	}
	md := rep.Markdown()
	if !strings.Contains(md, "Not enough data") {
		t.Fatalf("markdown missing not-enough-data state:\n%s", md)
	}
	if strings.Contains(md, "[CORRELATIONS]") {
		t.Fatalf("markdown should not render correlations:\n%s", md)
	}
}

func TestAnalyzeFullReport(t *testing.T) {
	opt := DefaultOptions()
	opt.SampleRows = 2
	opt.TopPairs = 3
	rep := Analyze("blend.csv", mustParse(t, blendCSV), opt)
	if rep.NotEnoughData {
		t.Fatalf("unexpected NotEnoughData")
	}
	if rep.Rows != 5 || len(rep.Cols) != 5 || len(rep.Samples) != 2 {
		t.Fatalf("report shape: rows=%d cols=%d samples=%d", rep.Rows, len(rep.Cols), len(rep.Samples))
	}
	if len(rep.Pairs) != 3 {
		t.Fatalf("pairs = %d", len(rep.Pairs))
	}
	if rep.Projection == nil || len(rep.Projection.Points) != 5 {
		t.Fatalf("projection missing")
	}
	md := rep.Markdown()
	for _, want := range []string{"[DATASET SUMMARY]", "File: blend.csv", "[SCHEMA]", "[CORRELATIONS]", "[PROJECTION]", "[HEAD AND SAMPLE ROWS]", "| b1 |"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestAnalyzeWarnsOnConstantColumn(t *testing.T) {
	rep := Analyze("", mustParse(t, "a,b\n1,7\n2,7\n3,7\n"), DefaultOptions())
	found := false
	for _, w := range rep.Warnings {
		if strings.Contains(w, "column b is constant") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", rep.Warnings)
	}
}
