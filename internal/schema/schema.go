// Package schema checks a dataset header against the columns expected for
// blend prediction or training input.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

const (
	Components        = 5
	ComponentProps    = 10
	BlendProps        = 10
	maxSuggestionDist = 2
)

// PredictionColumns lists the columns a prediction input must carry.
func PredictionColumns() []string {
	cols := []string{"ID"}
	for c := 1; c <= Components; c++ {
		cols = append(cols, fmt.Sprintf("Component%d_fraction", c))
	}
	for c := 1; c <= Components; c++ {
		for p := 1; p <= ComponentProps; p++ {
			cols = append(cols, fmt.Sprintf("Component%d_Property%d", c, p))
		}
	}
	return cols
}

// TrainingColumns extends PredictionColumns with the BlendProperty targets.
func TrainingColumns() []string {
	cols := PredictionColumns()
	for p := 1; p <= BlendProps; p++ {
		cols = append(cols, fmt.Sprintf("BlendProperty%d", p))
	}
	return cols
}

// Result describes how well a header covers a required column list.
type Result struct {
	Matched     []string            `json:"matched"`
	Missing     []string            `json:"missing"`
	Extra       []string            `json:"extra,omitempty"`
	Percent     float64             `json:"percent"`
	Suggestions map[string][]string `json:"suggestions,omitempty"`
}

// Valid reports whether no required column is missing.
func (r Result) Valid() bool { return len(r.Missing) == 0 }

// SplitHeader splits a header line on tabs when present, otherwise on commas.
func SplitHeader(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	sep := ","
	if strings.Contains(line, "\t") {
		sep = "\t"
	}
	parts := strings.Split(line, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ReplaceAll(p, `"`, ""))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HeaderFromText returns the fields of the first non-blank line of text.
func HeaderFromText(text string) []string {
	for _, line := range strings.Split(text, "\n") {
		if h := SplitHeader(line); len(h) > 0 {
			return h
		}
	}
	return nil
}

// Check compares header against required. Missing columns get suggestions from
// present, unrequired columns within a small edit distance, closest first.
func Check(header, required []string) Result {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	want := make(map[string]bool, len(required))
	res := Result{}
	for _, r := range required {
		want[r] = true
		if present[r] {
			res.Matched = append(res.Matched, r)
		} else {
			res.Missing = append(res.Missing, r)
		}
	}
	for _, h := range header {
		if !want[h] {
			res.Extra = append(res.Extra, h)
		}
	}
	if len(required) > 0 {
		res.Percent = float64(len(res.Matched)) * 100 / float64(len(required))
	}
	for _, m := range res.Missing {
		type cand struct {
			name string
			dist int
		}
		var cands []cand
		for _, e := range res.Extra {
			d := levenshtein.ComputeDistance(strings.ToLower(m), strings.ToLower(e))
			if d <= maxSuggestionDist {
				cands = append(cands, cand{e, d})
			}
		}
		if len(cands) == 0 {
			continue
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
		if res.Suggestions == nil {
			res.Suggestions = map[string][]string{}
		}
		for _, c := range cands {
			res.Suggestions[m] = append(res.Suggestions[m], c.name)
		}
	}
	return res
}
