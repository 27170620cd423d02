// Package match finds the reference blend whose measured properties sit closest
// to a set of desired target values.
package match

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/blendlab/internal/table"
)

// MaxProperty is the highest blend property index.
const MaxProperty = 10

// TargetVector maps a property index (1..10) to its desired value.
type TargetVector map[int]float64

// Set stores a target, rejecting indices outside 1..MaxProperty.
func (t TargetVector) Set(i int, v float64) error {
	if i < 1 || i > MaxProperty {
		return fmt.Errorf("property index %d out of range 1..%d", i, MaxProperty)
	}
	t[i] = v
	return nil
}

// Indices returns the target indices in ascending order.
func (t TargetVector) Indices() []int {
	out := make([]int, 0, len(t))
	for i := range t {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// PropertyColumn returns the reference column holding property i.
func PropertyColumn(i int) string { return "BlendProperty" + strconv.Itoa(i) }

// ParseTargets reads "index=value" pairs such as "3=12.5".
func ParseTargets(pairs []string) (TargetVector, error) {
	t := TargetVector{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid target %q: expected index=value", p)
		}
		i, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("invalid target index %q: %w", k, err)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target value %q: %w", v, err)
		}
		if err := t.Set(i, f); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MatchResult is the closest reference row and its mean squared error.
type MatchResult struct {
	Index int       `json:"index"`
	Row   table.Row `json:"row"`
	Score float64   `json:"score"`
}

// FindBestMatch scores every reference row by the mean squared error over the
// targets whose BlendProperty column holds a number in that row. Rows without any
// such column are skipped. The lowest score wins and ties keep the earlier row.
// It reports false when nothing could be scored.
func FindBestMatch(ref *table.Dataset, targets TargetVector) (*MatchResult, bool) {
	if ref.Len() == 0 || len(targets) == 0 {
		return nil, false
	}
	idx := targets.Indices()
	cols := make([]string, len(idx))
	for k, i := range idx {
		cols[k] = PropertyColumn(i)
	}
	var best *MatchResult
	for r, row := range ref.Rows {
		var sum float64
		var n int
		for k, i := range idx {
			cell, ok := row.Get(cols[k])
			if !ok {
				continue
			}
			v, ok := cell.Float()
			if !ok {
				continue
			}
			d := v - targets[i]
			sum += d * d
			n++
		}
		if n == 0 {
			continue
		}
		score := sum / float64(n)
		if best == nil || score < best.Score {
			best = &MatchResult{Index: r, Row: row, Score: score}
		}
	}
	return best, best != nil
}
