package analysis

import (
	"math"
	"sort"

	"github.com/KaramelBytes/blendlab/internal/table"
	"gonum.org/v1/gonum/stat"
)

const (
	KindNumeric = "numeric"
	KindText    = "text"
)

// DefaultOutlierThreshold is the robust |z| above which a value counts as an outlier.
const DefaultOutlierThreshold = 3.5

// ColumnSummary captures inferred type and distribution statistics per column.
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // numeric|text
	Count   int    `json:"count"`
	Missing int    `json:"missing"`
	// Numeric stats (box plot)
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers_count,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Text columns
	Unique    int             `json:"unique,omitempty"`
	TopValues []CategoryCount `json:"top_values,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summarize describes every column of the dataset in header order.
// threshold <= 0 selects DefaultOutlierThreshold.
func Summarize(ds *table.Dataset, threshold float64) []ColumnSummary {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	out := make([]ColumnSummary, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		if vals, ok := ds.Floats(c); ok {
			out = append(out, numericSummary(c, vals, threshold))
			continue
		}
		strs, _ := ds.Strings(c)
		out = append(out, textSummary(c, strs))
	}
	return out
}

func numericSummary(name string, vals []float64, thr float64) ColumnSummary {
	s := ColumnSummary{Name: name, Kind: KindNumeric, Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q3 = quantile(sorted, 0.75)
	s.Mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		s.Std = stat.StdDev(vals, nil)
	}
	if len(vals) >= 8 {
		median, mad := medianMAD(vals)
		var cnt int
		maxAbsZ := 0.0
		if mad > 0 {
			for _, v := range vals {
				az := math.Abs(0.6745 * (v - median) / mad)
				if az > thr {
					cnt++
				}
				if az > maxAbsZ {
					maxAbsZ = az
				}
			}
		}
		s.OutliersCount = cnt
		s.OutliersMaxAbsZ = maxAbsZ
		s.OutlierThreshold = thr
	}
	return s
}

func textSummary(name string, vals []string) ColumnSummary {
	s := ColumnSummary{Name: name, Kind: KindText}
	cats := map[string]int{}
	for _, v := range vals {
		if v == "" {
			s.Missing++
			continue
		}
		s.Count++
		if len(v) <= 64 {
			cats[v]++
		}
	}
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > 8 {
		tops = tops[:8]
	}
	s.TopValues = tops
	s.Unique = len(cats)
	return s
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between the closest ranks of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func sortPairs(pairs []PairCorr) {
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
}
