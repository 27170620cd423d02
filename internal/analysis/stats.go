package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/blendlab/internal/table"
)

// ErrInsufficientColumns indicates fewer than two numeric columns are available.
// Callers should show a "not enough data" state rather than a partial chart.
var ErrInsufficientColumns = errors.New("not enough numeric columns: need at least 2")

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // row-major, Values[i][j]
}

// At returns the coefficient for two column names.
func (m *CorrMatrix) At(a, b string) (float64, bool) {
	ia, ib := -1, -1
	for i, c := range m.Columns {
		if c == a && ia < 0 {
			ia = i
		}
		if c == b && ib < 0 {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0, false
	}
	return m.Values[ia][ib], true
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// TopPairs lists off-diagonal pairs ordered by |r| descending, limited to n (0 = all).
func (m *CorrMatrix) TopPairs(n int) []PairCorr {
	var pairs []PairCorr
	for i := 0; i < len(m.Columns); i++ {
		for j := i + 1; j < len(m.Columns); j++ {
			pairs = append(pairs, PairCorr{A: m.Columns[i], B: m.Columns[j], R: m.Values[i][j]})
		}
	}
	sortPairs(pairs)
	if n > 0 && len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

// numericMatrix returns the numeric column names and their values column-major.
func numericMatrix(ds *table.Dataset) ([]string, [][]float64, error) {
	cols := ds.NumericColumns()
	if len(cols) < 2 {
		return cols, nil, fmt.Errorf("%w (found %d)", ErrInsufficientColumns, len(cols))
	}
	vals := make([][]float64, len(cols))
	for i, c := range cols {
		vals[i], _ = ds.Floats(c)
	}
	return cols, vals, nil
}

// Correlation computes the Pearson correlation matrix over the numeric columns.
// The diagonal is 1; when either column has zero variance the coefficient is 0.
func Correlation(ds *table.Dataset) (*CorrMatrix, error) {
	cols, vals, err := numericMatrix(ds)
	if err != nil {
		return nil, err
	}
	n := len(cols)
	means := make([]float64, n)
	for i, v := range vals {
		means[i] = mean(v)
	}
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
	}
	for a := 0; a < n; a++ {
		mat[a][a] = 1
		for b := a + 1; b < n; b++ {
			r := pearson(vals[a], vals[b], means[a], means[b])
			mat[a][b] = r
			mat[b][a] = r
		}
	}
	return &CorrMatrix{Columns: cols, Values: mat}, nil
}

func pearson(x, y []float64, mx, my float64) float64 {
	var num, sxx, syy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		num += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	denom := math.Sqrt(sxx * syy)
	if denom == 0 {
		return 0
	}
	r := num / denom
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// Point is one projected row.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Projection is the 2-D embedding of a dataset, one point per row.
type Projection struct {
	Columns []string `json:"columns"`
	Points  []Point  `json:"points"`
}

// Project2D centers every numeric column and maps each row onto two fixed axes:
// x weights column i by +1/-1 on even/odd positions, y weights it by sin(i*pi/4).
// This is a deterministic approximation, not an eigen-decomposition: the axes do
// not maximize variance.
func Project2D(ds *table.Dataset) (*Projection, error) {
	cols, vals, err := numericMatrix(ds)
	if err != nil {
		return nil, err
	}
	xw := make([]float64, len(cols))
	yw := make([]float64, len(cols))
	for i := range cols {
		xw[i] = 1
		if i%2 != 0 {
			xw[i] = -1
		}
		yw[i] = math.Sin(float64(i) * math.Pi / 4)
	}
	means := make([]float64, len(cols))
	for i, v := range vals {
		means[i] = mean(v)
	}
	labels := rowLabels(ds)
	pts := make([]Point, ds.Len())
	for r := range pts {
		var x, y float64
		for i := range cols {
			c := vals[i][r] - means[i]
			x += c * xw[i]
			y += c * yw[i]
		}
		pts[r] = Point{X: x, Y: y, Label: labels[r]}
	}
	return &Projection{Columns: cols, Points: pts}, nil
}

func rowLabels(ds *table.Dataset) []string {
	out := make([]string, ds.Len())
	id := ds.IDColumn()
	var vals []string
	if id != "" {
		vals, _ = ds.Strings(id)
	}
	for i := range out {
		if vals != nil {
			out[i] = fmt.Sprintf("%s: %s", id, vals[i])
		} else {
			out[i] = fmt.Sprintf("Sample %d", i+1)
		}
	}
	return out
}

// DefaultPairLimit caps the columns of a pair plot.
const DefaultPairLimit = 4

// PairColumns returns the first limit numeric columns used for a scatter matrix.
func PairColumns(ds *table.Dataset, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultPairLimit
	}
	cols := ds.NumericColumns()
	if len(cols) < 2 {
		return nil, fmt.Errorf("%w (found %d)", ErrInsufficientColumns, len(cols))
	}
	if len(cols) > limit {
		cols = cols[:limit]
	}
	return cols, nil
}

// ComponentColumns returns the blend component columns: names containing
// "component", "fraction" or "comp". When none match, up to four columns whose
// first-row value is a number not above 1 are used instead.
func ComponentColumns(ds *table.Dataset) []string {
	var out []string
	for _, c := range ds.Columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "component") || strings.Contains(lc, "fraction") || strings.Contains(lc, "comp") {
			out = append(out, c)
		}
	}
	if len(out) > 0 || ds.Len() == 0 {
		return out
	}
	for _, c := range ds.Columns {
		cell, _ := ds.Rows[0].Get(c)
		if v, ok := cell.Float(); ok && v <= 1 {
			out = append(out, c)
			if len(out) == 4 {
				break
			}
		}
	}
	return out
}
