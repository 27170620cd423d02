package table

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMixedColumns(t *testing.T) {
	ds, err := Parse("a,b\n1,x\n2,y\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ds.Columns)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"a"}, ds.NumericColumns())

	a, ok := ds.Floats("a")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, a)

	b, ok := ds.Strings("b")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, b)
	_, ok = ds.Floats("b")
	assert.False(t, ok)
}

func TestParseEmptyInput(t *testing.T) {
	for _, in := range []string{"", "\n\n", "  \n\t\n"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrEmptyInput), "input %q", in)
	}
}

func TestParseHeaderOnly(t *testing.T) {
	ds, err := Parse("a,b\n")
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Empty(t, ds.NumericColumns())
}

func TestParseQuotesWhitespaceAndCRLF(t *testing.T) {
	ds, err := Parse("\"ID\" , \"Value\"\r\n\"s1\", \" 2.5 \"\r\n\r\ns2,3e2\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Value"}, ds.Columns)
	v, ok := ds.Floats("Value")
	require.True(t, ok)
	assert.Equal(t, []float64{2.5, 300}, v)
	ids, _ := ds.Strings("ID")
	assert.Equal(t, []string{"s1", "s2"}, ids)
}

func TestParseShortRowMakesColumnText(t *testing.T) {
	ds, err := Parse("a,b,c\n1,2,3\n4,5\n")
	require.NoError(t, err)
	c, ok := ds.Rows[1].Get("c")
	require.True(t, ok)
	assert.Equal(t, KindText, c.Kind)
	assert.Equal(t, "", c.Text)
	assert.Equal(t, []string{"a", "b"}, ds.NumericColumns())
}

func TestParseExtraFieldsIgnored(t *testing.T) {
	ds, err := Parse("a\n1,2,3\n")
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Rows[0].Len())
}

func TestParseNonFiniteStaysText(t *testing.T) {
	ds, err := Parse("a,b\nNaN,1\nInf,2\n")
	require.NoError(t, err)
	c, _ := ds.Rows[0].Get("a")
	assert.Equal(t, KindText, c.Kind)
	assert.Equal(t, "NaN", c.Text)
	assert.Equal(t, []string{"b"}, ds.NumericColumns())
}

func TestParseLocaleIndependent(t *testing.T) {
	ds, err := Parse("a\n1,5\n")
	require.NoError(t, err)
	// comma is the delimiter, so "1,5" is two fields and only "1" is kept
	v, ok := ds.Floats("a")
	require.True(t, ok)
	assert.Equal(t, []float64{1}, v)

	ds, err = Parse("a\n1.000.5\n")
	require.NoError(t, err)
	assert.Empty(t, ds.NumericColumns())

	for _, field := range []string{"1_0", "0x1p-2", "0X10"} {
		ds, err = Parse("a\n" + field + "\n")
		require.NoError(t, err)
		assert.Empty(t, ds.NumericColumns(), field)
		s, _ := ds.Strings("a")
		assert.Equal(t, []string{field}, s)
	}

	ds, err = Parse("a\n1e-7\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ds.NumericColumns())
}

func TestRoundTripNumeric(t *testing.T) {
	src := "x,y,label\n0.1,1e-7,a\n3.14159265358979,-2.5,b\n123456.789,0.3333333333333333,c\n"
	ds, err := Parse(src)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, ds.WriteCSV(&sb))
	again, err := Parse(sb.String())
	require.NoError(t, err)

	assert.Equal(t, ds.NumericColumns(), again.NumericColumns())
	for _, col := range ds.NumericColumns() {
		want, _ := ds.Floats(col)
		got, _ := again.Floats(col)
		require.Len(t, got, len(want))
		for i := range want {
			assert.LessOrEqual(t, math.Abs(want[i]-got[i]), 1e-9, "%s[%d]", col, i)
		}
	}
}

func TestIDColumn(t *testing.T) {
	ds, _ := Parse("Component1_fraction,Sample_Name,ID\n0.2,s,1\n")
	assert.Equal(t, "Sample_Name", ds.IDColumn())
	ds, _ = Parse("x,y\n1,2\n")
	assert.Equal(t, "", ds.IDColumn())
}

func TestRowMarshalJSON(t *testing.T) {
	ds, _ := Parse("a,b\n1.5,x\n")
	b, err := json.Marshal(ds.Rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":"x"}`, string(b))

	ds, _ = Parse("z,b,a,b\n1,x,2,y\n")
	b, err = json.Marshal(ds.Rows[0])
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"b":"x","a":2}`, string(b))
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "blend.csv")
	require.NoError(t, os.WriteFile(p, []byte("BlendProperty1\n1\n"), 0o644))
	ds, err := ParseFile(p)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	_, err = ParseFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
