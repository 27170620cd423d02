package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnLists(t *testing.T) {
	pred := PredictionColumns()
	assert.Len(t, pred, 1+Components+Components*ComponentProps)
	assert.Equal(t, "ID", pred[0])
	assert.Contains(t, pred, "Component5_Property10")
	train := TrainingColumns()
	assert.Len(t, train, len(pred)+BlendProps)
	assert.Equal(t, "BlendProperty10", train[len(train)-1])
}

func TestCheckFullCoverage(t *testing.T) {
	res := Check(PredictionColumns(), PredictionColumns())
	assert.True(t, res.Valid())
	assert.Equal(t, 100.0, res.Percent)
	assert.Empty(t, res.Suggestions)
}

func TestCheckSuggestsTypos(t *testing.T) {
	header := SplitHeader("ID\tComponent1_fracton\tComponent2_fraction\tNotes")
	res := Check(header, []string{"ID", "Component1_fraction", "Component2_fraction"})
	assert.False(t, res.Valid())
	assert.Equal(t, []string{"Component1_fraction"}, res.Missing)
	assert.Equal(t, []string{"Component1_fracton"}, res.Suggestions["Component1_fraction"])
	assert.InDelta(t, 66.67, res.Percent, 0.01)
	assert.Equal(t, []string{"Component1_fracton", "Notes"}, res.Extra)
}

func TestSplitHeader(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitHeader("\"a\", b ,c\r\n"))
	assert.Equal(t, []string{"a,b", "c"}, SplitHeader("a,b\tc"))
	assert.Empty(t, SplitHeader(strings.Repeat(" ", 3)))
}

func TestHeaderFromText(t *testing.T) {
	assert.Equal(t, []string{"ID", "BlendProperty1"}, HeaderFromText("\n  \nID,BlendProperty1\n1,2\n"))
	assert.Nil(t, HeaderFromText("\n\n"))
}
