package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/blendlab/internal/table"
)

func reference(t *testing.T) *table.Dataset {
	t.Helper()
	ds, err := table.Parse("BlendProperty1,BlendProperty2\n10,20\n12,18\n")
	require.NoError(t, err)
	return ds
}

func TestFindBestMatchExact(t *testing.T) {
	res, ok := FindBestMatch(reference(t), TargetVector{1: 10, 2: 20})
	require.True(t, ok)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, 0.0, res.Score)
}

func TestFindBestMatchTieKeepsFirstRow(t *testing.T) {
	res, ok := FindBestMatch(reference(t), TargetVector{1: 11, 2: 19})
	require.True(t, ok)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, 1.0, res.Score)
}

func TestFindBestMatchDeterministic(t *testing.T) {
	ref := reference(t)
	targets := TargetVector{1: 11.7, 2: 18.4}
	first, ok := FindBestMatch(ref, targets)
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		again, ok := FindBestMatch(ref, targets)
		require.True(t, ok)
		assert.Equal(t, first.Index, again.Index)
		assert.Equal(t, first.Score, again.Score)
	}
	assert.Equal(t, 1, first.Index)
}

func TestFindBestMatchEmptyInputs(t *testing.T) {
	_, ok := FindBestMatch(reference(t), TargetVector{})
	assert.False(t, ok)
	_, ok = FindBestMatch(nil, TargetVector{1: 1})
	assert.False(t, ok)

	headerOnly, err := table.Parse("BlendProperty1\n")
	require.NoError(t, err)
	_, ok = FindBestMatch(headerOnly, TargetVector{1: 1})
	assert.False(t, ok)
}

func TestFindBestMatchSkipsRowsWithoutTargets(t *testing.T) {
	ds, err := table.Parse("ID,BlendProperty1,BlendProperty3\nr0,,5\nr1,9,x\n")
	require.NoError(t, err)
	// only BlendProperty1 is targeted; row 0 has no number there
	res, ok := FindBestMatch(ds, TargetVector{1: 10})
	require.True(t, ok)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, 1.0, res.Score)
	id, _ := res.Row.Get("ID")
	assert.Equal(t, "r1", id.String())

	_, ok = FindBestMatch(ds, TargetVector{7: 1})
	assert.False(t, ok, "no row carries BlendProperty7")
}

func TestParseTargets(t *testing.T) {
	tv, err := ParseTargets([]string{"1=10", " 3 = 12.5 "})
	require.NoError(t, err)
	assert.Equal(t, TargetVector{1: 10, 3: 12.5}, tv)
	assert.Equal(t, []int{1, 3}, tv.Indices())

	for _, bad := range []string{"1", "x=1", "1=y", "0=1", "11=1"} {
		_, err := ParseTargets([]string{bad})
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "BlendProperty4", PropertyColumn(4))
}
