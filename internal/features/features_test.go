package features

import (
	"math"
	"testing"

	"fast-interactions/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	nan := math.NaN()
	X := []dataset.Column{
		dataset.Floats(1, 2, nan),
		dataset.Strings("red", "blue", ""),
		dataset.Strings("1.5", "", "3"),
	}

	feats, n, err := Clean(X, nil, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, feats, 3)

	assert.Equal(t, "feature_0000", feats[0].Name)
	assert.Equal(t, Continuous, feats[0].Type)
	assert.True(t, math.IsNaN(feats[0].Values[2]))

	assert.Equal(t, Nominal, feats[1].Type)
	assert.Equal(t, []string{"red", "blue", ""}, feats[1].Labels)

	assert.Equal(t, Continuous, feats[2].Type)
	assert.Equal(t, 1.5, feats[2].Values[0])
	assert.True(t, math.IsNaN(feats[2].Values[1]))
}

func TestClean_Hints(t *testing.T) {
	X := []dataset.Column{
		dataset.Floats(3, 1, 3),
		dataset.Strings("a", "b", "a"),
	}

	feats, _, err := Clean(X, []string{"size", ""}, []string{"ordinal", "nominal"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "size", feats[0].Name)
	assert.Equal(t, "feature_0001", feats[1].Name)
	assert.Equal(t, Ordinal, feats[0].Type)
	assert.Equal(t, []string{"3", "1", "3"}, feats[0].Labels)
	assert.Equal(t, Nominal, feats[1].Type)
}

func TestClean_Errors(t *testing.T) {
	tests := []struct {
		name  string
		X     []dataset.Column
		names []string
		types []string
		n     int
	}{
		{"row mismatch", []dataset.Column{dataset.Floats(1, 2)}, nil, nil, 3},
		{"names length", []dataset.Column{dataset.Floats(1, 2)}, []string{"a", "b"}, nil, 2},
		{"types length", []dataset.Column{dataset.Floats(1, 2)}, nil, []string{}, 2},
		{"unknown type", []dataset.Column{dataset.Floats(1, 2)}, nil, []string{"fuzzy"}, 2},
		{"infinite", []dataset.Column{dataset.Floats(1, math.Inf(1))}, nil, nil, 2},
		{"continuous strings", []dataset.Column{dataset.Strings("x", "1")}, nil, []string{"continuous"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Clean(tt.X, tt.names, tt.types, tt.n)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestParseType(t *testing.T) {
	typ, ok, err := ParseType(" Nominal ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Nominal, typ)

	_, ok, err = ParseType("auto")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "ordinal", Ordinal.String())
	assert.Equal(t, "Type(9)", Type(9).String())
}

func sequence(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	return vals
}

func TestConstruct_Quantile(t *testing.T) {
	b := NewBinner()
	feats := []Feature{{Name: "x", Type: Continuous, Values: sequence(100)}}
	y := Target{NClasses: -1, Values: make([]float64, 100)}

	bins, err := b.Construct(feats, y, nil, 5, StrategyQuantile)
	require.NoError(t, err)
	require.Len(t, bins, 1)

	assert.Equal(t, []float64{25, 50, 75}, bins[0].Cuts)
	assert.Equal(t, 5, bins[0].Count())
	assert.Equal(t, 0, bins[0].Index(math.NaN()))
	assert.Equal(t, 1, bins[0].Index(24))
	assert.Equal(t, 2, bins[0].Index(25))
	assert.Equal(t, 4, bins[0].Index(100))
}

func TestConstruct_FewDistinctValues(t *testing.T) {
	b := NewBinner()
	feats := []Feature{{Name: "x", Type: Continuous, Values: []float64{3, 1, 2, 1, math.NaN()}}}
	y := Target{NClasses: 2, Classes: []int{0, 1, 0, 1, 0}}

	bins, err := b.Construct(feats, y, nil, 32, StrategyQuantile)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, bins[0].Cuts)
	assert.Equal(t, 1, bins[0].Index(1))
	assert.Equal(t, 3, bins[0].Index(3))
}

func TestConstruct_Categories(t *testing.T) {
	b := NewBinner()
	feats := []Feature{
		{Name: "color", Type: Nominal, Labels: []string{"a", "b", "b", "c", "c", "c", ""}},
		{Name: "rank", Type: Ordinal, Labels: []string{"10", "9", "2", "9", "2", "10", "10"}},
	}
	y := Target{NClasses: 1, Classes: make([]int, 7)}

	bins, err := b.Construct(feats, y, nil, 3, StrategyQuantile)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, bins[0].Categories)
	assert.Equal(t, 0, bins[0].IndexLabel("a"))
	assert.Equal(t, 2, bins[0].IndexLabel("c"))
	assert.Equal(t, 3, bins[0].Count())

	assert.Equal(t, []string{"9", "10"}, bins[1].Categories)
}

func TestConstruct_Errors(t *testing.T) {
	b := NewBinner()
	feats := []Feature{{Name: "x", Type: Continuous, Values: []float64{1, 2}}}
	y := Target{NClasses: -1, Values: []float64{0, 1}}

	_, err := b.Construct(feats, y, nil, 1, StrategyQuantile)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = b.Construct(feats, y, nil, 8, "kmeans")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = b.Construct(feats, y, []float64{1}, 8, StrategyQuantile)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMaterialize(t *testing.T) {
	b := NewBinner()
	feats := []Feature{
		{Name: "x", Type: Continuous, Values: []float64{1, 2, 3, math.NaN()}},
		{Name: "c", Type: Nominal, Labels: []string{"u", "v", "", "u"}},
	}
	y := Target{NClasses: 2, Classes: []int{0, 1, 1, 0}}

	bins, err := b.Construct(feats, y, nil, 32, StrategyQuantile)
	require.NoError(t, err)

	ds, err := b.Materialize(bins, feats, y, []float64{1, 2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 4, ds.NSamples)
	assert.Equal(t, 2, ds.NumFeatures())
	assert.Equal(t, []int32{1, 2, 3, 0}, ds.Bins[0])
	assert.Equal(t, []int32{1, 2, 0, 1}, ds.Bins[1])
	assert.Equal(t, 4, ds.BinCount(0))
	assert.Equal(t, 2.0, ds.Weight(1))

	ds.Weights = nil
	assert.Equal(t, 1.0, ds.Weight(1))
}

func TestMaterialize_BadClass(t *testing.T) {
	b := NewBinner()
	feats := []Feature{{Name: "x", Type: Continuous, Values: []float64{1, 2}}}
	y := Target{NClasses: 2, Classes: []int{0, 2}}

	bins, err := b.Construct(feats, y, nil, 4, StrategyQuantile)
	require.NoError(t, err)
	_, err = b.Materialize(bins, feats, y, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
