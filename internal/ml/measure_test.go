package ml

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/features"
	"fast-interactions/internal/objective"
	"fast-interactions/internal/ranking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// countingBinner records how often binning ran.
type countingBinner struct {
	*features.Binner
	constructs   int
	materializes int
}

func (b *countingBinner) Construct(feats []features.Feature, y features.Target, weights []float64, maxBins int, strategy string) ([]features.Bins, error) {
	b.constructs++
	return b.Binner.Construct(feats, y, weights, maxBins, strategy)
}

func (b *countingBinner) Materialize(bins []features.Bins, feats []features.Feature, y features.Target, weights []float64) (*features.Dataset, error) {
	b.materializes++
	return b.Binner.Materialize(bins, feats, y, weights)
}

// recordingRanker keeps the last request and delegates to the FAST ranker.
type recordingRanker struct {
	inner *ranking.FAST
	last  ranking.Request
	err   error
}

func (r *recordingRanker) Rank(req ranking.Request) ([]ranking.Ranked, error) {
	r.last = req
	if r.err != nil {
		return nil, r.err
	}
	return r.inner.Rank(req)
}

func newTestMeasurer() (*Measurer, *countingBinner, *recordingRanker) {
	table := objective.DefaultTable()
	binner := &countingBinner{Binner: features.NewBinner()}
	ranker := &recordingRanker{inner: ranking.NewFAST(table)}
	return NewMeasurer(table, binner, ranker), binner, ranker
}

func noiseColumns(rng *rand.Rand, nFeatures, n int) []dataset.Column {
	X := make([]dataset.Column, nFeatures)
	for f := range X {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = rng.NormFloat64()
		}
		X[f] = dataset.Floats(vals...)
	}
	return X
}

func assertSorted(t *testing.T, out []Interaction) {
	t.Helper()
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Strength, out[i].Strength)
	}
	for _, r := range out {
		assert.GreaterOrEqual(t, r.Strength, 0.0)
	}
}

func TestMeasureInteractions_BinaryNoise(t *testing.T) {
	X := []dataset.Column{
		dataset.Floats(0.3, 1.7, 2.2, 0.1, 1.1, 2.9, 0.8, 1.5),
		dataset.Floats(5, 3, 9, 1, 7, 2, 8, 4),
	}
	y := dataset.Floats(0, 1, 0, 1, 0, 1, 0, 1)

	out, err := MeasureInteractions(X, y, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, [2]int{0, 1}, out[0].Features)
	assert.GreaterOrEqual(t, out[0].Strength, 0.0)
}

func TestMeasureInteractions_RegressionTopK(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X := noiseColumns(rng, 5, 100)
	yv := make([]float64, 100)
	for i := range yv {
		yv[i] = X[1].Floats[i]*X[3].Floats[i] + 0.1*rng.NormFloat64()
	}

	out, err := MeasureInteractions(X, dataset.Floats(yv...), Options{Interactions: TopK(3), MinSamplesLeaf: 10})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assertSorted(t, out)
	assert.Equal(t, [2]int{1, 3}, out[0].Features)
	for _, r := range out {
		assert.Less(t, r.Features[0], r.Features[1])
	}
}

func TestMeasure_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := noiseColumns(rng, 6, 80)
	y := noiseColumns(rng, 1, 80)[0]

	m := NewDefaultMeasurer()
	first, err := m.Measure(X, y, Options{})
	require.NoError(t, err)
	require.Len(t, first.Interactions, 15)
	assertSorted(t, first.Interactions)

	second, err := m.Measure(X, y, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMeasure_ExplicitPairsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	X := noiseColumns(rng, 5, 60)
	y := noiseColumns(rng, 1, 60)[0]
	pairs := Pairs{{3, 1}, {0, 2}, {4, 0}}

	m, _, ranker := newTestMeasurer()
	res, err := m.Measure(X, y, Options{Interactions: pairs})
	require.NoError(t, err)
	assert.Zero(t, ranker.last.K)

	got := make([][2]int, len(res.Interactions))
	for i, r := range res.Interactions {
		got[i] = r.Features
	}
	assert.ElementsMatch(t, [][2]int(pairs), got)
	assertSorted(t, res.Interactions)
}

func TestMeasure_NumericStringTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	X := noiseColumns(rng, 3, 50)
	floats := make([]float64, 50)
	strs := make([]string, 50)
	for i := range floats {
		floats[i] = 10 * rng.Float64()
		strs[i] = strconv.FormatFloat(floats[i], 'g', -1, 64)
	}

	m := NewDefaultMeasurer()
	fromStrings, err := m.Measure(X, dataset.Strings(strs...), Options{})
	require.NoError(t, err)
	assert.Equal(t, "rmse", fromStrings.Objective)
	assert.Equal(t, -1, fromStrings.NClasses)

	fromFloats, err := m.Measure(X, dataset.Floats(floats...), Options{})
	require.NoError(t, err)
	assert.Equal(t, fromFloats, fromStrings)

	labels := make([]string, 50)
	for i := range labels {
		labels[i] = strconv.Itoa([]int{10, 2, 1}[i%3])
	}
	res, err := m.Measure(X, dataset.Strings(labels...), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.NClasses)
	assert.Equal(t, []string{"1", "2", "10"}, res.Classes)
}

func TestMeasure_WeightLengthMismatch(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4), dataset.Floats(4, 3, 2, 1)}
	y := dataset.Floats(0, 1, 0, 1)

	_, err := MeasureInteractions(X, y, Options{SampleWeight: []float64{1, 1, 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInput)
	assert.Contains(t, err.Error(), "y has 4 samples and sample_weight has 3 samples")

	_, err = MeasureInteractions(X, y, Options{SampleWeight: []float64{1, -1, 1, 1}})
	assert.ErrorIs(t, err, ErrInput)
}

func TestMeasure_ConflictBeforeBinning(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3), dataset.Floats(3, 1, 2)}
	y := dataset.Floats(0, 1, 2)
	baseline := FittedClassifier{
		Classes: []string{"0", "1", "2"},
		Model:   constProba{[]float64{0.2, 0.3, 0.5}},
	}

	m, binner, _ := newTestMeasurer()
	_, err := m.Measure(X, y, Options{InitScore: baseline, Objective: "rmse"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Zero(t, binner.constructs)
	assert.Zero(t, binner.materializes)
}

func TestMeasure_SingleClassDropsScores(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4, 5, 6), dataset.Floats(6, 5, 4, 3, 2, 1)}
	y := dataset.Strings("a", "a", "a", "a", "a", "a")

	for _, score := range []Baseline{
		RawScores{Vector: []float64{1, 2, 3, 4, 5, 6}},
		RawScores{Matrix: mat.NewDense(6, 1, nil)},
	} {
		m, _, ranker := newTestMeasurer()
		res, err := m.Measure(X, y, Options{InitScore: score})
		require.NoError(t, err)
		assert.Equal(t, 1, res.NClasses)
		assert.Equal(t, []string{"a"}, res.Classes)
		assert.Nil(t, ranker.last.InitScores)
		require.Len(t, res.Interactions, 1)
		assert.Zero(t, res.Interactions[0].Strength)
	}

	m, _, _ := newTestMeasurer()
	_, err := m.Measure(X, y, Options{InitScore: RawScores{Matrix: mat.NewDense(6, 2, nil)}})
	assert.ErrorIs(t, err, ErrShape)
}

func TestMeasure_BaselineClassifier(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4), dataset.Floats(4, 3, 2, 1)}
	baseline := FittedClassifier{Classes: []string{"1", "0"}, Model: constProba{[]float64{0.2, 0.8}}}

	m, _, ranker := newTestMeasurer()
	res, err := m.Measure(X, dataset.Floats(0, 1, 1, 0), Options{InitScore: baseline})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "0"}, res.Classes)
	assert.Equal(t, "log_loss", res.Objective)
	assert.Equal(t, []int{1, 0, 0, 1}, ranker.last.Dataset.Classes)
	require.Len(t, ranker.last.InitScores, 4)
	assert.InDelta(t, math.Log(4), ranker.last.InitScores[0], 1e-12)
	assert.Equal(t, 1, ranker.last.NScores)

	_, err = m.Measure(X, dataset.Floats(0, 1, 7, 0), Options{InitScore: baseline})
	assert.ErrorIs(t, err, ErrLookup)
}

func TestMeasure_MulticlassScores(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4, 5, 6), dataset.Floats(2, 1, 2, 1, 2, 1)}
	y := dataset.Floats(0, 1, 2, 0, 1, 2)

	m, _, ranker := newTestMeasurer()
	res, err := m.Measure(X, y, Options{InitScore: RawScores{Matrix: mat.NewDense(6, 3, nil)}, MinSamplesLeaf: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.NClasses)
	assert.Equal(t, 3, ranker.last.NScores)
	assert.Equal(t, 1, ranker.last.MinSamplesLeaf)

	_, err = m.Measure(X, y, Options{InitScore: RawScores{Matrix: mat.NewDense(6, 2, nil)}})
	assert.ErrorIs(t, err, ErrShape)

	// A per-sample score vector turns a multiclass-looking target into regression.
	res, err = m.Measure(X, y, Options{InitScore: RawScores{Vector: make([]float64, 6)}})
	require.NoError(t, err)
	assert.Equal(t, -1, res.NClasses)
	assert.Equal(t, "rmse", res.Objective)
}

func TestMeasure_RequestWiring(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4), dataset.Strings("a", "b", "a", "b"), dataset.Floats(0, 0, 1, 1)}
	y := dataset.Floats(0.5, 1.5, 2.5, 3.5)

	m, _, ranker := newTestMeasurer()
	res, err := m.Measure(X, y, Options{
		Objective:    "tweedie_deviance:variance_power=1.25",
		FeatureNames: []string{"age", "group", ""},
		Exclude:      [][2]int{{2, 0}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "group", "feature_0002"}, res.FeatureNames)
	assert.Equal(t, "tweedie_deviance:variance_power=1.25", ranker.last.Objective)
	assert.Equal(t, ranking.MaxCardinality, ranker.last.MaxCardinality)
	assert.Equal(t, DefaultMinSamplesLeaf, ranker.last.MinSamplesLeaf)
	assert.Nil(t, ranker.last.Bag)
	assert.Contains(t, ranker.last.Exclude, ranking.Pair{0, 2})
	assert.Len(t, res.Interactions, 2)
	for _, r := range res.Interactions {
		assert.NotEqual(t, [2]int{0, 2}, r.Features)
	}
}

func TestMeasure_Errors(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4), dataset.Floats(4, 3, 2, 1)}
	y := dataset.Floats(0, 1, 0, 1)

	tests := []struct {
		name string
		X    []dataset.Column
		y    dataset.Column
		opts Options
		want error
	}{
		{"empty y", X, dataset.Floats(), Options{}, ErrInput},
		{"bin cap", X, y, Options{MaxInteractionBins: 1}, ErrInput},
		{"min leaf", X, y, Options{MinSamplesLeaf: -2}, ErrInput},
		{"row mismatch", []dataset.Column{dataset.Floats(1, 2)}, y, Options{}, ErrInput},
		{"feature names", X, y, Options{FeatureNames: []string{"a"}}, ErrInput},
		{"negative k", X, y, Options{Interactions: TopK(-3)}, ErrInput},
		{"bad pair", X, y, Options{Interactions: Pairs{{0, 2}}}, ErrInput},
		{"bad exclude", X, y, Options{Exclude: [][2]int{{0, 9}}}, ErrInput},
		{"score rows", X, y, Options{InitScore: RawScores{Vector: []float64{1}}}, ErrShape},
		{"binary matrix", X, y, Options{InitScore: RawScores{Matrix: mat.NewDense(4, 2, nil)}}, ErrShape},
		{"unknown objective", X, y, Options{Objective: "quantile"}, ErrInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MeasureInteractions(tt.X, tt.y, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMeasure_EngineFailure(t *testing.T) {
	X := []dataset.Column{dataset.Floats(1, 2, 3, 4), dataset.Floats(4, 3, 2, 1)}
	y := dataset.Floats(0, 1, 0, 1)

	m, _, ranker := newTestMeasurer()
	ranker.err = errors.New("kernel exploded")
	_, err := m.Measure(X, y, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "kernel exploded")
}
