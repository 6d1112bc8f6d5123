// Package ml measures pairwise interaction strength between features. It
// resolves the problem type from the objective, baseline and target, encodes
// the target, validates the baseline scores and drives the binning and
// ranking collaborators.
package ml

import (
	"fmt"
	"math"
	"time"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/features"
	"fast-interactions/internal/objective"
	"fast-interactions/internal/ranking"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxInteractionBins = 32
	DefaultMinSamplesLeaf     = 2
)

// Binner cleans raw features, builds bin edges and materializes the binned
// dataset.
type Binner interface {
	Clean(X []dataset.Column, names, types []string, nSamples int) ([]features.Feature, int, error)
	Construct(feats []features.Feature, y features.Target, weights []float64, maxBins int, strategy string) ([]features.Bins, error)
	Materialize(bins []features.Bins, feats []features.Feature, y features.Target, weights []float64) (*features.Dataset, error)
}

// InteractionRanker scores candidate pairs over a binned dataset.
type InteractionRanker interface {
	Rank(req ranking.Request) ([]ranking.Ranked, error)
}

// Options configures one measurement. Zero values of MaxInteractionBins and
// MinSamplesLeaf select the defaults.
type Options struct {
	Interactions Interactions
	// Exclude lists unordered pairs that are never scored.
	Exclude      [][2]int
	InitScore    Baseline
	SampleWeight []float64
	FeatureNames []string
	FeatureTypes []string

	MaxInteractionBins int    `validate:"min=2,max=1024"`
	MinSamplesLeaf     int    `validate:"min=1"`
	Objective          string `validate:"max=256"`
}

func (o Options) withDefaults() Options {
	if o.MaxInteractionBins == 0 {
		o.MaxInteractionBins = DefaultMaxInteractionBins
	}
	if o.MinSamplesLeaf == 0 {
		o.MinSamplesLeaf = DefaultMinSamplesLeaf
	}
	return o
}

var optionsValidate = validator.New()

// Result is a complete measurement.
type Result struct {
	Interactions []Interaction `json:"interactions"`
	FeatureNames []string      `json:"feature_names"`
	Objective    string        `json:"objective"`
	// NClasses is -1 for regression.
	NClasses int      `json:"n_classes"`
	Classes  []string `json:"classes,omitempty"`
}

// Measurer runs measurements against an objective table and its binning and
// ranking collaborators. It holds no per-call state.
type Measurer struct {
	table  *objective.Table
	binner Binner
	ranker InteractionRanker
}

// NewMeasurer creates a measurer.
func NewMeasurer(table *objective.Table, binner Binner, ranker InteractionRanker) *Measurer {
	return &Measurer{table: table, binner: binner, ranker: ranker}
}

// NewDefaultMeasurer wires the default objective table, the quantile binner
// and the FAST ranker.
func NewDefaultMeasurer() *Measurer {
	table := objective.DefaultTable()
	return NewMeasurer(table, features.NewBinner(), ranking.NewFAST(table))
}

// MeasureInteractions measures pairwise interaction strengths of the columns
// of X against y with the default collaborators. The result is sorted by
// descending strength.
func MeasureInteractions(X []dataset.Column, y dataset.Column, opts Options) ([]Interaction, error) {
	res, err := NewDefaultMeasurer().Measure(X, y, opts)
	if err != nil {
		return nil, err
	}
	return res.Interactions, nil
}

// Measure runs one measurement. Every error wraps exactly one of ErrInput,
// ErrConflict, ErrShape, ErrLookup or ErrEngine.
func (m *Measurer) Measure(X []dataset.Column, y dataset.Column, opts Options) (*Result, error) {
	start := time.Now()
	res, err := m.measure(X, y, opts)
	if err != nil {
		log.Error().Err(err).
			Int("features", len(X)).
			Int("samples", y.Len()).
			Msg("Interaction measurement failed")
		return nil, err
	}

	log.Info().
		Str("objective", res.Objective).
		Int("n_classes", res.NClasses).
		Int("features", len(res.FeatureNames)).
		Int("interactions", len(res.Interactions)).
		Dur("elapsed", time.Since(start)).
		Msg("Measured interactions")
	return res, nil
}

func (m *Measurer) measure(X []dataset.Column, y dataset.Column, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := optionsValidate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	n := y.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: y cannot have 0 samples", ErrInput)
	}

	y = numericTarget(y)

	resolution, err := resolveTarget(m.table, opts.Objective, opts.InitScore, y)
	if err != nil {
		return nil, err
	}
	target, err := encodeTarget(y, resolution)
	if err != nil {
		return nil, err
	}

	feats, _, err := m.binner.Clean(X, opts.FeatureNames, opts.FeatureTypes, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	weights, err := validateWeights(opts.SampleWeight, n)
	if err != nil {
		return nil, err
	}

	scores, err := baselineScores(opts.InitScore, X, target.NClasses, resolution.Link)
	if err != nil {
		return nil, err
	}
	scores, err = validateInitScore(scores, target.NClasses, n)
	if err != nil {
		return nil, err
	}

	candidates, k, err := enumerateCandidates(len(feats), opts.Interactions)
	if err != nil {
		return nil, err
	}
	exclude, err := exclusionSet(opts.Exclude, len(feats))
	if err != nil {
		return nil, err
	}

	binTarget := features.Target{NClasses: target.NClasses, Classes: target.Indices, Values: target.Values}
	bins, err := m.binner.Construct(feats, binTarget, weights, opts.MaxInteractionBins, features.StrategyQuantile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	ds, err := m.binner.Materialize(bins, feats, binTarget, weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	req := ranking.Request{
		Dataset:        ds,
		Candidates:     candidates,
		Exclude:        exclude,
		MaxCardinality: ranking.MaxCardinality,
		MinSamplesLeaf: opts.MinSamplesLeaf,
		Objective:      resolution.Objective.String(),
		K:              k,
	}
	if scores != nil {
		req.InitScores = scores.data
		req.NScores = scores.cols
	}
	ranked, err := m.ranker.Rank(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	names := make([]string, len(bins))
	for i, b := range bins {
		names[i] = b.Name
	}
	return &Result{
		Interactions: formatResults(ranked),
		FeatureNames: names,
		Objective:    resolution.Objective.String(),
		NClasses:     target.NClasses,
		Classes:      target.Catalog,
	}, nil
}

func validateWeights(w []float64, n int) ([]float64, error) {
	if w == nil {
		return nil, nil
	}
	if len(w) != n {
		return nil, fmt.Errorf("%w: y has %d samples and sample_weight has %d samples", ErrInput, n, len(w))
	}
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: sample_weight %g at row %d must be finite and non-negative", ErrInput, v, i)
		}
	}
	return w, nil
}

func exclusionSet(pairs [][2]int, nFeatures int) (map[ranking.Pair]struct{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	set := make(map[ranking.Pair]struct{}, len(pairs))
	for _, p := range pairs {
		if p[0] < 0 || p[1] < 0 || p[0] >= nFeatures || p[1] >= nFeatures {
			return nil, fmt.Errorf("%w: excluded pair (%d, %d) refers to a feature outside [0, %d)", ErrInput, p[0], p[1], nFeatures)
		}
		set[ranking.Normalize(ranking.Pair(p))] = struct{}{}
	}
	return set, nil
}
