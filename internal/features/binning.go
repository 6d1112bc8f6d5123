package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"fast-interactions/internal/dataset"

	"gonum.org/v1/gonum/stat"
)

// StrategyQuantile is the binning strategy accepted by Construct.
const StrategyQuantile = "quantile"

// Bins holds the bin edges of one feature. Bin 0 collects missing values (and,
// for categorical features, categories that did not get a bin of their own).
type Bins struct {
	Name string
	Type Type
	// Cuts are ascending cut points of a continuous feature. A value v falls in
	// bin 1 + (number of cuts <= v).
	Cuts []float64
	// Categories of a nominal or ordinal feature; Categories[k] is bin k+1.
	Categories []string
}

// Count returns the number of bins, including the missing bin.
func (b Bins) Count() int {
	if b.Type == Continuous {
		return len(b.Cuts) + 2
	}
	return len(b.Categories) + 1
}

// Index returns the bin of a continuous value.
func (b Bins) Index(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return 1 + sort.Search(len(b.Cuts), func(i int) bool { return b.Cuts[i] > v })
}

// IndexLabel returns the bin of a categorical label.
func (b Bins) IndexLabel(s string) int {
	for k, c := range b.Categories {
		if c == s {
			return k + 1
		}
	}
	return 0
}

// Binner is the default binning collaborator. It is stateless and safe for
// concurrent use.
type Binner struct{}

// NewBinner creates a binner.
func NewBinner() *Binner {
	return &Binner{}
}

// Clean is the feature cleaning step; see Clean.
func (b *Binner) Clean(X []dataset.Column, names, types []string, nSamples int) ([]Feature, int, error) {
	return Clean(X, names, types, nSamples)
}

// Construct builds quantile bin edges for every feature so that no feature
// has more than maxBins bins, missing bin included. Quantiles are weighted by
// the sample weights when given.
func (b *Binner) Construct(feats []Feature, y Target, weights []float64, maxBins int, strategy string) ([]Bins, error) {
	if maxBins < 2 {
		return nil, fmt.Errorf("%w: max bins must be at least 2, got %d", ErrInvalidInput, maxBins)
	}
	if strategy != StrategyQuantile {
		return nil, fmt.Errorf("%w: unknown binning strategy %q", ErrInvalidInput, strategy)
	}
	for _, f := range feats {
		if n := f.Len(); n != y.Len() {
			return nil, fmt.Errorf("%w: feature %q has %d samples and y has %d", ErrInvalidInput, f.Name, n, y.Len())
		}
	}
	if weights != nil && len(weights) != y.Len() {
		return nil, fmt.Errorf("%w: %d weights for %d samples", ErrInvalidInput, len(weights), y.Len())
	}

	valueBins := maxBins - 1
	out := make([]Bins, len(feats))
	for i, f := range feats {
		bins := Bins{Name: f.Name, Type: f.Type}
		if f.Type == Continuous {
			bins.Cuts = quantileCuts(f.Values, weights, valueBins)
		} else {
			bins.Categories = topCategories(f.Labels, f.Type, valueBins)
		}
		out[i] = bins
	}
	return out, nil
}

// Len returns the number of samples in the feature.
func (f Feature) Len() int {
	if f.Type == Continuous {
		return len(f.Values)
	}
	return len(f.Labels)
}

type weighted struct {
	v, w float64
}

func quantileCuts(vals, weights []float64, valueBins int) []float64 {
	var pts []weighted
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		pts = append(pts, weighted{v, w})
	}
	if len(pts) == 0 {
		return nil
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].v < pts[j].v })

	distinct := make([]float64, 0, len(pts))
	for i, p := range pts {
		if i == 0 || p.v != pts[i-1].v {
			distinct = append(distinct, p.v)
		}
	}
	if len(distinct) <= valueBins {
		return distinct[1:]
	}

	xs := make([]float64, 0, len(pts))
	ws := make([]float64, 0, len(pts))
	for _, p := range pts {
		if p.w > 0 {
			xs = append(xs, p.v)
			ws = append(ws, p.w)
		}
	}
	if len(xs) == 0 {
		for _, p := range pts {
			xs = append(xs, p.v)
		}
		ws = nil
	}

	var cuts []float64
	for k := 1; k < valueBins; k++ {
		q := stat.Quantile(float64(k)/float64(valueBins), stat.Empirical, xs, ws)
		if q <= distinct[0] {
			continue
		}
		if len(cuts) > 0 && q <= cuts[len(cuts)-1] {
			continue
		}
		cuts = append(cuts, q)
	}
	return cuts
}

// topCategories keeps the valueBins most frequent labels (ties by label) and
// orders them lexically, or numerically for ordinal features whose labels are
// all numbers.
func topCategories(labels []string, typ Type, valueBins int) []string {
	counts := make(map[string]int)
	for _, s := range labels {
		if s != "" {
			counts[s]++
		}
	}
	cats := make([]string, 0, len(counts))
	for s := range counts {
		cats = append(cats, s)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})
	if len(cats) > valueBins {
		cats = cats[:valueBins]
	}

	numeric := typ == Ordinal
	nums := make(map[string]float64, len(cats))
	for _, c := range cats {
		if !numeric {
			break
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[c] = v
	}
	if numeric {
		sort.Slice(cats, func(i, j int) bool { return nums[cats[i]] < nums[cats[j]] })
	} else {
		sort.Strings(cats)
	}
	return cats
}
