// Package ranking scores candidate feature pairs over a binned dataset. The
// FAST ranker builds a joint gradient/hessian histogram per pair and measures
// how far the best 2x2 split of that histogram departs from an additive fit.
package ranking

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"runtime"
	"sort"
	"time"

	"fast-interactions/internal/features"
	"fast-interactions/internal/objective"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// MaxCardinality is the joint cell ceiling for one candidate pair.
const MaxCardinality = 1 << 20

var (
	// ErrInvalidRequest marks a request the ranker cannot run.
	ErrInvalidRequest = errors.New("ranking: invalid request")

	errDegenerate = errors.New("ranking: no split satisfies the leaf constraints")
)

// Pair is a pair of feature indices.
type Pair [2]int

// Ranked is one scored candidate. Pair is in reversed order: the second
// feature of the candidate comes first.
type Ranked struct {
	Pair     Pair
	Strength float64
}

// Request describes one ranking run.
type Request struct {
	Dataset *features.Dataset
	// Bag is a per-row multiplicity; rows with a non-positive entry are left
	// out. nil uses every row once.
	Bag []int8
	// InitScores is a row-major NSamples x NScores baseline, or nil.
	InitScores []float64
	NScores    int
	Candidates iter.Seq[Pair]
	// Exclude holds unordered pairs that must not be scored.
	Exclude        map[Pair]struct{}
	MaxCardinality int
	MinSamplesLeaf int
	Objective      string
	// K trims the result to the K strongest pairs; 0 keeps all.
	K int
}

// MetricsInterface receives ranking run metrics.
type MetricsInterface interface {
	RankingRunsInc()
	RankingFailuresInc()
	CandidatesEvaluatedAdd(int)
	CandidatesSkippedAdd(int)
	CandidatesDegenerateAdd(int)
	RankingLatencyObserve(float64)
}

// FAST is the histogram-based interaction ranker. It is safe for concurrent
// use.
type FAST struct {
	table   *objective.Table
	workers int
	metrics MetricsInterface
}

// NewFAST creates a ranker that resolves objectives through table.
func NewFAST(table *objective.Table) *FAST {
	return NewFASTWithMetrics(table, nil, 0)
}

// NewFASTWithMetrics creates a ranker that reports to metrics (may be nil)
// and scores up to workers candidates at once (0 means GOMAXPROCS).
func NewFASTWithMetrics(table *objective.Table, metrics MetricsInterface, workers int) *FAST {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &FAST{table: table, workers: workers, metrics: metrics}
}

// Normalize returns the pair with the smaller index first.
func Normalize(p Pair) Pair {
	if p[0] > p[1] {
		return Pair{p[1], p[0]}
	}
	return p
}

// Rank scores every candidate that is not excluded and whose joint cell count
// fits the ceiling. Results are sorted by descending strength, ties keeping
// candidate order, and trimmed to K when K > 0.
func (f *FAST) Rank(req Request) ([]Ranked, error) {
	start := time.Now()
	if f.metrics != nil {
		f.metrics.RankingRunsInc()
	}

	out, err := f.rank(req)
	if err != nil {
		if f.metrics != nil {
			f.metrics.RankingFailuresInc()
		}
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.RankingLatencyObserve(time.Since(start).Seconds())
	}
	return out, nil
}

func (f *FAST) rank(req Request) ([]Ranked, error) {
	ds := req.Dataset
	if ds == nil {
		return nil, fmt.Errorf("%w: no dataset", ErrInvalidRequest)
	}
	if req.MinSamplesLeaf < 1 {
		return nil, fmt.Errorf("%w: min samples leaf must be at least 1, got %d", ErrInvalidRequest, req.MinSamplesLeaf)
	}
	if req.MaxCardinality < 1 {
		return nil, fmt.Errorf("%w: max cardinality must be positive, got %d", ErrInvalidRequest, req.MaxCardinality)
	}
	if req.K < 0 {
		return nil, fmt.Errorf("%w: negative output count %d", ErrInvalidRequest, req.K)
	}
	if req.Bag != nil && len(req.Bag) != ds.NSamples {
		return nil, fmt.Errorf("%w: bag has %d rows for %d samples", ErrInvalidRequest, len(req.Bag), ds.NSamples)
	}

	obj, err := f.table.Parse(req.Objective)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	loss, err := f.table.Loss(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	nScores := 1
	if ds.NClasses >= 3 {
		nScores = ds.NClasses
	}
	if req.InitScores != nil {
		if req.NScores != nScores || len(req.InitScores) != ds.NSamples*nScores {
			return nil, fmt.Errorf("%w: init scores have %d values in %d columns, want %d rows x %d", ErrInvalidRequest, len(req.InitScores), req.NScores, ds.NSamples, nScores)
		}
	}

	g := newGradients(ds, req.Bag, req.InitScores, nScores, loss)

	var cands []Pair
	skipped := 0
	if req.Candidates != nil {
		for p := range req.Candidates {
			if p[0] < 0 || p[1] < 0 || p[0] >= ds.NumFeatures() || p[1] >= ds.NumFeatures() {
				return nil, fmt.Errorf("%w: pair (%d, %d) outside %d features", ErrInvalidRequest, p[0], p[1], ds.NumFeatures())
			}
			if p[0] == p[1] {
				return nil, fmt.Errorf("%w: pair (%d, %d) repeats a feature", ErrInvalidRequest, p[0], p[1])
			}
			if _, ok := req.Exclude[Normalize(p)]; ok {
				continue
			}
			if ds.BinCount(p[0])*ds.BinCount(p[1]) > req.MaxCardinality {
				skipped++
				continue
			}
			cands = append(cands, p)
		}
	}

	results := make([]Ranked, len(cands))
	degenerate := make([]bool, len(cands))
	var eg errgroup.Group
	eg.SetLimit(f.workers)
	for i, p := range cands {
		eg.Go(func() error {
			s, err := g.strength(p[0], p[1], req.MinSamplesLeaf)
			if err != nil || math.IsNaN(s) || math.IsInf(s, 0) {
				s = 0
				degenerate[i] = true
			}
			results[i] = Ranked{Pair: Pair{p[1], p[0]}, Strength: s}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	nDegenerate := 0
	for _, d := range degenerate {
		if d {
			nDegenerate++
		}
	}
	if f.metrics != nil {
		f.metrics.CandidatesEvaluatedAdd(len(cands))
		f.metrics.CandidatesSkippedAdd(skipped)
		f.metrics.CandidatesDegenerateAdd(nDegenerate)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Strength > results[j].Strength
	})
	if req.K > 0 && len(results) > req.K {
		results = results[:req.K]
	}

	log.Debug().
		Str("objective", obj.String()).
		Int("candidates", len(cands)).
		Int("skipped", skipped).
		Int("degenerate", nDegenerate).
		Int("returned", len(results)).
		Msg("Ranked interaction candidates")

	return results, nil
}
