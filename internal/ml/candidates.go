package ml

import (
	"fmt"
	"iter"

	"fast-interactions/internal/ranking"
)

// Interactions selects the candidate pairs: nil for all pairs, TopK for the K
// strongest of all pairs, or Pairs for an explicit list.
type Interactions interface {
	isInteractions()
}

// TopK keeps the K strongest of all pairs. TopK(0) keeps all of them.
type TopK int

// Pairs are exactly the pairs to score, in caller order. They are never
// trimmed.
type Pairs [][2]int

func (TopK) isInteractions()  {}
func (Pairs) isInteractions() {}

// allPairs yields every {i, j} with i < j in lexicographic order.
func allPairs(nFeatures int) iter.Seq[ranking.Pair] {
	return func(yield func(ranking.Pair) bool) {
		for i := 0; i < nFeatures; i++ {
			for j := i + 1; j < nFeatures; j++ {
				if !yield(ranking.Pair{i, j}) {
					return
				}
			}
		}
	}
}

// enumerateCandidates returns the candidate sequence and the number of
// results to keep (0 for all).
func enumerateCandidates(nFeatures int, sel Interactions) (iter.Seq[ranking.Pair], int, error) {
	switch sel := sel.(type) {
	case nil:
		return allPairs(nFeatures), 0, nil

	case TopK:
		if sel < 0 {
			return nil, 0, fmt.Errorf("%w: interactions must be non-negative, got %d", ErrInput, int(sel))
		}
		return allPairs(nFeatures), int(sel), nil

	case Pairs:
		seen := make(map[ranking.Pair]struct{}, len(sel))
		pairs := make([]ranking.Pair, len(sel))
		for i, p := range sel {
			if p[0] < 0 || p[1] < 0 || p[0] >= nFeatures || p[1] >= nFeatures {
				return nil, 0, fmt.Errorf("%w: interaction (%d, %d) refers to a feature outside [0, %d)", ErrInput, p[0], p[1], nFeatures)
			}
			if p[0] == p[1] {
				return nil, 0, fmt.Errorf("%w: interaction (%d, %d) pairs a feature with itself", ErrInput, p[0], p[1])
			}
			key := ranking.Normalize(ranking.Pair(p))
			if _, dup := seen[key]; dup {
				return nil, 0, fmt.Errorf("%w: interaction (%d, %d) is listed twice", ErrInput, p[0], p[1])
			}
			seen[key] = struct{}{}
			pairs[i] = ranking.Pair(p)
		}
		return func(yield func(ranking.Pair) bool) {
			for _, p := range pairs {
				if !yield(p) {
					return
				}
			}
		}, 0, nil

	default:
		return nil, 0, fmt.Errorf("%w: unsupported interactions %T", ErrInput, sel)
	}
}
