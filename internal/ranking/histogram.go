package ranking

import (
	"math"

	"fast-interactions/internal/features"
	"fast-interactions/internal/objective"
)

// gradients holds per-sample weighted first and second derivatives of the loss
// at the baseline score, one column per score.
type gradients struct {
	ds      *features.Dataset
	nScores int
	// grad and hess are row-major NSamples x nScores.
	grad []float64
	hess []float64
	// count is the row multiplicity (0 for rows outside the bag).
	count []int
}

func newGradients(ds *features.Dataset, bag []int8, init []float64, nScores int, loss objective.Loss) *gradients {
	n := ds.NSamples
	g := &gradients{
		ds:      ds,
		nScores: nScores,
		grad:    make([]float64, n*nScores),
		hess:    make([]float64, n*nScores),
		count:   make([]int, n),
	}

	scores := make([]float64, nScores)
	for i := 0; i < n; i++ {
		c := 1
		if bag != nil {
			c = int(bag[i])
			if c <= 0 {
				continue
			}
		}
		g.count[i] = c
		w := ds.Weight(i) * float64(c)

		for k := range scores {
			scores[k] = 0
			if init != nil {
				scores[k] = init[i*nScores+k]
			}
		}

		row := i * nScores
		switch {
		case ds.NClasses >= 3:
			objective.Softmax(scores, ds.Classes[i], g.grad[row:row+nScores], g.hess[row:row+nScores])
		case ds.NClasses == 1:
			// A single class leaves nothing to explain.
			g.grad[row], g.hess[row] = 0, 1
		case ds.NClasses == 2:
			g.grad[row], g.hess[row] = loss.Derivatives(scores[0], float64(ds.Classes[i]))
		default:
			g.grad[row], g.hess[row] = loss.Derivatives(scores[0], ds.Values[i])
		}
		for k := 0; k < nScores; k++ {
			g.grad[row+k] *= w
			g.hess[row+k] *= w
		}
	}
	return g
}

// strength returns the interaction score of features a and b: the largest,
// over all pairs of cuts (one per feature), of the squared non-additive
// contrast of the four Newton leaf values, scaled by its variance
// sum(1/H) and summed over scores. Every quadrant must hold at least minLeaf
// rows and a positive hessian.
func (g *gradients) strength(a, b, minLeaf int) (float64, error) {
	ds := g.ds
	na, nb := ds.BinCount(a), ds.BinCount(b)
	cells := na * nb
	k := g.nScores

	G := make([]float64, cells*k)
	H := make([]float64, cells*k)
	N := make([]int, cells)

	binsA, binsB := ds.Bins[a], ds.Bins[b]
	for i := 0; i < ds.NSamples; i++ {
		if g.count[i] == 0 {
			continue
		}
		cell := int(binsA[i])*nb + int(binsB[i])
		N[cell] += g.count[i]
		for s := 0; s < k; s++ {
			G[cell*k+s] += g.grad[i*k+s]
			H[cell*k+s] += g.hess[i*k+s]
		}
	}

	// Inclusive 2-D prefix sums.
	for x := 0; x < na; x++ {
		for y := 0; y < nb; y++ {
			cell := x*nb + y
			if x > 0 {
				N[cell] += N[cell-nb]
			}
			if y > 0 {
				N[cell] += N[cell-1]
			}
			if x > 0 && y > 0 {
				N[cell] -= N[cell-nb-1]
			}
			for s := 0; s < k; s++ {
				idx := cell*k + s
				if x > 0 {
					G[idx] += G[idx-nb*k]
					H[idx] += H[idx-nb*k]
				}
				if y > 0 {
					G[idx] += G[idx-k]
					H[idx] += H[idx-k]
				}
				if x > 0 && y > 0 {
					G[idx] -= G[idx-(nb+1)*k]
					H[idx] -= H[idx-(nb+1)*k]
				}
			}
		}
	}

	last := cells - 1
	right := func(x int) int { return x*nb + nb - 1 }
	bottom := func(y int) int { return (na-1)*nb + y }

	best := math.Inf(-1)
	for x := 0; x < na-1; x++ {
		for y := 0; y < nb-1; y++ {
			ll := x*nb + y
			nLL := N[ll]
			nLH := N[right(x)] - nLL
			nHL := N[bottom(y)] - nLL
			nHH := N[last] - nLL - nLH - nHL
			if nLL < minLeaf || nLH < minLeaf || nHL < minLeaf || nHH < minLeaf {
				continue
			}

			score, ok := 0.0, true
			for s := 0; s < k; s++ {
				gLL, hLL := G[ll*k+s], H[ll*k+s]
				gLH, hLH := G[right(x)*k+s]-gLL, H[right(x)*k+s]-hLL
				gHL, hHL := G[bottom(y)*k+s]-gLL, H[bottom(y)*k+s]-hLL
				gHH := G[last*k+s] - gLL - gLH - gHL
				hHH := H[last*k+s] - hLL - hLH - hHL
				if hLL <= 0 || hLH <= 0 || hHL <= 0 || hHH <= 0 {
					ok = false
					break
				}
				contrast := gLL/hLL - gLH/hLH - gHL/hHL + gHH/hHH
				score += contrast * contrast / (1/hLL + 1/hLH + 1/hHL + 1/hHH)
			}
			if ok && score > best {
				best = score
			}
		}
	}

	if math.IsInf(best, -1) {
		return 0, errDegenerate
	}
	return best, nil
}
