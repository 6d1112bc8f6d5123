package objective

import "math"

// maxExp caps exponents so exp never overflows float64.
const maxExp = 700.0

// minHessian keeps second derivatives strictly positive.
const minHessian = 1e-16

// Loss yields the first and second derivative of a per-sample loss with
// respect to the raw score. For binary classification the target is the class
// index (0 or 1).
type Loss interface {
	Derivatives(score, target float64) (grad, hess float64)
}

func clampExp(x float64) float64 {
	return math.Exp(math.Max(-maxExp, math.Min(x, maxExp)))
}

type squaredError struct{}

func (squaredError) Derivatives(score, target float64) (float64, float64) {
	return score - target, 1
}

type logistic struct{}

func (logistic) Derivatives(score, target float64) (float64, float64) {
	p := 1 / (1 + clampExp(-score))
	return p - target, math.Max(minHessian, p*(1-p))
}

type poisson struct{}

func (poisson) Derivatives(score, target float64) (float64, float64) {
	mu := clampExp(score)
	return mu - target, math.Max(minHessian, mu)
}

type gamma struct{}

func (gamma) Derivatives(score, target float64) (float64, float64) {
	r := target * clampExp(-score)
	return 1 - r, math.Max(minHessian, r)
}

type tweedie struct{ power float64 }

func (t tweedie) Derivatives(score, target float64) (float64, float64) {
	p := t.power
	a := clampExp((1 - p) * score)
	b := clampExp((2 - p) * score)
	grad := -target*a + b
	hess := -target*(1-p)*a + (2-p)*b
	return grad, math.Max(minHessian, hess)
}

type pseudoHuber struct{ delta float64 }

func (h pseudoHuber) Derivatives(score, target float64) (float64, float64) {
	r := (score - target) / h.delta
	s := 1 + r*r
	return (score - target) / math.Sqrt(s), math.Max(minHessian, 1/(s*math.Sqrt(s)))
}

// squaredErrorLog is squared error on the exp(score) scale, with a
// Gauss-Newton hessian.
type squaredErrorLog struct{}

func (squaredErrorLog) Derivatives(score, target float64) (float64, float64) {
	mu := clampExp(score)
	return (mu - target) * mu, math.Max(minHessian, mu*mu)
}

// Softmax writes multiclass log-loss derivatives for one sample into grad and
// hess, which must have len(scores) elements. class is the true class index.
func Softmax(scores []float64, class int, grad, hess []float64) {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	var sum float64
	for k, s := range scores {
		grad[k] = math.Exp(s - maxScore)
		sum += grad[k]
	}
	for k := range scores {
		p := grad[k] / sum
		hess[k] = math.Max(minHessian, p*(1-p))
		if k == class {
			p -= 1
		}
		grad[k] = p
	}
}

// InverseLink maps a value on the target's natural scale back to a raw score.
// It returns NaN where the link is undefined (log of a non-positive value,
// logit outside (0, 1)).
func InverseLink(l Link, v float64) float64 {
	switch l {
	case LinkLog:
		if v <= 0 {
			return math.NaN()
		}
		return math.Log(v)
	case LinkLogit:
		if v <= 0 || v >= 1 {
			return math.NaN()
		}
		return math.Log(v / (1 - v))
	default:
		return v
	}
}
