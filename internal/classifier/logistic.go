package classifier

import (
	"errors"
	"fmt"
	"math"
)

// FitOptions tune logistic regression training.
type FitOptions struct {
	// C is the inverse L2 regularization strength.
	C float64
	// MaxIter caps gradient steps.
	MaxIter int
	// Tolerance stops training once the gradient norm falls below it.
	Tolerance float64
}

func (o FitOptions) withDefaults() FitOptions {
	if o.C <= 0 {
		o.C = 1
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 5000
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-6
	}
	return o
}

// Logistic is a fitted binary logistic regression. The intercept is not
// regularized.
type Logistic struct {
	Weights []float64
	Bias    float64
}

// Probability returns P(label = 1 | x).
func (l *Logistic) Probability(x SparseVector) float64 {
	return sigmoid(l.decision(x))
}

func (l *Logistic) decision(x SparseVector) float64 {
	z := l.Bias
	for i, idx := range x.Indices {
		if idx < len(l.Weights) {
			z += l.Weights[idx] * x.Values[i]
		}
	}
	return z
}

// FitLogistic minimizes ||w||²/2 + C·Σ logloss with accelerated gradient
// descent. Iteration order is fixed, so identical inputs give identical models.
func FitLogistic(xs []SparseVector, ys []int, dim int, opts FitOptions) (*Logistic, error) {
	if len(xs) == 0 {
		return nil, errors.New("no training samples")
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("sample count %d does not match label count %d", len(xs), len(ys))
	}
	var positives int
	for _, y := range ys {
		switch y {
		case 0:
		case 1:
			positives++
		default:
			return nil, fmt.Errorf("label %d is not binary", y)
		}
	}
	if positives == 0 || positives == len(ys) {
		return nil, errors.New("training labels must contain both classes")
	}
	opts = opts.withDefaults()

	maxNorm := 0.0
	for _, x := range xs {
		var sq float64
		for _, v := range x.Values {
			sq += v * v
		}
		maxNorm = math.Max(maxNorm, sq)
	}
	// Lipschitz bound of the gradient, counting the bias as a unit feature.
	lipschitz := 1 + opts.C*float64(len(xs))*(maxNorm+1)/4
	step := 1 / lipschitz

	n := dim + 1
	theta := make([]float64, n)
	prev := make([]float64, n)
	look := make([]float64, n)
	grad := make([]float64, n)
	t := 1.0

	for iter := 0; iter < opts.MaxIter; iter++ {
		gradient(look, xs, ys, dim, opts.C, grad)
		if norm(grad) < opts.Tolerance {
			copy(theta, look)
			break
		}
		copy(prev, theta)
		for i := range theta {
			theta[i] = look[i] - step*grad[i]
		}
		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		momentum := (t - 1) / tNext
		for i := range look {
			look[i] = theta[i] + momentum*(theta[i]-prev[i])
		}
		t = tNext
	}

	return &Logistic{Weights: append([]float64(nil), theta[:dim]...), Bias: theta[dim]}, nil
}

func gradient(theta []float64, xs []SparseVector, ys []int, dim int, c float64, out []float64) {
	for i := 0; i < dim; i++ {
		out[i] = theta[i]
	}
	out[dim] = 0
	model := Logistic{Weights: theta[:dim], Bias: theta[dim]}
	for s, x := range xs {
		residual := c * (sigmoid(model.decision(x)) - float64(ys[s]))
		for i, idx := range x.Indices {
			out[idx] += residual * x.Values[i]
		}
		out[dim] += residual
	}
}

func norm(v []float64) float64 {
	var sq float64
	for _, x := range v {
		sq += x * x
	}
	return math.Sqrt(sq)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
