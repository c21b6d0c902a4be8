package tree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/mat"
)

// LinearLayer computes Weight*x + Bias. Rows of Weight are outputs.
type LinearLayer struct {
	Weight *mat.Dense
	Bias   []float64
}

// NewLinearLayer checks the bias matches the output count.
func NewLinearLayer(w *mat.Dense, b []float64) (LinearLayer, error) {
	r, _ := w.Dims()
	if len(b) != r {
		return LinearLayer{}, fmt.Errorf("bias has %d entries for %d outputs: %w", len(b), r, utils.ErrPrecondition)
	}
	return LinearLayer{Weight: w, Bias: append([]float64{}, b...)}, nil
}

// Dims returns (outputs, inputs).
func (l LinearLayer) Dims() (int, int) {
	return l.Weight.Dims()
}

// Forward returns Weight*x + Bias.
func (l LinearLayer) Forward(x []float64) ([]float64, error) {
	r, c := l.Weight.Dims()
	if len(x) != c {
		return nil, fmt.Errorf("layer takes %d inputs, got %d: %w", c, len(x), utils.ErrPrecondition)
	}
	var y mat.VecDense
	y.MulVec(l.Weight, mat.NewVecDense(c, append([]float64{}, x...)))
	out := make([]float64, r)
	for i := range out {
		out[i] = y.AtVec(i) + l.Bias[i]
	}
	return out, nil
}
