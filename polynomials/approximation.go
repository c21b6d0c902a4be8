package polynomials

import (
	"fmt"
	"math"
	"math/big"

	"github.com/dhuynh95/cryptotree/utils"

	"github.com/ALTree/bigfloat"
	"github.com/tuneinsight/lattigo/v6/utils/bignum"
)

// Precision is the mantissa size, in bits, used for the Chebyshev fit.
const Precision uint = 128

// Function is a real function evaluated in arbitrary precision.
type Function func(x *big.Float) *big.Float

// Activation pairs a high-precision function with its float64 counterpart.
type Activation struct {
	Name  string
	Big   Function
	Float func(float64) float64
}

// Sigmoid returns 1 / (1 + exp(-x)).
func Sigmoid(x *big.Float) *big.Float {
	prec := x.Prec()
	if prec == 0 {
		prec = Precision
	}
	e := new(big.Float).SetPrec(prec).Neg(x)
	e = bigfloat.Exp(e)
	e.Add(e, bignum.NewFloat(1, prec))
	return new(big.Float).SetPrec(prec).Quo(bignum.NewFloat(1, prec), e)
}

// Tanh returns the hyperbolic tangent of x.
func Tanh(x *big.Float) *big.Float {
	return bignum.TanH(x)
}

// SigmoidFloat is Sigmoid in float64.
func SigmoidFloat(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// ActivationByName resolves "sigmoid" or "tanh".
func ActivationByName(name string) (Activation, error) {
	switch name {
	case "sigmoid":
		return Activation{Name: name, Big: Sigmoid, Float: SigmoidFloat}, nil
	case "tanh":
		return Activation{Name: name, Big: Tanh, Float: math.Tanh}, nil
	}
	return Activation{}, fmt.Errorf("unknown activation %q: %w", name, utils.ErrPrecondition)
}

// Approximate fits x -> f(dilation*x) on [-bound, bound] by Chebyshev
// interpolation of the given degree and returns the coefficients c_0..c_degree
// of the same polynomial in the monomial basis.
//
// Inputs are expected to stay inside [-bound, bound]; outside it the
// polynomial diverges quickly.
func Approximate(f Function, dilation float64, degree int, bound float64) ([]float64, error) {
	switch {
	case f == nil:
		return nil, fmt.Errorf("approximate: nil function: %w", utils.ErrPrecondition)
	case degree < 1:
		return nil, fmt.Errorf("approximate: degree %d < 1: %w", degree, utils.ErrPrecondition)
	case !(bound > 0):
		return nil, fmt.Errorf("approximate: bound %g must be positive: %w", bound, utils.ErrPrecondition)
	case !(dilation > 0):
		return nil, fmt.Errorf("approximate: dilation %g must be positive: %w", dilation, utils.ErrPrecondition)
	}

	a := bignum.NewFloat(dilation, Precision)
	dilated := func(x *big.Float) *big.Float {
		y := new(big.Float).SetPrec(Precision).Mul(x, a)
		return f(y)
	}

	interval := bignum.Interval{
		Nodes: degree,
		A:     *bignum.NewFloat(-bound, Precision),
		B:     *bignum.NewFloat(bound, Precision),
	}
	pol := bignum.ChebyshevApproximation(dilated, interval)

	cheb := make([]*big.Float, degree+1)
	for k := range cheb {
		cheb[k] = new(big.Float).SetPrec(Precision)
		if k < len(pol.Coeffs) && pol.Coeffs[k][0] != nil {
			cheb[k].Set(pol.Coeffs[k][0])
		}
	}

	mono := chebyshevToMonomial(cheb, -bound, bound)
	coeffs := make([]float64, len(mono))
	for i, c := range mono {
		coeffs[i], _ = c.Float64()
	}
	return coeffs, nil
}

// chebyshevToMonomial expands sum_k cheb[k] T_k(u), with u = alpha*x + beta
// mapping [lo, hi] onto [-1, 1], into coefficients of x^0..x^d.
func chebyshevToMonomial(cheb []*big.Float, lo, hi float64) []*big.Float {
	n := len(cheb)
	newPoly := func() []*big.Float {
		p := make([]*big.Float, n)
		for i := range p {
			p[i] = new(big.Float).SetPrec(Precision)
		}
		return p
	}

	width := new(big.Float).SetPrec(Precision).Sub(bignum.NewFloat(hi, Precision), bignum.NewFloat(lo, Precision))
	alpha := new(big.Float).SetPrec(Precision).Quo(bignum.NewFloat(2, Precision), width)
	beta := new(big.Float).SetPrec(Precision).Add(bignum.NewFloat(hi, Precision), bignum.NewFloat(lo, Precision))
	beta.Neg(beta)
	beta.Quo(beta, width)

	// mulU returns (alpha*x + beta) * p, truncated to n terms.
	mulU := func(p []*big.Float) []*big.Float {
		out := newPoly()
		tmp := new(big.Float).SetPrec(Precision)
		for i := 0; i < n; i++ {
			out[i].Add(out[i], tmp.Mul(beta, p[i]))
			if i+1 < n {
				out[i+1].Add(out[i+1], tmp.Mul(alpha, p[i]))
			}
		}
		return out
	}

	acc := newPoly()
	addScaled := func(p []*big.Float, c *big.Float) {
		tmp := new(big.Float).SetPrec(Precision)
		for i := range p {
			acc[i].Add(acc[i], tmp.Mul(c, p[i]))
		}
	}

	prev := newPoly()
	prev[0].SetInt64(1)
	addScaled(prev, cheb[0])
	if n == 1 {
		return acc
	}

	cur := mulU(prev)
	addScaled(cur, cheb[1])

	two := bignum.NewFloat(2, Precision)
	for k := 2; k < n; k++ {
		next := mulU(cur)
		for i := range next {
			next[i].Mul(next[i], two)
			next[i].Sub(next[i], prev[i])
		}
		addScaled(next, cheb[k])
		prev, cur = cur, next
	}
	return acc
}

// Eval evaluates sum_i coeffs[i] * x^i with Horner's rule.
func Eval(coeffs []float64, x float64) float64 {
	res := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		res = res*x + coeffs[i]
	}
	return res
}

// EvalVector applies Eval to every entry of xs.
func EvalVector(coeffs []float64, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = Eval(coeffs, x)
	}
	return out
}
