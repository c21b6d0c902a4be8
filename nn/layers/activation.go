package layers

import (
	"fmt"
	"math"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/polynomials"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Poly holds the definition of a polynomial approximation.
type Poly struct {
	Name   string
	Coeffs []float64
	// Tol drops coefficients with a smaller absolute value.
	Tol float64
}

// Activation is a layer that applies a polynomial to every slot.
type Activation struct {
	poly     Poly
	pruned   []float64
	schedule *polynomials.Schedule
	// plain[i] encodes coefficient i, nil when pruned
	plain []*ckkswrapper.PlainVector
}

// NewActivation encodes the surviving coefficients of poly through store.
func NewActivation(store *ckkswrapper.PlainStore, poly Poly) (*Activation, error) {
	if len(poly.Coeffs) < 1 {
		return nil, fmt.Errorf("activation %q: no coefficients: %w", poly.Name, utils.ErrPrecondition)
	}
	degree := max(len(poly.Coeffs)-1, 1)
	schedule, err := polynomials.PowerSchedule(degree)
	if err != nil {
		return nil, err
	}
	a := &Activation{
		poly:     poly,
		pruned:   polynomials.Prune(poly.Coeffs, poly.Tol),
		schedule: schedule,
		plain:    make([]*ckkswrapper.PlainVector, len(poly.Coeffs)),
	}
	for i, c := range poly.Coeffs {
		if i == 0 || math.Abs(c) >= poly.Tol {
			a.plain[i] = store.Constant(c)
		}
	}
	return a, nil
}

// Levels is the depth consumed by the surviving terms.
func (a *Activation) Levels() int {
	return a.schedule.EvalDepth(a.poly.Coeffs, a.poly.Tol)
}

func (a *Activation) Tag() string {
	return "activation:" + a.poly.Name
}

// Forward evaluates the polynomial homomorphically.
func (a *Activation) Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if ct == nil {
		return nil, fmt.Errorf("input ciphertext is nil: %w", utils.ErrPrecondition)
	}
	need := a.schedule.Needed(a.poly.Coeffs, a.poly.Tol)
	powers, err := ComputeAllPowers(eval, ct, a.schedule, need)
	if err != nil {
		return nil, err
	}
	return MultiplyAndAddCoeffs(eval, powers, a.plain, a.pruned, a.poly.Tol)
}

// ForwardPlain evaluates the pruned polynomial on every entry.
func (a *Activation) ForwardPlain(x []float64) ([]float64, error) {
	return polynomials.EvalVector(a.pruned, x), nil
}

// ComputeAllPowers returns x^0..x^d where only the powers marked in need are
// computed, each with a single relinearized product followed by a rescale.
// Unneeded entries, and entry 0, are nil. A nil need computes every power.
func ComputeAllPowers(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext, schedule *polynomials.Schedule, need []bool) ([]*rlwe.Ciphertext, error) {
	powers := make([]*rlwe.Ciphertext, schedule.Degree+1)
	powers[1] = ct
	for i := 2; i <= schedule.Degree; i++ {
		if need != nil && !need[i] {
			continue
		}
		l, r := schedule.Operands(i)
		if powers[l] == nil || powers[r] == nil {
			return nil, fmt.Errorf("power %d: operands %d and %d not computed: %w", i, l, r, utils.ErrPrecondition)
		}
		prod, err := eval.MulRelinNew(powers[l], powers[r])
		if err != nil {
			return nil, fmt.Errorf("power %d: %w", i, err)
		}
		if powers[i], err = ckkswrapper.Rescale(eval, prod); err != nil {
			return nil, fmt.Errorf("power %d: %w", i, err)
		}
	}
	return powers, nil
}

// MultiplyAndAddCoeffs computes sum_i coeffs[i] * powers[i]. Terms whose
// coefficient is below tol are skipped. Every term is brought to the default
// scale by its coefficient product and the running sum is dropped to each
// term's level before adding it, then the constant is added. When nothing but the constant survives,
// the result is powers[1] - powers[1] + c_0, built without any product.
func MultiplyAndAddCoeffs(eval ckkswrapper.Evaluator, powers []*rlwe.Ciphertext, plain []*ckkswrapper.PlainVector, coeffs []float64, tol float64) (*rlwe.Ciphertext, error) {
	if len(powers) < len(coeffs) || len(plain) != len(coeffs) {
		return nil, fmt.Errorf("%d powers and %d encoded coefficients for %d coefficients: %w",
			len(powers), len(plain), len(coeffs), utils.ErrPrecondition)
	}
	if len(powers) < 2 || powers[1] == nil {
		return nil, fmt.Errorf("missing input power: %w", utils.ErrPrecondition)
	}

	var terms []*rlwe.Ciphertext
	for i := 1; i < len(coeffs); i++ {
		if math.Abs(coeffs[i]) < tol {
			continue
		}
		if powers[i] == nil || plain[i] == nil {
			return nil, fmt.Errorf("coefficient %d has no power or encoding: %w", i, utils.ErrPrecondition)
		}
		term, err := ckkswrapper.MulPlainRescale(eval, powers[i], plain[i])
		if err != nil {
			return nil, fmt.Errorf("coefficient %d: %w", i, err)
		}
		terms = append(terms, term)
	}

	var out *rlwe.Ciphertext
	var err error
	if len(terms) == 0 {
		if out, err = eval.SubNew(powers[1], powers[1]); err != nil {
			return nil, fmt.Errorf("constant polynomial: %w", err)
		}
	} else {
		for _, term := range terms {
			if out == nil {
				out = term
				continue
			}
			ckkswrapper.AlignLevels(eval, out, term)
			if out, err = eval.AddNew(out, term); err != nil {
				return nil, fmt.Errorf("accumulate: %w", err)
			}
		}
	}
	if plain[0] == nil {
		return out, nil
	}
	return ckkswrapper.AddPlain(eval, out, plain[0])
}

// EvalPolynomial evaluates coeffs on ct with a throwaway Activation.
func EvalPolynomial(eval ckkswrapper.Evaluator, store *ckkswrapper.PlainStore, ct *rlwe.Ciphertext, coeffs []float64, tol float64) (*rlwe.Ciphertext, error) {
	a, err := NewActivation(store, Poly{Name: "poly", Coeffs: coeffs, Tol: tol})
	if err != nil {
		return nil, err
	}
	return a.Forward(eval, ct)
}
