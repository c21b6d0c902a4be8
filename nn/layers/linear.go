package layers

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/linear"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Linear is a matrix-vector product in diagonal form, y = sum_i rot(x, i) * d_i + b.
type Linear struct {
	name  string
	raw   [][]float64
	diags []*ckkswrapper.PlainVector // nil for all-zero diagonals
	bias  *ckkswrapper.PlainVector
}

// NewLinear registers the diagonals and the optional bias with store.
// Zero diagonals other than the first are dropped; the first is always kept
// so an all-zero matrix still yields the bias.
func NewLinear(store *ckkswrapper.PlainStore, name string, diags [][]float64, bias []float64) (*Linear, error) {
	if len(diags) == 0 {
		return nil, fmt.Errorf("%s: no diagonals: %w", name, utils.ErrPrecondition)
	}
	l := &Linear{
		name:  name,
		raw:   make([][]float64, len(diags)),
		diags: make([]*ckkswrapper.PlainVector, len(diags)),
	}
	for i, d := range diags {
		l.raw[i] = append([]float64{}, d...)
		if i > 0 && linear.IsZero(d) {
			continue
		}
		v, err := store.Vector(d)
		if err != nil {
			return nil, fmt.Errorf("%s: diagonal %d: %w", name, i, err)
		}
		l.diags[i] = v
	}
	if bias != nil {
		v, err := store.Vector(bias)
		if err != nil {
			return nil, fmt.Errorf("%s: bias: %w", name, err)
		}
		l.bias = v
	}
	return l, nil
}

func (l *Linear) Levels() int { return 1 }

func (l *Linear) Tag() string { return "linear:" + l.name }

// RequiredRotations lists the rotations Forward performs.
func (l *Linear) RequiredRotations() []int {
	var rots []int
	for i, d := range l.diags {
		if i > 0 && d != nil {
			rots = append(rots, i)
		}
	}
	return rots
}

// Forward runs the diagonal product and adds the bias at the product's level.
func (l *Linear) Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := MultiplyDiagonals(eval, ct, l.diags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.name, err)
	}
	if l.bias == nil {
		return out, nil
	}
	return ckkswrapper.AddPlain(eval, out, l.bias)
}

func (l *Linear) ForwardPlain(x []float64) ([]float64, error) {
	y, err := linear.MatVecDiagonals(l.raw, x)
	if err != nil {
		return nil, err
	}
	if l.bias != nil {
		addInto(y, l.bias.Values())
	}
	return y, nil
}

// MultiplyDiagonals computes sum_i rot(ct, i) * diags[i]. Nil entries are
// skipped along with their rotation. Each product is encoded at the rotated
// ciphertext's level with the scale that lands the rescaled term on the
// default scale, so terms add without adjustment.
func MultiplyDiagonals(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext, diags []*ckkswrapper.PlainVector) (*rlwe.Ciphertext, error) {
	var out *rlwe.Ciphertext
	for i, d := range diags {
		if d == nil {
			continue
		}
		rotated := ct
		if i > 0 {
			var err error
			if rotated, err = eval.RotateNew(ct, i); err != nil {
				return nil, fmt.Errorf("rotate %d: %w", i, err)
			}
		}
		term, err := ckkswrapper.MulPlainRescale(eval, rotated, d)
		if err != nil {
			return nil, fmt.Errorf("diagonal %d: %w", i, err)
		}
		if out == nil {
			out = term
			continue
		}
		if out, err = eval.AddNew(out, term); err != nil {
			return nil, fmt.Errorf("diagonal %d: %w", i, err)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("no non-zero diagonal: %w", utils.ErrPrecondition)
	}
	return out, nil
}

// addInto adds v to the first len(v) entries of x.
func addInto(x, v []float64) {
	for i := 0; i < len(v) && i < len(x); i++ {
		x[i] += v[i]
	}
}
