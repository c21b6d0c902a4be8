package ckkswrapper

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// CheckDepth fails with utils.ErrDepthExhausted when params cannot absorb
// required rescales starting from a fresh ciphertext.
func CheckDepth(params ckks.Parameters, required int) error {
	if params.MaxLevel() < required {
		return fmt.Errorf("modulus chain has %d levels, pipeline needs %d: %w",
			params.MaxLevel(), required, utils.ErrDepthExhausted)
	}
	return nil
}

// LevelsRemaining returns how many rescales ct can still absorb.
func LevelsRemaining(ct *rlwe.Ciphertext) int {
	return ct.Level()
}

// Rescale rescales ct into a new ciphertext one level down.
// A ciphertext already at level 0 reports utils.ErrDepthExhausted; any
// other backend failure is returned wrapped.
func Rescale(eval Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	params := eval.GetParameters()
	if ct.Level() < params.LevelsConsumedPerRescaling() {
		return nil, fmt.Errorf("cannot rescale at level %d: %w", ct.Level(), utils.ErrDepthExhausted)
	}
	out := ckks.NewCiphertext(*params, ct.Degree(), ct.Level()-params.LevelsConsumedPerRescaling())
	if err := eval.Rescale(ct, out); err != nil {
		return nil, fmt.Errorf("rescale: %w", err)
	}
	return out, nil
}

// ExactScale returns the plaintext scale s such that ct.Scale * s, divided by
// the modulus consumed at the next rescale, equals target.
func ExactScale(params ckks.Parameters, ct *rlwe.Ciphertext, target rlwe.Scale) rlwe.Scale {
	q := rlwe.NewScale(1)
	for i := 0; i < params.LevelsConsumedPerRescaling() && ct.Level()-i >= 0; i++ {
		q = q.Mul(rlwe.NewScale(params.Q()[ct.Level()-i]))
	}
	return target.Mul(q).Div(ct.Scale)
}

// MulPlainRescale multiplies ct by v encoded at ct's level with an exact scale,
// rescales, and pins the result scale to the default scale.
func MulPlainRescale(eval Evaluator, ct *rlwe.Ciphertext, v *PlainVector) (*rlwe.Ciphertext, error) {
	params := eval.GetParameters()
	if ct.Level() < params.LevelsConsumedPerRescaling() {
		return nil, fmt.Errorf("cannot multiply at level %d: %w", ct.Level(), utils.ErrDepthExhausted)
	}
	target := params.DefaultScale()
	pt, err := v.At(ct.Level(), ExactScale(*params, ct, target))
	if err != nil {
		return nil, err
	}
	prod, err := eval.MulNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("mul plain: %w", err)
	}
	out, err := Rescale(eval, prod)
	if err != nil {
		return nil, err
	}
	out.Scale = target
	return out, nil
}

// AddPlain adds v encoded at ct's level and scale.
func AddPlain(eval Evaluator, ct *rlwe.Ciphertext, v *PlainVector) (*rlwe.Ciphertext, error) {
	pt, err := v.At(ct.Level(), ct.Scale)
	if err != nil {
		return nil, err
	}
	out, err := eval.AddNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("add plain: %w", err)
	}
	return out, nil
}

// AlignLevels drops the higher of a and b to the other's level, in place.
// Both must be owned by the caller.
func AlignLevels(eval Evaluator, a, b *rlwe.Ciphertext) {
	switch {
	case a.Level() > b.Level():
		eval.DropLevel(a, a.Level()-b.Level())
	case b.Level() > a.Level():
		eval.DropLevel(b, b.Level()-a.Level())
	}
}
