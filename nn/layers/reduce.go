package layers

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/linear"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// SumReduce adds ct to its rotations by 1, 2, 4, ... below width. Slot 0
// then holds the sum of the first width slots, assuming the others are zero.
func SumReduce(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext, width int) (*rlwe.Ciphertext, error) {
	out := ct
	for _, step := range linear.ReduceSteps(width) {
		rot, err := eval.RotateNew(out, step)
		if err != nil {
			return nil, fmt.Errorf("sum reduce: rotate %d: %w", step, err)
		}
		if out, err = eval.AddNew(out, rot); err != nil {
			return nil, fmt.Errorf("sum reduce: %w", err)
		}
	}
	return out, nil
}

// DotProductPlain puts <ct, v> over the first width slots into slot 0.
func DotProductPlain(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext, v *ckkswrapper.PlainVector, width int) (*rlwe.Ciphertext, error) {
	prod, err := ckkswrapper.MulPlainRescale(eval, ct, v)
	if err != nil {
		return nil, fmt.Errorf("dot product: %w", err)
	}
	return SumReduce(eval, prod, width)
}

// Reduce is SumReduce as a pipeline stage.
type Reduce struct {
	Width int
}

func (r *Reduce) Levels() int { return 0 }

func (r *Reduce) Tag() string { return "reduce" }

// RequiredRotations lists the rotations Forward performs.
func (r *Reduce) RequiredRotations() []int {
	return linear.ReduceSteps(r.Width)
}

func (r *Reduce) Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return SumReduce(eval, ct, r.Width)
}

func (r *Reduce) ForwardPlain(x []float64) ([]float64, error) {
	return linear.SumReduce(x, r.Width), nil
}
