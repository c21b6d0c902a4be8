package cryptotree

import (
	"slices"
	"sort"

	"github.com/dhuynh95/cryptotree/linear"
	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/polynomials"
)

// ActivationDepth is the number of levels one activation consumes.
func ActivationDepth(act layers.Poly) (int, error) {
	s, err := polynomials.PowerSchedule(max(len(act.Coeffs)-1, 1))
	if err != nil {
		return 0, err
	}
	return s.EvalDepth(act.Coeffs, act.Tol), nil
}

// PipelineDepth is the depth of compare, match and decide:
// activation + 1 (matcher product) + activation + 1 (head product).
func PipelineDepth(act layers.Poly) (int, error) {
	d, err := ActivationDepth(act)
	if err != nil {
		return 0, err
	}
	return 2*d + 2, nil
}

// Rotations lists the Galois rotations an evaluation of b needs: one per
// non-zero matcher diagonal, plus the sum-reduction steps when reduce is set.
func Rotations(b *WeightBundle, reduce bool) []int {
	var rots []int
	for i, d := range b.W1 {
		if i > 0 && !linear.IsZero(d) {
			rots = append(rots, i)
		}
	}
	if reduce {
		for _, r := range linear.ReduceSteps(b.Width()) {
			if !slices.Contains(rots, r) {
				rots = append(rots, r)
			}
		}
	}
	sort.Ints(rots)
	return rots
}
