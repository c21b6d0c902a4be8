package polynomials

import (
	"fmt"
	"math"

	"github.com/dhuynh95/cryptotree/utils"
)

// Schedule is a multiplication ladder computing x^2..x^d, one product per power.
// Power i is Left[i] * (i - Left[i]); Levels[i] is the number of rescales
// separating x^i from x.
type Schedule struct {
	Degree int
	Levels []int
	Left   []int
}

// PowerSchedule builds the ladder for degree d. For each i >= 2 it picks the
// split j in [1, i/2] minimising max(level[j], level[i-j]) + 1, keeping the
// first minimum.
func PowerSchedule(degree int) (*Schedule, error) {
	if degree < 1 {
		return nil, fmt.Errorf("power schedule: degree %d < 1: %w", degree, utils.ErrPrecondition)
	}
	s := &Schedule{
		Degree: degree,
		Levels: make([]int, degree+1),
		Left:   make([]int, degree+1),
	}
	for i := 2; i <= degree; i++ {
		minLevel := i
		cand := -1
		for j := 1; j <= i/2; j++ {
			lvl := max(s.Levels[j], s.Levels[i-j]) + 1
			if lvl < minLevel {
				minLevel = lvl
				cand = j
			}
		}
		s.Levels[i] = minLevel
		s.Left[i] = cand
	}
	return s, nil
}

// Operands returns the two powers multiplied to obtain x^i.
func (s *Schedule) Operands(i int) (int, int) {
	return s.Left[i], i - s.Left[i]
}

// Depth is the level of the highest power.
func (s *Schedule) Depth() int {
	return s.Levels[s.Degree]
}

// Needed marks the powers required to evaluate coeffs once every coefficient
// below tol in absolute value is dropped: the surviving powers and, recursively,
// the operands of their products. Index 0 is never marked.
func (s *Schedule) Needed(coeffs []float64, tol float64) []bool {
	need := make([]bool, s.Degree+1)
	var mark func(i int)
	mark = func(i int) {
		if i < 1 || need[i] {
			return
		}
		need[i] = true
		if i >= 2 {
			l, r := s.Operands(i)
			mark(l)
			mark(r)
		}
	}
	for i := 1; i < len(coeffs) && i <= s.Degree; i++ {
		if math.Abs(coeffs[i]) >= tol {
			mark(i)
		}
	}
	return need
}

// EvalDepth is the number of levels a homomorphic evaluation of coeffs
// consumes: the deepest surviving power plus the coefficient product.
// A polynomial pruned down to its constant term consumes nothing.
func (s *Schedule) EvalDepth(coeffs []float64, tol float64) int {
	depth := -1
	for i := 1; i < len(coeffs) && i <= s.Degree; i++ {
		if math.Abs(coeffs[i]) >= tol && s.Levels[i] > depth {
			depth = s.Levels[i]
		}
	}
	return depth + 1
}

// Prune zeroes every non-constant coefficient below tol.
func Prune(coeffs []float64, tol float64) []float64 {
	out := append([]float64{}, coeffs...)
	for i := 1; i < len(out); i++ {
		if math.Abs(out[i]) < tol {
			out[i] = 0
		}
	}
	return out
}
