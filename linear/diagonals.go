// Package linear holds the cleartext side of the diagonal matrix-vector
// product used under encryption: diagonal extraction, the rotate-and-sum
// simulation and the padding helpers that align vectors on rotation blocks.
package linear

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/mat"
)

// ExtractDiagonals returns the generalized diagonals of a square matrix:
// diagonal[i][j] = m[j][(j+i) mod dim].
func ExtractDiagonals(m mat.Matrix) ([][]float64, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("extract diagonals: matrix is %dx%d, not square: %w", r, c, utils.ErrPrecondition)
	}
	diags := make([][]float64, r)
	for i := range diags {
		diags[i] = make([]float64, r)
		for j := 0; j < r; j++ {
			diags[i][j] = m.At(j, (j+i)%r)
		}
	}
	return diags, nil
}

// FromDiagonals rebuilds the square matrix whose diagonals are diags. Only the
// first len(diags) entries of each diagonal are read.
func FromDiagonals(diags [][]float64) (*mat.Dense, error) {
	dim := len(diags)
	if dim == 0 {
		return nil, fmt.Errorf("from diagonals: no diagonals: %w", utils.ErrPrecondition)
	}
	m := mat.NewDense(dim, dim, nil)
	for i, d := range diags {
		if len(d) < dim {
			return nil, fmt.Errorf("from diagonals: diagonal %d has %d entries, want %d: %w", i, len(d), dim, utils.ErrPrecondition)
		}
		for j := 0; j < dim; j++ {
			m.Set(j, (j+i)%dim, d[j])
		}
	}
	return m, nil
}

// Rotate returns v cyclically rotated left by k: out[j] = v[(j+k) mod len(v)].
func Rotate(v []float64, k int) []float64 {
	n := len(v)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	k %= n
	if k < 0 {
		k += n
	}
	for j := range out {
		out[j] = v[(j+k)%n]
	}
	return out
}

// MatVecDiagonals computes sum_i Rotate(v, i) * diags[i], the cleartext twin of
// the homomorphic diagonal product. Diagonals shorter than v are zero-extended.
// With v of length dim this equals M*v.
func MatVecDiagonals(diags [][]float64, v []float64) ([]float64, error) {
	out := make([]float64, len(v))
	for i, d := range diags {
		if len(d) > len(v) {
			return nil, fmt.Errorf("matvec: diagonal %d has %d entries for a %d-slot vector: %w", i, len(d), len(v), utils.ErrPrecondition)
		}
		rot := Rotate(v, i)
		for j, w := range d {
			out[j] += w * rot[j]
		}
	}
	return out, nil
}

// IsZero reports whether every entry of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
