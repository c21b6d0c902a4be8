package linear

import (
	"gonum.org/v1/gonum/mat"
)

// PadVector returns a copy of v extended with zeros to length n. Longer
// vectors are copied unchanged.
func PadVector(v []float64, n int) []float64 {
	out := make([]float64, max(n, len(v)))
	copy(out, v)
	return out
}

// PadMatrix returns m zero-padded to at least rows x cols.
func PadMatrix(m mat.Matrix, rows, cols int) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(max(r, rows), max(c, cols), nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(m)
	return out
}

// Duplicate lays v out as v, sep, v so a left rotation by up to len(v)
// stays inside the block.
func Duplicate(v []float64, sep float64) []float64 {
	out := make([]float64, 0, 2*len(v)+1)
	out = append(out, v...)
	out = append(out, sep)
	return append(out, v...)
}

// Replicate returns n copies of c.
func Replicate(c float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// Concat joins vectors end to end.
func Concat(vs ...[]float64) []float64 {
	var out []float64
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// SumReduce simulates the homomorphic rotate-and-add over the first width
// slots of v: ceil(log2 width) rounds of v += Rotate(v, 2^r). Slot 0 ends up
// holding the sum of v[:width] when the rest of v is zero.
func SumReduce(v []float64, width int) []float64 {
	out := append([]float64{}, v...)
	for step := 1; step < width; step *= 2 {
		rot := Rotate(out, step)
		for j := range out {
			out[j] += rot[j]
		}
	}
	return out
}

// ReduceSteps lists the rotations SumReduce performs for width slots.
func ReduceSteps(width int) []int {
	var steps []int
	for step := 1; step < width; step *= 2 {
		steps = append(steps, step)
	}
	return steps
}
