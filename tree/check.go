package tree

import (
	"math"
)

// RangeViolation is a linear output that left the polynomial's domain.
type RangeViolation struct {
	Tree   int
	Sample int
	Stage  string // "comparator" or "matcher"
	Row    int
	Value  float64
}

// CheckOutputRange runs every tree on every sample and reports comparator and
// matcher outputs whose magnitude exceeds threshold. The activation
// polynomial is only fitted on [-threshold, threshold].
func (f *NeuralRandomForest) CheckOutputRange(xs [][]float64, threshold float64) ([]RangeViolation, error) {
	var out []RangeViolation
	for t, nt := range f.Trees {
		v, err := CheckOutputRange(nt, xs, threshold)
		if err != nil {
			return nil, err
		}
		for i := range v {
			v[i].Tree = t
		}
		out = append(out, v...)
	}
	return out, nil
}

// CheckOutputRange is the single-tree version of NeuralRandomForest.CheckOutputRange.
func CheckOutputRange(nt *NeuralTree, xs [][]float64, threshold float64) ([]RangeViolation, error) {
	var out []RangeViolation
	for s, x := range xs {
		st, err := nt.ForwardStages(x)
		if err != nil {
			return nil, err
		}
		for r, v := range st.Comparisons {
			if math.Abs(v) > threshold {
				out = append(out, RangeViolation{Sample: s, Stage: "comparator", Row: r, Value: v})
			}
		}
		for r, v := range st.Matches {
			if math.Abs(v) > threshold {
				out = append(out, RangeViolation{Sample: s, Stage: "matcher", Row: r, Value: v})
			}
		}
	}
	return out, nil
}
