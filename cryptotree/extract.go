package cryptotree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/linear"
	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/tree"
	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ExtractTree packs one neural tree into a single block of 2*maxLeaves-1
// slots. The tree is padded to maxLeaves-1 nodes and maxLeaves leaves first.
// The returned bundle has no activation set.
//
// Layout, with L = maxLeaves:
//   - index and b0: [row values] [sentinel] [row values], so a left rotation
//     by less than L reads the same comparison again;
//   - w1: the L diagonals of the L x L padded matcher, each followed by L-1 zeros;
//   - b1 and every head row: L live slots then L-1 zeros;
//   - b2: each class bias split evenly over the L live slots.
func ExtractTree(nt *tree.NeuralTree, maxLeaves int) (*WeightBundle, error) {
	if maxLeaves < 2 {
		return nil, fmt.Errorf("extract: max leaves %d < 2: %w", maxLeaves, utils.ErrPrecondition)
	}
	if err := checkShapes(nt); err != nil {
		return nil, err
	}
	padded, err := tree.PadNeuralTree(nt, maxLeaves-1, maxLeaves)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	L := maxLeaves
	block := 2*L - 1

	index, err := comparatorIndex(padded.Comparator.Weight)
	if err != nil {
		return nil, err
	}
	sentinel := []int{InvalidIndex}
	b := &WeightBundle{
		NTrees:  1,
		NLeaves: L,
		Index:   append(append(append([]int{}, index...), sentinel...), index...),
		B0:      linear.Duplicate(padded.Comparator.Bias, 0),
		B1:      linear.PadVector(padded.Matcher.Bias, block),
	}
	_, b.NFeatures = padded.Comparator.Dims()

	square := linear.PadMatrix(padded.Matcher.Weight, L, L)
	if r, c := square.Dims(); r != L || c != L {
		return nil, fmt.Errorf("extract: matcher is %dx%d after padding, want %dx%d: %w", r, c, L, L, utils.ErrPrecondition)
	}
	diags, err := linear.ExtractDiagonals(square)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	for _, d := range diags {
		b.W1 = append(b.W1, linear.PadVector(d, block))
	}

	b.NClasses, _ = padded.Head.Dims()
	for c := 0; c < b.NClasses; c++ {
		row := mat.Row(nil, c, padded.Head.Weight)
		b.W2 = append(b.W2, linear.PadVector(row, block))
		b.B2 = append(b.B2, linear.PadVector(linear.Replicate(padded.Head.Bias[c]/float64(L), L), block))
	}
	return b, nil
}

// checkShapes rejects layers that do not chain.
func checkShapes(nt *tree.NeuralTree) error {
	nodes, _ := nt.Comparator.Dims()
	leaves, matcherIn := nt.Matcher.Dims()
	_, headIn := nt.Head.Dims()
	if matcherIn != nodes {
		return fmt.Errorf("extract: matcher reads %d nodes, comparator has %d: %w", matcherIn, nodes, utils.ErrPrecondition)
	}
	if headIn != leaves {
		return fmt.Errorf("extract: head reads %d leaves, matcher has %d: %w", headIn, leaves, utils.ErrPrecondition)
	}
	return nil
}

// comparatorIndex maps each comparator row to its feature. Rows must be
// one-hot with a unit entry; all-zero rows map to InvalidIndex.
func comparatorIndex(w *mat.Dense) ([]int, error) {
	rows, _ := w.Dims()
	index := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := mat.Row(nil, r, w)
		nonZero, j := 0, InvalidIndex
		for col, v := range row {
			if v != 0 {
				nonZero++
				j = col
			}
		}
		switch {
		case nonZero > 1:
			return nil, fmt.Errorf("extract: comparator row %d has %d non-zero entries: %w", r, nonZero, utils.ErrPrecondition)
		case j != InvalidIndex && row[j] != 1:
			return nil, fmt.Errorf("extract: comparator row %d selects with weight %g, want 1: %w", r, row[j], utils.ErrPrecondition)
		}
		index[r] = j
	}
	return index, nil
}

// Aggregate concatenates single-tree bundles into a forest bundle. Each
// tree's head block is scaled by its weight and the per-class forest bias is
// spread over every live head slot, so summing a class's decide output over
// all slots gives sum_t w_t tree_t + bias. A nil bias means zero.
func Aggregate(bundles []*WeightBundle, weights []float64, bias []float64) (*WeightBundle, error) {
	if len(bundles) == 0 {
		return nil, fmt.Errorf("aggregate: no bundles: %w", utils.ErrPrecondition)
	}
	if len(weights) != len(bundles) {
		return nil, fmt.Errorf("aggregate: %d weights for %d trees: %w", len(weights), len(bundles), utils.ErrPrecondition)
	}
	first := bundles[0]
	if bias == nil {
		bias = make([]float64, first.NClasses)
	}
	if len(bias) != first.NClasses {
		return nil, fmt.Errorf("aggregate: %d bias entries for %d classes: %w", len(bias), first.NClasses, utils.ErrPrecondition)
	}

	out := &WeightBundle{
		NLeaves:    first.NLeaves,
		NClasses:   first.NClasses,
		NFeatures:  first.NFeatures,
		W1:         make([][]float64, first.NLeaves),
		W2:         make([][]float64, first.NClasses),
		B2:         make([][]float64, first.NClasses),
		Activation: first.Activation,
	}
	for _, b := range bundles {
		out.NTrees += b.NTrees
	}
	L := first.NLeaves
	block := first.BlockSize()
	liveShare := 1 / float64(out.NTrees*L)

	for t, b := range bundles {
		if b.NLeaves != L || b.NClasses != out.NClasses || b.NFeatures != out.NFeatures {
			return nil, fmt.Errorf("aggregate: tree %d has %d leaves, %d classes, %d features, want %d, %d, %d: %w",
				t, b.NLeaves, b.NClasses, b.NFeatures, L, out.NClasses, out.NFeatures, utils.ErrPrecondition)
		}
		if b.NTrees != 1 {
			return nil, fmt.Errorf("aggregate: bundle %d already holds %d trees: %w", t, b.NTrees, utils.ErrPrecondition)
		}
		out.Index = append(out.Index, b.Index...)
		out.B0 = append(out.B0, b.B0...)
		out.B1 = append(out.B1, b.B1...)
		for i := range b.W1 {
			out.W1[i] = append(out.W1[i], b.W1[i]...)
		}
		for c := 0; c < out.NClasses; c++ {
			w := append([]float64{}, b.W2[c]...)
			floats.Scale(weights[t], w)
			out.W2[c] = append(out.W2[c], w...)

			hb := append([]float64{}, b.B2[c]...)
			floats.Scale(weights[t], hb)
			for j := 0; j < L && j < block; j++ {
				hb[j] += bias[c] * liveShare
			}
			out.B2[c] = append(out.B2[c], hb...)
		}
	}
	return out, nil
}

// ExtractForest packs a neural forest and attaches the activation.
func ExtractForest(f *tree.NeuralRandomForest, act layers.Poly) (*WeightBundle, error) {
	bundles := make([]*WeightBundle, len(f.Trees))
	for i, nt := range f.Trees {
		b, err := ExtractTree(nt, f.NLeaves)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		bundles[i] = b
	}
	out, err := Aggregate(bundles, f.Weights, f.Bias)
	if err != nil {
		return nil, err
	}
	out.Activation = layers.Poly{Name: act.Name, Coeffs: append([]float64{}, act.Coeffs...), Tol: act.Tol}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
