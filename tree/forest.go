package tree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/floats"
)

// ForestFile is the on-disk form of a fitted forest.
type ForestFile struct {
	Trees   []*DecisionTree `json:"trees"`
	Weights []float64       `json:"weights,omitempty"`
	Bias    []float64       `json:"bias,omitempty"`
}

// LoadForest reads a ForestFile and validates every tree.
func LoadForest(path string) (*ForestFile, error) {
	var f ForestFile
	if err := utils.LoadJSON(path, &f); err != nil {
		return nil, err
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("%s: no trees: %w", path, utils.ErrPrecondition)
	}
	for i, t := range f.Trees {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%s: tree %d: %w", path, i, err)
		}
	}
	return &f, nil
}

// Predict returns the weighted vote of the hard trees plus the bias.
func (f *ForestFile) Predict(x []float64) ([]float64, error) {
	weights, bias, err := forestCoefficients(len(f.Trees), f.Trees[0].NClasses, f.Weights, f.Bias)
	if err != nil {
		return nil, err
	}
	out := append([]float64{}, bias...)
	for i, t := range f.Trees {
		p, err := t.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if len(p) != len(out) {
			return nil, fmt.Errorf("tree %d has %d classes, want %d: %w", i, len(p), len(out), utils.ErrPrecondition)
		}
		floats.AddScaled(out, weights[i], p)
	}
	return out, nil
}

// NeuralRandomForest is a weighted sum of neural trees padded to a common shape.
type NeuralRandomForest struct {
	Trees   []*NeuralTree
	Weights []float64
	Bias    []float64

	NNodes   int
	NLeaves  int
	NClasses int
}

// NewNeuralRandomForest builds and pads one neural tree per decision tree.
// Weights default to 1/len(trees) and the bias to zero. maxLeaves of 0 uses
// the largest tree, with a floor of two leaves; trees are padded to maxLeaves
// leaves and maxLeaves-1 nodes.
func NewNeuralRandomForest(trees []*DecisionTree, maker *Maker, weights, bias []float64, maxLeaves int) (*NeuralRandomForest, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest has no trees: %w", utils.ErrPrecondition)
	}
	nClasses := trees[0].NClasses
	nFeatures := trees[0].NFeatures
	w, b, err := forestCoefficients(len(trees), nClasses, weights, bias)
	if err != nil {
		return nil, err
	}

	neural := make([]*NeuralTree, len(trees))
	largest := 2
	for i, t := range trees {
		if t.NClasses != nClasses || t.NFeatures != nFeatures {
			return nil, fmt.Errorf("tree %d has %d classes and %d features, want %d and %d: %w",
				i, t.NClasses, t.NFeatures, nClasses, nFeatures, utils.ErrPrecondition)
		}
		if neural[i], err = maker.MakeTree(t); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		_, leaves, _ := neural[i].Shape()
		largest = max(largest, leaves)
	}
	if maxLeaves == 0 {
		maxLeaves = largest
	}
	if maxLeaves < largest {
		return nil, fmt.Errorf("max leaves %d below the largest tree (%d): %w", maxLeaves, largest, utils.ErrPrecondition)
	}

	for i := range neural {
		if neural[i], err = PadNeuralTree(neural[i], maxLeaves-1, maxLeaves); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &NeuralRandomForest{
		Trees:    neural,
		Weights:  w,
		Bias:     b,
		NNodes:   maxLeaves - 1,
		NLeaves:  maxLeaves,
		NClasses: nClasses,
	}, nil
}

func forestCoefficients(nTrees, nClasses int, weights, bias []float64) ([]float64, []float64, error) {
	if weights == nil {
		weights = make([]float64, nTrees)
		for i := range weights {
			weights[i] = 1 / float64(nTrees)
		}
	}
	if bias == nil {
		bias = make([]float64, nClasses)
	}
	if len(weights) != nTrees {
		return nil, nil, fmt.Errorf("%d weights for %d trees: %w", len(weights), nTrees, utils.ErrPrecondition)
	}
	if len(bias) != nClasses {
		return nil, nil, fmt.Errorf("%d bias entries for %d classes: %w", len(bias), nClasses, utils.ErrPrecondition)
	}
	return append([]float64{}, weights...), append([]float64{}, bias...), nil
}

// Forward returns sum_t w_t * tree_t(x) + bias.
func (f *NeuralRandomForest) Forward(x []float64) ([]float64, error) {
	out := append([]float64{}, f.Bias...)
	for i, nt := range f.Trees {
		y, err := nt.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		floats.AddScaled(out, f.Weights[i], y)
	}
	return out, nil
}

// PredictClass returns the arg-max of Forward.
func (f *NeuralRandomForest) PredictClass(x []float64) (int, error) {
	y, err := f.Forward(x)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(y), nil
}
