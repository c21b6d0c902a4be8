package tree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/linear"
	"github.com/dhuynh95/cryptotree/utils"
)

// PadNeuralTree returns a copy of nt grown to nNodes comparator rows and
// nLeaves matcher rows. Padded comparator rows and matcher rows are zero with
// zero bias, and the head ignores padded leaves, so the scores are unchanged.
func PadNeuralTree(nt *NeuralTree, nNodes, nLeaves int) (*NeuralTree, error) {
	nodes, leaves, _ := nt.Shape()
	if nodes > nNodes || leaves > nLeaves {
		return nil, fmt.Errorf("tree with %d nodes and %d leaves does not fit %d nodes and %d leaves: %w",
			nodes, leaves, nNodes, nLeaves, utils.ErrPrecondition)
	}
	_, features := nt.Comparator.Dims()
	classes, _ := nt.Head.Dims()

	return &NeuralTree{
		Comparator: LinearLayer{
			Weight: linear.PadMatrix(nt.Comparator.Weight, nNodes, features),
			Bias:   linear.PadVector(nt.Comparator.Bias, nNodes),
		},
		Matcher: LinearLayer{
			Weight: linear.PadMatrix(nt.Matcher.Weight, nLeaves, nNodes),
			Bias:   linear.PadVector(nt.Matcher.Bias, nLeaves),
		},
		Head: LinearLayer{
			Weight: linear.PadMatrix(nt.Head.Weight, classes, nLeaves),
			Bias:   append([]float64{}, nt.Head.Bias...),
		},
		Activation: nt.Activation,
		NLeaves:    nt.NLeaves,
	}, nil
}
