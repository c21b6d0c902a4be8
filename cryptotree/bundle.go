// Package cryptotree evaluates decision trees and random forests on CKKS
// ciphertexts. Trees are flattened into a WeightBundle of cleartext vectors
// laid out in per-tree blocks of 2L-1 slots, L being the leaf bound; the
// Evaluator then runs compare, match and decide on one packed ciphertext.
package cryptotree

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/zeebo/blake3"
)

// InvalidIndex marks a slot that reads no feature.
const InvalidIndex = -1

// WeightBundle is the packed cleartext form of a tree or forest. Every vector
// spans Width() slots, one block of BlockSize() slots per tree.
type WeightBundle struct {
	NTrees    int
	NLeaves   int
	NClasses  int
	NFeatures int

	// Index is the feature read by each slot, InvalidIndex for none.
	Index []int
	B0    []float64
	// W1 holds the NLeaves matcher diagonals.
	W1 [][]float64
	B1 []float64
	// W2 and B2 hold one head vector per class.
	W2 [][]float64
	B2 [][]float64

	Activation layers.Poly
}

// BlockSize is the number of slots per tree, 2L-1.
func (b *WeightBundle) BlockSize() int {
	return 2*b.NLeaves - 1
}

// Width is the number of slots the bundle occupies.
func (b *WeightBundle) Width() int {
	return b.NTrees * b.BlockSize()
}

// Validate checks every vector matches the declared shape.
func (b *WeightBundle) Validate() error {
	if b.NTrees < 1 || b.NLeaves < 2 || b.NClasses < 1 {
		return fmt.Errorf("bundle shape %d trees, %d leaves, %d classes: %w", b.NTrees, b.NLeaves, b.NClasses, utils.ErrPrecondition)
	}
	w := b.Width()
	check := func(name string, n int) error {
		if n != w {
			return fmt.Errorf("bundle %s has %d slots, want %d: %w", name, n, w, utils.ErrPrecondition)
		}
		return nil
	}
	if err := check("index", len(b.Index)); err != nil {
		return err
	}
	if err := check("b0", len(b.B0)); err != nil {
		return err
	}
	if err := check("b1", len(b.B1)); err != nil {
		return err
	}
	if len(b.W1) != b.NLeaves {
		return fmt.Errorf("bundle has %d diagonals, want %d: %w", len(b.W1), b.NLeaves, utils.ErrPrecondition)
	}
	for i, d := range b.W1 {
		if err := check(fmt.Sprintf("diagonal %d", i), len(d)); err != nil {
			return err
		}
	}
	if len(b.W2) != b.NClasses || len(b.B2) != b.NClasses {
		return fmt.Errorf("bundle has %d head weights and %d head biases for %d classes: %w",
			len(b.W2), len(b.B2), b.NClasses, utils.ErrPrecondition)
	}
	for c := range b.W2 {
		if err := check(fmt.Sprintf("w2[%d]", c), len(b.W2[c])); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("b2[%d]", c), len(b.B2[c])); err != nil {
			return err
		}
	}
	for i, idx := range b.Index {
		if idx < InvalidIndex || (b.NFeatures > 0 && idx >= b.NFeatures) {
			return fmt.Errorf("bundle index %d reads feature %d: %w", i, idx, utils.ErrPrecondition)
		}
	}
	if len(b.Activation.Coeffs) == 0 {
		return fmt.Errorf("bundle has no activation coefficients: %w", utils.ErrPrecondition)
	}
	return nil
}

// Digest identifies the model shape and feature layout, which is all the
// client sees. It is hex-encoded BLAKE3.
func (b *WeightBundle) Digest() string {
	return digest(b.NTrees, b.NLeaves, b.NClasses, b.NFeatures, b.Index)
}

func digest(nTrees, nLeaves, nClasses, nFeatures int, index []int) string {
	h := blake3.New()
	buf := make([]byte, 8)
	put := func(v int) {
		binary.LittleEndian.PutUint64(buf, uint64(int64(v)))
		h.Write(buf)
	}
	put(nTrees)
	put(nLeaves)
	put(nClasses)
	put(nFeatures)
	for _, idx := range index {
		put(idx)
	}
	return hex.EncodeToString(h.Sum(nil))
}
