package ckkswrapper

import (
	"fmt"
	"math"
	"sync"

	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Oracle decrypts intermediate ciphertexts and compares them against a clear
// computation. It holds the secret key, so it only exists in tests and local
// debugging runs; a production server never has one.
type Oracle struct {
	Tolerance float64

	mu        sync.Mutex
	params    ckks.Parameters
	encoder   *ckks.Encoder
	decryptor *rlwe.Decryptor

	// Reports, if set, receives one line per comparison.
	Reports func(label string, maxDiff float64, idx int)
}

// NewOracle builds an oracle from a key-holding context.
func NewOracle(he *HeContext, tolerance float64) *Oracle {
	return &Oracle{
		Tolerance: tolerance,
		params:    he.Params,
		encoder:   ckks.NewEncoder(he.Params),
		decryptor: he.Decryptor,
	}
}

// Decrypt returns the real part of every slot of ct.
func (o *Oracle) Decrypt(ct *rlwe.Ciphertext) ([]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pt := o.decryptor.DecryptNew(ct)
	values := make([]float64, o.params.MaxSlots())
	if err := o.encoder.Decode(pt, values); err != nil {
		return nil, fmt.Errorf("oracle decode: %w", err)
	}
	return values, nil
}

// DebugCompare decrypts ct and compares its first len(shadow) slots with shadow.
// It returns the largest absolute difference, and utils.ErrOracleMismatch when
// that difference exceeds the tolerance.
func (o *Oracle) DebugCompare(ct *rlwe.Ciphertext, shadow []float64, label string) (float64, error) {
	decoded, err := o.Decrypt(ct)
	if err != nil {
		return 0, err
	}

	maxDiff := 0.0
	maxDiffIdx := -1
	for i := 0; i < len(shadow) && i < len(decoded); i++ {
		diff := math.Abs(decoded[i] - shadow[i])
		if diff > maxDiff {
			maxDiff = diff
			maxDiffIdx = i
		}
	}

	if o.Reports != nil {
		o.Reports(label, maxDiff, maxDiffIdx)
	}
	if maxDiff > o.Tolerance {
		return maxDiff, fmt.Errorf("%s: slot %d differs by %g (tolerance %g): %w",
			label, maxDiffIdx, maxDiff, o.Tolerance, utils.ErrOracleMismatch)
	}
	return maxDiff, nil
}
