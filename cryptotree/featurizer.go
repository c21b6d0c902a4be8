package cryptotree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"gonum.org/v1/gonum/floats"
)

// Featurizer is the client side of the layout: it turns a feature vector
// into the slot vector the evaluator expects, encrypts it, and reads class
// scores back out of decrypted results.
type Featurizer struct {
	Index     []int
	NFeatures int
	he        *ckkswrapper.HeContext
}

// NewFeaturizer binds index to a key-holding context. he may be nil when
// only Featurize is used.
func NewFeaturizer(index []int, nFeatures int, he *ckkswrapper.HeContext) *Featurizer {
	return &Featurizer{Index: append([]int{}, index...), NFeatures: nFeatures, he: he}
}

// Featurize gathers x[index[j]] into slot j. Sentinel slots are 0. x must
// hold exactly NFeatures values.
func (f *Featurizer) Featurize(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("featurize: %d features, model expects %d: %w", len(x), f.NFeatures, utils.ErrPrecondition)
	}
	out := make([]float64, len(f.Index))
	for j, idx := range f.Index {
		switch {
		case idx == InvalidIndex:
		case idx < 0 || idx >= len(x):
			return nil, fmt.Errorf("featurize: slot %d reads feature %d of %d: %w", j, idx, len(x), utils.ErrPrecondition)
		default:
			out[j] = x[idx]
		}
	}
	return out, nil
}

// Encrypt featurizes x and encrypts it at the maximum level.
func (f *Featurizer) Encrypt(x []float64) (*rlwe.Ciphertext, error) {
	if f.he == nil {
		return nil, fmt.Errorf("featurizer has no key material: %w", utils.ErrPrecondition)
	}
	v, err := f.Featurize(x)
	if err != nil {
		return nil, err
	}
	return f.he.EncryptValues(v)
}

// Decrypt returns one score per class ciphertext. When reduced is set the
// server already summed the slots and slot 0 is read; otherwise the client
// sums the first len(Index) slots.
func (f *Featurizer) Decrypt(outputs []*rlwe.Ciphertext, reduced bool) ([]float64, error) {
	if f.he == nil {
		return nil, fmt.Errorf("featurizer has no key material: %w", utils.ErrPrecondition)
	}
	decrypted := make([][]float64, len(outputs))
	for c, ct := range outputs {
		v, err := f.he.DecryptValues(ct)
		if err != nil {
			return nil, fmt.Errorf("class %d: %w", c, err)
		}
		decrypted[c] = v
	}
	return Scores(decrypted, len(f.Index), reduced), nil
}

// Scores turns decrypted class vectors into class scores.
func Scores(decrypted [][]float64, width int, reduced bool) []float64 {
	scores := make([]float64, len(decrypted))
	for c, v := range decrypted {
		if reduced {
			scores[c] = v[0]
			continue
		}
		scores[c] = floats.Sum(v[:min(width, len(v))])
	}
	return scores
}
