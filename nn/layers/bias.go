package layers

import (
	"github.com/dhuynh95/cryptotree/core/ckkswrapper"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Bias adds a cleartext vector, encoded at the input's level and scale.
type Bias struct {
	name string
	v    *ckkswrapper.PlainVector
}

func NewBias(store *ckkswrapper.PlainStore, name string, values []float64) (*Bias, error) {
	v, err := store.Vector(values)
	if err != nil {
		return nil, err
	}
	return &Bias{name: name, v: v}, nil
}

func (b *Bias) Levels() int { return 0 }

func (b *Bias) Tag() string { return "bias:" + b.name }

func (b *Bias) Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return ckkswrapper.AddPlain(eval, ct, b.v)
}

func (b *Bias) ForwardPlain(x []float64) ([]float64, error) {
	y := append([]float64{}, x...)
	addInto(y, b.v.Values())
	return y, nil
}
