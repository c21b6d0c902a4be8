package layers

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Elementwise computes x * w + b slot by slot. Slots past len(w) are zeroed.
type Elementwise struct {
	name string
	w, b *ckkswrapper.PlainVector
}

// NewElementwise registers w and the optional b with store. An all-zero b
// is dropped.
func NewElementwise(store *ckkswrapper.PlainStore, name string, w, b []float64) (*Elementwise, error) {
	e := &Elementwise{name: name}
	var err error
	if e.w, err = store.Vector(w); err != nil {
		return nil, fmt.Errorf("%s: weights: %w", name, err)
	}
	if b != nil {
		v, err := store.Vector(b)
		if err != nil {
			return nil, fmt.Errorf("%s: bias: %w", name, err)
		}
		if !v.IsZero() {
			e.b = v
		}
	}
	return e, nil
}

func (e *Elementwise) Levels() int { return 1 }

func (e *Elementwise) Tag() string { return "elementwise:" + e.name }

func (e *Elementwise) Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := ckkswrapper.MulPlainRescale(eval, ct, e.w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	if e.b == nil {
		return out, nil
	}
	return ckkswrapper.AddPlain(eval, out, e.b)
}

func (e *Elementwise) ForwardPlain(x []float64) ([]float64, error) {
	w := e.w.Values()
	y := make([]float64, len(x))
	for i := 0; i < len(w) && i < len(x); i++ {
		y[i] = x[i] * w[i]
	}
	if e.b != nil {
		addInto(y, e.b.Values())
	}
	return y, nil
}
