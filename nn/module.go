package nn

import (
	"fmt"
	"strings"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Module is one homomorphic stage with a cleartext twin over slot vectors.
type Module interface {
	Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error)
	ForwardPlain(x []float64) ([]float64, error)
	// Levels is the number of rescales Forward consumes.
	Levels() int
	Tag() string
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// NewSequential builds a Sequential from layers.
func NewSequential(layers ...Module) *Sequential {
	return &Sequential{Layers: layers}
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	var err error
	out := ct
	for i, layer := range s.Layers {
		out, err = layer.Forward(eval, out)
		if err != nil {
			return nil, fmt.Errorf("%s (layer %d): %w", layer.Tag(), i, err)
		}
	}
	return out, nil
}

// ForwardPlain applies each layer's cleartext twin in sequence.
func (s *Sequential) ForwardPlain(x []float64) ([]float64, error) {
	var err error
	out := x
	for i, layer := range s.Layers {
		out, err = layer.ForwardPlain(out)
		if err != nil {
			return nil, fmt.Errorf("%s (layer %d): %w", layer.Tag(), i, err)
		}
	}
	return out, nil
}

// ForwardChecked is Forward with every layer checked against its cleartext
// twin: the oracle decrypts each layer input, the twin runs on it, and the
// decrypted output must agree within the oracle tolerance.
func (s *Sequential) ForwardChecked(eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext, oracle *ckkswrapper.Oracle) (*rlwe.Ciphertext, error) {
	if oracle == nil {
		return s.Forward(eval, ct)
	}
	out := ct
	for i, layer := range s.Layers {
		in, err := oracle.Decrypt(out)
		if err != nil {
			return nil, err
		}
		shadow, err := layer.ForwardPlain(in)
		if err != nil {
			return nil, fmt.Errorf("%s (layer %d) plain: %w", layer.Tag(), i, err)
		}
		out, err = layer.Forward(eval, out)
		if err != nil {
			return nil, fmt.Errorf("%s (layer %d): %w", layer.Tag(), i, err)
		}
		if _, err := oracle.DebugCompare(out, shadow, layer.Tag()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Levels sums Levels() of all layers.
func (s *Sequential) Levels() int {
	sum := 0
	for _, layer := range s.Layers {
		sum += layer.Levels()
	}
	return sum
}

// Tag joins the layer tags.
func (s *Sequential) Tag() string {
	tags := make([]string, len(s.Layers))
	for i, layer := range s.Layers {
		tags[i] = layer.Tag()
	}
	return strings.Join(tags, "->")
}

var _ Module = (*Sequential)(nil)
