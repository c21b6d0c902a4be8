package ckkswrapper

import (
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// PlainStore encodes cleartext vectors on demand. Encodings are cached per
// (level, scale) and never modified once handed out, so a PlainVector can be
// shared by concurrent evaluations.
type PlainStore struct {
	params ckks.Parameters

	mu      sync.Mutex
	encoder *ckks.Encoder
}

// NewPlainStore creates a store with its own encoder.
func NewPlainStore(params ckks.Parameters) *PlainStore {
	return &PlainStore{params: params, encoder: ckks.NewEncoder(params)}
}

// Params returns the parameters plaintexts are encoded under.
func (s *PlainStore) Params() ckks.Parameters {
	return s.params
}

// Vector registers a copy of values. It fails if values does not fit in the slots.
func (s *PlainStore) Vector(values []float64) (*PlainVector, error) {
	if len(values) > s.params.MaxSlots() {
		return nil, fmt.Errorf("vector of %d values exceeds %d slots", len(values), s.params.MaxSlots())
	}
	return &PlainVector{
		store:  s,
		values: append([]float64{}, values...),
		cache:  map[plainKey]*rlwe.Plaintext{},
	}, nil
}

// Constant registers c replicated over every slot.
func (s *PlainStore) Constant(c float64) *PlainVector {
	values := make([]float64, s.params.MaxSlots())
	for i := range values {
		values[i] = c
	}
	v, _ := s.Vector(values)
	return v
}

type plainKey struct {
	level int
	scale float64
}

// PlainVector is a canonical cleartext vector plus its encodings.
type PlainVector struct {
	store  *PlainStore
	values []float64
	cache  map[plainKey]*rlwe.Plaintext
}

// Len returns the number of canonical values.
func (v *PlainVector) Len() int {
	return len(v.values)
}

// Values returns a copy of the canonical values.
func (v *PlainVector) Values() []float64 {
	return append([]float64{}, v.values...)
}

// IsZero reports whether every canonical value is zero.
func (v *PlainVector) IsZero() bool {
	for _, x := range v.values {
		if x != 0 {
			return false
		}
	}
	return true
}

// At returns the vector encoded at level with the given scale. The returned
// plaintext is shared and must be treated as read-only.
func (v *PlainVector) At(level int, scale rlwe.Scale) (*rlwe.Plaintext, error) {
	key := plainKey{level: level, scale: scale.Float64()}

	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if pt, ok := v.cache[key]; ok {
		return pt, nil
	}
	pt := ckks.NewPlaintext(v.store.params, level)
	pt.Scale = scale
	if err := v.store.encoder.Encode(v.values, pt); err != nil {
		return nil, fmt.Errorf("encode at level %d: %w", level, err)
	}
	v.cache[key] = pt
	return pt, nil
}

// Encodings returns how many distinct encodings are cached.
func (v *PlainVector) Encodings() int {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return len(v.cache)
}
