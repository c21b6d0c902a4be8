package ckkswrapper

import (
	"fmt"
	"sort"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// HeContext is the key-holding side of the scheme: parameters, encoder and the
// encryption / decryption handles. Only the client owns one.
type HeContext struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor

	kgen *rlwe.KeyGenerator
	sk   *rlwe.SecretKey
	pk   *rlwe.PublicKey
	rlk  *rlwe.RelinearizationKey
}

// ServerKit holds what the evaluating side needs: parameters, an encoder and an
// evaluator loaded with relinearization and rotation keys.
type ServerKit struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Evaluator *ckks.Evaluator
}

// ParametersForDepth builds a modulus chain with depth scale-sized primes between
// two outer primes of firstModBits bits, i.e. [P+U] + depth*[P] + [P+U].
func ParametersForDepth(logN, logScale, firstModBits, depth int) ckks.ParametersLiteral {
	logQ := make([]int, 0, depth+1)
	logQ = append(logQ, firstModBits)
	for i := 0; i < depth; i++ {
		logQ = append(logQ, logScale)
	}
	return ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            logQ,
		LogP:            []int{firstModBits},
		LogDefaultScale: logScale,
	}
}

// NewHeContext builds parameters from lit and generates a fresh key pair.
func NewHeContext(lit ckks.ParametersLiteral) (*HeContext, error) {
	params, err := ckks.NewParametersFromLiteral(lit)
	if err != nil {
		return nil, fmt.Errorf("error creating CKKS parameters: %w", err)
	}
	return NewHeContextWithParams(params), nil
}

// NewHeContextWithParams generates a fresh key pair for params.
func NewHeContextWithParams(params ckks.Parameters) *HeContext {
	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)
	return &HeContext{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
		kgen:      kgen,
		sk:        sk,
		pk:        pk,
	}
}

// normalizeRotations drops zero and duplicate rotations and reduces them modulo the slot count.
func normalizeRotations(rots []int, slots int) []int {
	seen := map[int]bool{}
	out := []int{}
	for _, r := range rots {
		r %= slots
		if r < 0 {
			r += slots
		}
		if r == 0 || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// EvaluationKeys generates the relinearization key and one Galois key per rotation.
// This is what a client ships to the server.
func (h *HeContext) EvaluationKeys(rots []int) *rlwe.MemEvaluationKeySet {
	if h.rlk == nil {
		h.rlk = h.kgen.GenRelinearizationKeyNew(h.sk)
	}
	var galKeys []*rlwe.GaloisKey
	for _, rot := range normalizeRotations(rots, h.Params.MaxSlots()) {
		galKeys = append(galKeys, h.kgen.GenGaloisKeyNew(h.Params.GaloisElement(rot), h.sk))
	}
	return rlwe.NewMemEvaluationKeySet(h.rlk, galKeys...)
}

// GenServerKit is a shortcut for single-process use: it generates evaluation
// keys for rots and wraps them in a ServerKit.
func (h *HeContext) GenServerKit(rots []int) *ServerKit {
	return NewServerKit(h.Params, h.EvaluationKeys(rots))
}

// NewServerKit builds the evaluation side from parameters and received keys.
func NewServerKit(params ckks.Parameters, evk rlwe.EvaluationKeySet) *ServerKit {
	return &ServerKit{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Evaluator: ckks.NewEvaluator(params, evk),
	}
}

// GetWorkerEvaluator returns an evaluator sharing the kit's keys but with its own buffers.
func (k *ServerKit) GetWorkerEvaluator() *ckks.Evaluator {
	return k.Evaluator.ShallowCopy()
}

// Parameters implements Backend.
func (k *ServerKit) Parameters() ckks.Parameters {
	return k.Params
}

// Worker implements Backend.
func (k *ServerKit) Worker() Evaluator {
	return k.GetWorkerEvaluator()
}

// EncryptValues encodes values at the maximum level with the default scale and encrypts them.
func (h *HeContext) EncryptValues(values []float64) (*rlwe.Ciphertext, error) {
	if len(values) > h.Params.MaxSlots() {
		return nil, fmt.Errorf("cannot encrypt %d values in %d slots", len(values), h.Params.MaxSlots())
	}
	pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	ct, err := h.Encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct, nil
}

// DecryptValues decrypts ct and returns the real part of every slot.
func (h *HeContext) DecryptValues(ct *rlwe.Ciphertext) ([]float64, error) {
	pt := h.Decryptor.DecryptNew(ct)
	values := make([]float64, h.Params.MaxSlots())
	if err := h.Encoder.Decode(pt, values); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return values, nil
}
