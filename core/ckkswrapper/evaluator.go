package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Evaluator is the arithmetic capability set the tree pipeline consumes.
// *ckks.Evaluator satisfies it; so does layers.WrappedEvaluator.
type Evaluator interface {
	AddNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	SubNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	MulNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	MulRelinNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	Rescale(op0, opOut *rlwe.Ciphertext) error
	RotateNew(op0 *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error)
	DropLevel(op0 *rlwe.Ciphertext, levels int)
	GetParameters() *ckks.Parameters
}

// Backend hands out evaluators. Evaluators returned by Worker share keys but
// not scratch buffers, so each goroutine must take its own.
type Backend interface {
	Parameters() ckks.Parameters
	Worker() Evaluator
}

var (
	_ Evaluator = (*ckks.Evaluator)(nil)
	_ Backend   = (*ServerKit)(nil)
)
