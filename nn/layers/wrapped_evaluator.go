package layers

import (
	"fmt"
	"sync/atomic"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// OpCounts is a snapshot of operation counters.
type OpCounts struct {
	Rotate  int64
	Mul     int64
	Relin   int64
	Rescale int64
	Add     int64
}

type counters struct {
	rotate, mul, relin, rescale, add atomic.Int64
}

// WrappedEvaluator wraps an evaluator to count operations. Copies made by
// Worker share the counters, so a whole concurrent evaluation can be counted.
type WrappedEvaluator struct {
	eval    ckkswrapper.Evaluator
	backend ckkswrapper.Backend
	c       *counters
}

// NewWrappedEvaluator creates a new wrapped evaluator
func NewWrappedEvaluator(eval ckkswrapper.Evaluator) *WrappedEvaluator {
	return &WrappedEvaluator{eval: eval, c: &counters{}}
}

// WrapBackend counts every evaluator handed out by b.
func WrapBackend(b ckkswrapper.Backend) *WrappedEvaluator {
	return &WrappedEvaluator{eval: b.Worker(), backend: b, c: &counters{}}
}

// Parameters implements ckkswrapper.Backend.
func (w *WrappedEvaluator) Parameters() ckks.Parameters {
	return *w.eval.GetParameters()
}

// Worker implements ckkswrapper.Backend. Without a wrapped backend the
// underlying evaluator is shared.
func (w *WrappedEvaluator) Worker() ckkswrapper.Evaluator {
	if w.backend == nil {
		return w
	}
	return &WrappedEvaluator{eval: w.backend.Worker(), backend: w.backend, c: w.c}
}

// ResetCounters resets all operation counters to zero
func (w *WrappedEvaluator) ResetCounters() {
	w.c.rotate.Store(0)
	w.c.mul.Store(0)
	w.c.relin.Store(0)
	w.c.rescale.Store(0)
	w.c.add.Store(0)
}

// Counts returns the current counters.
func (w *WrappedEvaluator) Counts() OpCounts {
	return OpCounts{
		Rotate:  w.c.rotate.Load(),
		Mul:     w.c.mul.Load(),
		Relin:   w.c.relin.Load(),
		Rescale: w.c.rescale.Load(),
		Add:     w.c.add.Load(),
	}
}

// PrintCounters prints the current operation counts.
// Respects utils.Verbose flag - does nothing if Verbose is false.
func (w *WrappedEvaluator) PrintCounters(phaseName string) {
	if !utils.Verbose {
		return
	}
	c := w.Counts()
	fmt.Fprintf(utils.Output, "=== Phase: %s ===\n", phaseName)
	fmt.Fprintf(utils.Output, "Rotates: %d, Muls: %d, Relins: %d, Rescales: %d, Adds: %d\n",
		c.Rotate, c.Mul, c.Relin, c.Rescale, c.Add)
}

// RotateNew wraps eval.RotateNew and counts rotations
func (w *WrappedEvaluator) RotateNew(ct *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error) {
	w.c.rotate.Add(1)
	return w.eval.RotateNew(ct, k)
}

// MulNew wraps eval.MulNew and counts multiplications
func (w *WrappedEvaluator) MulNew(ct *rlwe.Ciphertext, op rlwe.Operand) (*rlwe.Ciphertext, error) {
	w.c.mul.Add(1)
	return w.eval.MulNew(ct, op)
}

// MulRelinNew counts one multiplication and one relinearization
func (w *WrappedEvaluator) MulRelinNew(ct *rlwe.Ciphertext, op rlwe.Operand) (*rlwe.Ciphertext, error) {
	w.c.mul.Add(1)
	w.c.relin.Add(1)
	return w.eval.MulRelinNew(ct, op)
}

// Rescale wraps eval.Rescale and counts rescales
func (w *WrappedEvaluator) Rescale(ct *rlwe.Ciphertext, ctOut *rlwe.Ciphertext) error {
	w.c.rescale.Add(1)
	return w.eval.Rescale(ct, ctOut)
}

// AddNew wraps eval.AddNew and counts additions
func (w *WrappedEvaluator) AddNew(ct *rlwe.Ciphertext, op rlwe.Operand) (*rlwe.Ciphertext, error) {
	w.c.add.Add(1)
	return w.eval.AddNew(ct, op)
}

// SubNew wraps eval.SubNew and counts as addition
func (w *WrappedEvaluator) SubNew(ct *rlwe.Ciphertext, op rlwe.Operand) (*rlwe.Ciphertext, error) {
	w.c.add.Add(1) // Subtraction is similar cost to addition
	return w.eval.SubNew(ct, op)
}

// DropLevel is not counted.
func (w *WrappedEvaluator) DropLevel(ct *rlwe.Ciphertext, levels int) {
	w.eval.DropLevel(ct, levels)
}

// GetParameters returns the wrapped evaluator's parameters.
func (w *WrappedEvaluator) GetParameters() *ckks.Parameters {
	return w.eval.GetParameters()
}

var (
	_ ckkswrapper.Evaluator = (*WrappedEvaluator)(nil)
	_ ckkswrapper.Backend   = (*WrappedEvaluator)(nil)
)
