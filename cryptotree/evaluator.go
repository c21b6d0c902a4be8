package cryptotree

import (
	"fmt"
	"sync"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/nn"
	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Evaluator runs Compare -> Match -> Decide on packed ciphertexts. It owns
// the encoded bundle and is safe for concurrent use: every call takes its own
// worker evaluators from the backend.
type Evaluator struct {
	backend ckkswrapper.Backend
	bundle  *WeightBundle

	compare *nn.Sequential
	match   *nn.Sequential
	decide  []*nn.Sequential
	reduce  *nn.Sequential

	depth  int
	oracle *ckkswrapper.Oracle
}

// NewEvaluator encodes bundle for backend. It fails with
// utils.ErrDepthExhausted when the parameters cannot hold the pipeline.
func NewEvaluator(backend ckkswrapper.Backend, bundle *WeightBundle) (*Evaluator, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	params := backend.Parameters()
	if w := bundle.Width(); w > params.MaxSlots() {
		return nil, fmt.Errorf("bundle spans %d slots, parameters offer %d: %w", w, params.MaxSlots(), utils.ErrPrecondition)
	}
	depth, err := PipelineDepth(bundle.Activation)
	if err != nil {
		return nil, err
	}
	if err := ckkswrapper.CheckDepth(params, depth); err != nil {
		return nil, err
	}

	store := ckkswrapper.NewPlainStore(params)
	act, err := layers.NewActivation(store, bundle.Activation)
	if err != nil {
		return nil, err
	}
	b0, err := layers.NewBias(store, "b0", bundle.B0)
	if err != nil {
		return nil, err
	}
	w1, err := layers.NewLinear(store, "w1", bundle.W1, bundle.B1)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		backend: backend,
		bundle:  bundle,
		compare: nn.NewSequential(b0, act),
		match:   nn.NewSequential(w1, act),
		reduce:  nn.NewSequential(&layers.Reduce{Width: bundle.Width()}),
		depth:   depth,
	}
	for c := 0; c < bundle.NClasses; c++ {
		head, err := layers.NewElementwise(store, fmt.Sprintf("w2[%d]", c), bundle.W2[c], bundle.B2[c])
		if err != nil {
			return nil, err
		}
		e.decide = append(e.decide, nn.NewSequential(head))
	}
	return e, nil
}

// WithOracle returns a copy of e that checks every stage against its
// cleartext twin. Only for tests and local debugging.
func (e *Evaluator) WithOracle(o *ckkswrapper.Oracle) *Evaluator {
	cp := *e
	cp.oracle = o
	return &cp
}

// Depth is the number of levels Evaluate consumes.
func (e *Evaluator) Depth() int {
	return e.depth
}

// Bundle returns the cleartext bundle.
func (e *Evaluator) Bundle() *WeightBundle {
	return e.bundle
}

// Rotations lists the Galois rotations the evaluator uses.
func (e *Evaluator) Rotations() []int {
	return Rotations(e.bundle, true)
}

func (e *Evaluator) run(stage string, s *nn.Sequential, eval ckkswrapper.Evaluator, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := s.ForwardChecked(eval, ct, e.oracle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	return out, nil
}

// Compare adds b0 and applies the activation: slot j approximates
// act(x[index[j]] - threshold[j]).
func (e *Evaluator) Compare(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.run("compare", e.compare, e.backend.Worker(), ct)
}

// Match runs the diagonal matcher product, adds b1 and applies the activation.
func (e *Evaluator) Match(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.run("match", e.match, e.backend.Worker(), ct)
}

// Decide returns one ciphertext per class, computed concurrently. Summing a
// class ciphertext over the bundle width gives that class's score.
func (e *Evaluator) Decide(ct *rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	return e.perClass("decide", e.decide, []*rlwe.Ciphertext{ct})
}

// Reduce sums each class ciphertext over the bundle width into slot 0.
func (e *Evaluator) Reduce(outputs []*rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	stages := make([]*nn.Sequential, len(outputs))
	for i := range stages {
		stages[i] = e.reduce
	}
	return e.perClass("reduce", stages, outputs)
}

// perClass runs stages[c] on inputs[c], or on inputs[0] when a single input
// is shared, one goroutine and one worker evaluator per class.
func (e *Evaluator) perClass(stage string, stages []*nn.Sequential, inputs []*rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	outs := make([]*rlwe.Ciphertext, len(stages))
	errs := make([]error, len(stages))
	var wg sync.WaitGroup
	for c := range stages {
		in := inputs[0]
		if len(inputs) > 1 {
			in = inputs[c]
		}
		wg.Add(1)
		go func(c int, in *rlwe.Ciphertext) {
			defer wg.Done()
			outs[c], errs[c] = e.run(fmt.Sprintf("%s class %d", stage, c), stages[c], e.backend.Worker(), in)
		}(c, in)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return outs, nil
}

// Evaluate runs the whole pipeline and returns one ciphertext per class.
func (e *Evaluator) Evaluate(ct *rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	if err := e.checkInput(ct); err != nil {
		return nil, err
	}
	compared, err := e.Compare(ct)
	if err != nil {
		return nil, err
	}
	matched, err := e.Match(compared)
	if err != nil {
		return nil, err
	}
	return e.Decide(matched)
}

// checkInput rejects a query that cannot absorb the whole pipeline.
func (e *Evaluator) checkInput(ct *rlwe.Ciphertext) error {
	if ct == nil {
		return fmt.Errorf("query ciphertext is nil: %w", utils.ErrPrecondition)
	}
	if left := ckkswrapper.LevelsRemaining(ct); left < e.depth {
		return fmt.Errorf("query has %d levels left, pipeline needs %d: %w", left, e.depth, utils.ErrDepthExhausted)
	}
	return nil
}

// EvaluateTimed is Evaluate with per-stage wall times added to stats.
func (e *Evaluator) EvaluateTimed(ct *rlwe.Ciphertext, reduce bool, stats *utils.TimingStats) ([]*rlwe.Ciphertext, error) {
	if err := e.checkInput(ct); err != nil {
		return nil, err
	}
	var compared, matched *rlwe.Ciphertext
	var outs []*rlwe.Ciphertext
	var err error
	if err = stats.Time(&stats.CompareTime, func() error { compared, err = e.Compare(ct); return err }); err != nil {
		return nil, err
	}
	if err = stats.Time(&stats.MatchTime, func() error { matched, err = e.Match(compared); return err }); err != nil {
		return nil, err
	}
	if err = stats.Time(&stats.DecideTime, func() error { outs, err = e.Decide(matched); return err }); err != nil {
		return nil, err
	}
	if !reduce {
		return outs, nil
	}
	if err = stats.Time(&stats.ReduceTime, func() error { outs, err = e.Reduce(outs); return err }); err != nil {
		return nil, err
	}
	return outs, nil
}
