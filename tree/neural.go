package tree

import (
	"fmt"
	"math"

	"github.com/dhuynh95/cryptotree/polynomials"
	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NeuralTree evaluates a decision tree as act(Comparator x) -> act(Matcher .) -> Head.
type NeuralTree struct {
	Comparator LinearLayer
	Matcher    LinearLayer
	Head       LinearLayer

	// Activation is applied after the comparator and the matcher.
	Activation func(float64) float64
	// NLeaves counts the leaves of the source tree, before padding.
	NLeaves int
}

// Stages holds the intermediate values of one forward pass.
type Stages struct {
	Comparisons []float64 // comparator output before activation
	Matches     []float64 // matcher output before activation
	Output      []float64
}

// ForwardStages runs the tree on x and keeps every pre-activation.
func (nt *NeuralTree) ForwardStages(x []float64) (*Stages, error) {
	s := &Stages{}
	var err error
	if s.Comparisons, err = nt.Comparator.Forward(x); err != nil {
		return nil, fmt.Errorf("comparator: %w", err)
	}
	if s.Matches, err = nt.Matcher.Forward(apply(nt.Activation, s.Comparisons)); err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}
	if s.Output, err = nt.Head.Forward(apply(nt.Activation, s.Matches)); err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	return s, nil
}

// Forward returns the per-class scores for x.
func (nt *NeuralTree) Forward(x []float64) ([]float64, error) {
	s, err := nt.ForwardStages(x)
	if err != nil {
		return nil, err
	}
	return s.Output, nil
}

// Shape returns (nodes, leaves, classes) after any padding.
func (nt *NeuralTree) Shape() (int, int, int) {
	nodes, _ := nt.Comparator.Dims()
	leaves, _ := nt.Matcher.Dims()
	classes, _ := nt.Head.Dims()
	return nodes, leaves, classes
}

func apply(f func(float64) float64, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = f(v)
	}
	return out
}

// Maker builds neural trees for one activation family.
type Maker struct {
	Activation string
	Dilation   float64
	Degree     int
	Bound      float64
	// Eps is the margin added to a leaf on its own path.
	Eps float64
	// UsePolynomial evaluates the fitted polynomial instead of the exact
	// activation, matching what runs under encryption.
	UsePolynomial bool

	// Coeffs is the monomial fit of act(Dilation*x) on [-Bound, Bound].
	Coeffs []float64
	act    polynomials.Activation
}

// NewMaker fits the activation polynomial described by cfg.
func NewMaker(cfg *utils.Config, usePolynomial bool) (*Maker, error) {
	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	act, err := polynomials.ActivationByName(cfg.Activation)
	if err != nil {
		return nil, err
	}
	coeffs, err := polynomials.Approximate(act.Big, cfg.Dilation, cfg.Degree, cfg.Bound)
	if err != nil {
		return nil, err
	}
	return &Maker{
		Activation:    cfg.Activation,
		Dilation:      cfg.Dilation,
		Degree:        cfg.Degree,
		Bound:         cfg.Bound,
		Eps:           cfg.Eps,
		UsePolynomial: usePolynomial,
		Coeffs:        coeffs,
		act:           act,
	}, nil
}

// ActivationFunc returns the function trees built by m apply.
func (m *Maker) ActivationFunc() func(float64) float64 {
	if m.UsePolynomial {
		coeffs := append([]float64{}, m.Coeffs...)
		return func(x float64) float64 { return polynomials.Eval(coeffs, x) }
	}
	f, a := m.act.Float, m.Dilation
	return func(x float64) float64 { return f(a * x) }
}

// MakeTree builds the neural form of t. Only classifiers are supported.
func (m *Maker) MakeTree(t *DecisionTree) (*NeuralTree, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Kind != Classifier {
		return nil, fmt.Errorf("cannot build a %s tree: only classifiers are supported: %w", t.Kind, utils.ErrPrecondition)
	}
	comparator, err := makeComparator(t)
	if err != nil {
		return nil, err
	}
	matcher, err := m.makeMatcher(t)
	if err != nil {
		return nil, err
	}
	head, err := m.makeHead(t)
	if err != nil {
		return nil, err
	}
	return &NeuralTree{
		Comparator: comparator,
		Matcher:    matcher,
		Head:       head,
		Activation: m.ActivationFunc(),
		NLeaves:    len(t.Leaves()),
	}, nil
}

// makeComparator emits one row per decision node: a one-hot on its feature and
// bias -threshold, so the output is positive exactly when the sample goes
// right. A tree reduced to one leaf gets a single zero row.
func makeComparator(t *DecisionTree) (LinearLayer, error) {
	nodes := t.InternalNodes()
	rows := max(len(nodes), 1)
	w := mat.NewDense(rows, t.NFeatures, nil)
	b := make([]float64, rows)
	for k, node := range nodes {
		w.Set(k, t.Feature[node], 1)
		b[k] = -t.Threshold[node]
	}
	return NewLinearLayer(w, b)
}

// makeMatcher scores each leaf from the activated comparisons. With
// sigmoid comparisons c in {0, 1} the row is d/|P| and the bias
// (eps - #right)/|P|, d being +1 for a right turn and -1 for a left one:
// a leaf on the sample's path scores eps/|P|, any other leaf at most
// (eps - 1)/|P|. Tanh comparisons in {-1, 1} are rescaled to the same values.
func (m *Maker) makeMatcher(t *DecisionTree) (LinearLayer, error) {
	nodes := t.InternalNodes()
	col := map[int]int{}
	for k, node := range nodes {
		col[node] = k
	}
	leaves := t.Leaves()
	paths := t.Paths()
	w := mat.NewDense(len(leaves), max(len(nodes), 1), nil)
	b := make([]float64, len(leaves))
	for l, leaf := range leaves {
		path := paths[leaf]
		norm := math.Max(float64(len(path)), 1)
		right := 0.0
		for _, s := range path {
			d := -1.0
			if s.Right {
				d = 1
				right++
			}
			switch m.Activation {
			case "tanh":
				w.Set(l, col[s.Node], d/(2*norm))
			default:
				w.Set(l, col[s.Node], d/norm)
			}
		}
		switch m.Activation {
		case "tanh":
			b[l] = (2*m.Eps - float64(len(path))) / (2 * norm)
		default:
			b[l] = (m.Eps - right) / norm
		}
	}
	return NewLinearLayer(w, b)
}

// makeHead weighs each leaf's class distribution by its match score. Tanh
// scores in {-1, 1} are mapped to {0, 1} through the weights and bias.
func (m *Maker) makeHead(t *DecisionTree) (LinearLayer, error) {
	leaves := t.Leaves()
	w := mat.NewDense(t.NClasses, len(leaves), nil)
	b := make([]float64, t.NClasses)
	for l, leaf := range leaves {
		p := t.LeafDistribution(leaf)
		if m.Activation == "tanh" {
			floats.Scale(0.5, p)
			floats.Add(b, p)
		}
		w.SetCol(l, p)
	}
	return NewLinearLayer(w, b)
}
