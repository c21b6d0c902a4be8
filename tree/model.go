// Package tree turns trained decision trees into three-stage neural trees
// (comparator, matcher, head) whose soft evaluation reproduces the hard
// routing of the original tree.
package tree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/floats"
)

// Kind tags the supervised task a tree was trained for.
type Kind int

const (
	Classifier Kind = iota
	Regressor
)

func (k Kind) String() string {
	switch k {
	case Classifier:
		return "classifier"
	case Regressor:
		return "regressor"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if k != Classifier && k != Regressor {
		return nil, fmt.Errorf("invalid tree kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "classifier", "":
		*k = Classifier
	case "regressor":
		*k = Regressor
	default:
		return fmt.Errorf("unknown tree kind %q: %w", string(b), utils.ErrPrecondition)
	}
	return nil
}

// Leaf marks a missing child.
const Leaf = -1

// DecisionTree is a fitted binary tree in flat-array form. Node 0 is the
// root; a sample goes left when x[Feature[i]] <= Threshold[i]. Value holds
// one row of per-class weights per node.
type DecisionTree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
	NFeatures     int         `json:"n_features"`
	NClasses      int         `json:"n_classes"`
	Kind          Kind        `json:"kind"`
}

// Step is one decision on the way to a leaf.
type Step struct {
	Node  int
	Right bool
}

// NNodes returns the total node count.
func (t *DecisionTree) NNodes() int {
	return len(t.ChildrenLeft)
}

// IsLeaf reports whether node i has no children.
func (t *DecisionTree) IsLeaf(i int) bool {
	return t.ChildrenLeft[i] == Leaf
}

// Validate checks the arrays describe a single well-formed binary tree.
func (t *DecisionTree) Validate() error {
	n := t.NNodes()
	if n == 0 {
		return fmt.Errorf("tree has no nodes: %w", utils.ErrPrecondition)
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays disagree on node count %d: %w", n, utils.ErrPrecondition)
	}
	if t.NClasses < 1 || t.NFeatures < 1 {
		return fmt.Errorf("tree needs n_classes and n_features >= 1 (got %d, %d): %w", t.NClasses, t.NFeatures, utils.ErrPrecondition)
	}
	parents := make([]int, n)
	for i := 0; i < n; i++ {
		if len(t.Value[i]) != t.NClasses {
			return fmt.Errorf("node %d has %d values, want %d: %w", i, len(t.Value[i]), t.NClasses, utils.ErrPrecondition)
		}
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if (l == Leaf) != (r == Leaf) {
			return fmt.Errorf("node %d has a single child: %w", i, utils.ErrPrecondition)
		}
		if l == Leaf {
			continue
		}
		if f := t.Feature[i]; f < 0 || f >= t.NFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d: %w", i, f, t.NFeatures, utils.ErrPrecondition)
		}
		for _, c := range []int{l, r} {
			if c <= 0 || c >= n {
				return fmt.Errorf("node %d has child %d out of range: %w", i, c, utils.ErrPrecondition)
			}
			parents[c]++
		}
	}
	for i := 1; i < n; i++ {
		if parents[i] != 1 {
			return fmt.Errorf("node %d has %d parents: %w", i, parents[i], utils.ErrPrecondition)
		}
	}
	return nil
}

// InternalNodes lists decision nodes in index order.
func (t *DecisionTree) InternalNodes() []int {
	var out []int
	for i := range t.ChildrenLeft {
		if !t.IsLeaf(i) {
			out = append(out, i)
		}
	}
	return out
}

// Leaves lists leaves in index order.
func (t *DecisionTree) Leaves() []int {
	var out []int
	for i := range t.ChildrenLeft {
		if t.IsLeaf(i) {
			out = append(out, i)
		}
	}
	return out
}

// Paths maps every leaf to the decisions leading to it from the root.
func (t *DecisionTree) Paths() map[int][]Step {
	paths := map[int][]Step{}
	var walk func(node int, path []Step)
	walk = func(node int, path []Step) {
		if t.IsLeaf(node) {
			paths[node] = append([]Step{}, path...)
			return
		}
		walk(t.ChildrenLeft[node], append(path, Step{Node: node, Right: false}))
		walk(t.ChildrenRight[node], append(path, Step{Node: node, Right: true}))
	}
	walk(0, nil)
	return paths
}

// Apply returns the leaf x lands in.
func (t *DecisionTree) Apply(x []float64) (int, error) {
	if len(x) < t.NFeatures {
		return 0, fmt.Errorf("sample has %d features, tree expects %d: %w", len(x), t.NFeatures, utils.ErrPrecondition)
	}
	node := 0
	for !t.IsLeaf(node) {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node, nil
}

// LeafDistribution returns the normalized class weights of node i.
func (t *DecisionTree) LeafDistribution(i int) []float64 {
	p := append([]float64{}, t.Value[i]...)
	if s := floats.Sum(p); s != 0 {
		floats.Scale(1/s, p)
	}
	return p
}

// Predict returns the class distribution of the leaf x lands in.
func (t *DecisionTree) Predict(x []float64) ([]float64, error) {
	leaf, err := t.Apply(x)
	if err != nil {
		return nil, err
	}
	return t.LeafDistribution(leaf), nil
}

// PredictClass returns the arg-max class of Predict.
func (t *DecisionTree) PredictClass(x []float64) (int, error) {
	p, err := t.Predict(x)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(p), nil
}
