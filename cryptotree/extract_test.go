package cryptotree

import (
	"testing"

	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/tree"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// stump splits feature 0 at 0.5: mostly class 0 on the left, class 1 on the right.
func stump() *tree.DecisionTree {
	return &tree.DecisionTree{
		ChildrenLeft:  []int{1, tree.Leaf, tree.Leaf},
		ChildrenRight: []int{2, tree.Leaf, tree.Leaf},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{0.5, -2, -2},
		Value:         [][]float64{{3, 5}, {3, 1}, {0, 4}},
		NFeatures:     2,
		NClasses:      2,
	}
}

// depthTwo splits feature 0 at 0.5, then feature 1 at 0.3 on the right.
func depthTwo() *tree.DecisionTree {
	return &tree.DecisionTree{
		ChildrenLeft:  []int{1, tree.Leaf, 3, tree.Leaf, tree.Leaf},
		ChildrenRight: []int{2, tree.Leaf, 4, tree.Leaf, tree.Leaf},
		Feature:       []int{0, -2, 1, -2, -2},
		Threshold:     []float64{0.5, -2, 0.3, -2, -2},
		Value:         [][]float64{{10, 3}, {5, 0}, {5, 3}, {1, 3}, {4, 0}},
		NFeatures:     2,
		NClasses:      2,
	}
}

func constantTree(class int) *tree.DecisionTree {
	v := []float64{0, 0}
	v[class] = 7
	return &tree.DecisionTree{
		ChildrenLeft:  []int{tree.Leaf},
		ChildrenRight: []int{tree.Leaf},
		Feature:       []int{-2},
		Threshold:     []float64{-2},
		Value:         [][]float64{v},
		NFeatures:     2,
		NClasses:      2,
	}
}

func newMaker(t *testing.T, activation string, poly bool) *tree.Maker {
	t.Helper()
	cfg := utils.DefaultConfig()
	cfg.Activation = activation
	m, err := tree.NewMaker(&cfg, poly)
	require.NoError(t, err)
	return m
}

func activationOf(m *tree.Maker) layers.Poly {
	return layers.Poly{Name: m.Activation, Coeffs: m.Coeffs, Tol: utils.DefaultConfig().Tol}
}

func TestExtractStumpLayout(t *testing.T) {
	nt, err := newMaker(t, "sigmoid", false).MakeTree(stump())
	require.NoError(t, err)

	b, err := ExtractTree(nt, 2)
	require.NoError(t, err)
	require.Equal(t, 1, b.NTrees)
	require.Equal(t, 3, b.BlockSize())
	require.Equal(t, 2, b.NFeatures)

	if diff := cmp.Diff([]int{0, InvalidIndex, 0}, b.Index); diff != "" {
		t.Fatalf("index mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []float64{-0.5, 0, -0.5}, b.B0)
	// matcher rows: left leaf -c + 0.5, right leaf c - 0.5
	if diff := cmp.Diff([][]float64{{-1, 0, 0}, {0, 1, 0}}, b.W1); diff != "" {
		t.Fatalf("diagonals mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []float64{0.5, -0.5, 0}, b.B1)
	require.Equal(t, [][]float64{{0.75, 0, 0}, {0.25, 1, 0}}, b.W2)
	require.Equal(t, [][]float64{{0, 0, 0}, {0, 0, 0}}, b.B2)
}

func TestExtractSentinelsAndBlockLengths(t *testing.T) {
	nt, err := newMaker(t, "sigmoid", false).MakeTree(depthTwo())
	require.NoError(t, err)

	for _, L := range []int{3, 4, 6} {
		b, err := ExtractTree(nt, L)
		require.NoError(t, err)
		block := 2*L - 1
		require.Len(t, b.Index, block)
		require.Len(t, b.B0, block)
		require.Len(t, b.B1, block)
		require.Len(t, b.W1, L)
		for _, d := range b.W1 {
			require.Len(t, d, block)
		}
		// [nodes padded to L-1] [sentinel] [same again]
		want := make([]int, L-1)
		for i := range want {
			want[i] = InvalidIndex
		}
		want[0], want[1] = 0, 1
		want = append(append(append([]int{}, want...), InvalidIndex), want...)
		require.Equal(t, want, b.Index, "L=%d", L)
		require.Equal(t, 0.0, b.B0[L-1])
		require.NoError(t, b.Validate())
	}

	_, err = ExtractTree(nt, 2)
	require.ErrorIs(t, err, utils.ErrPrecondition, "three leaves do not fit two")
	_, err = ExtractTree(nt, 1)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestExtractHeadBiasSumsToOriginal(t *testing.T) {
	nt, err := newMaker(t, "tanh", false).MakeTree(depthTwo())
	require.NoError(t, err)
	require.NotZero(t, nt.Head.Bias[0])

	b, err := ExtractTree(nt, 4)
	require.NoError(t, err)
	for c := range b.B2 {
		require.InDelta(t, nt.Head.Bias[c], floats.Sum(b.B2[c]), 1e-12)
		require.Equal(t, 0.0, b.B2[c][4], "only live slots carry bias")
	}
}

func TestExtractRejectsNonSelectingComparator(t *testing.T) {
	m := newMaker(t, "sigmoid", false)

	nt, err := m.MakeTree(depthTwo())
	require.NoError(t, err)
	nt.Comparator.Weight.Set(0, 0, 2)
	_, err = ExtractTree(nt, 3)
	require.ErrorIs(t, err, utils.ErrPrecondition)

	nt, err = m.MakeTree(depthTwo())
	require.NoError(t, err)
	nt.Comparator.Weight.Set(0, 1, 1)
	_, err = ExtractTree(nt, 3)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestAggregateShapes(t *testing.T) {
	m := newMaker(t, "sigmoid", false)
	var bundles []*WeightBundle
	for _, dt := range []*tree.DecisionTree{stump(), depthTwo()} {
		nt, err := m.MakeTree(dt)
		require.NoError(t, err)
		b, err := ExtractTree(nt, 3)
		require.NoError(t, err)
		bundles = append(bundles, b)
	}

	out, err := Aggregate(bundles, []float64{0.25, 0.75}, []float64{1, 2})
	require.NoError(t, err)
	out.Activation = activationOf(m)
	require.NoError(t, out.Validate())
	require.Equal(t, 2, out.NTrees)
	require.Equal(t, 10, out.Width())
	require.Equal(t, append(append([]int{}, bundles[0].Index...), bundles[1].Index...), out.Index)

	// sigmoid heads carry no bias, so the block sums hold only the forest bias
	require.InDelta(t, 1, floats.Sum(out.B2[0]), 1e-12)
	require.InDelta(t, 2, floats.Sum(out.B2[1]), 1e-12)
	require.InDelta(t, 0.75*bundles[1].W2[1][0], out.W2[1][5], 1e-12)

	_, err = Aggregate(bundles, []float64{1}, nil)
	require.ErrorIs(t, err, utils.ErrPrecondition)
	_, err = Aggregate(bundles, []float64{0.5, 0.5}, []float64{1})
	require.ErrorIs(t, err, utils.ErrPrecondition)
	_, err = Aggregate([]*WeightBundle{bundles[0], out}, []float64{0.5, 0.5}, nil)
	require.ErrorIs(t, err, utils.ErrPrecondition)

	nt, err := m.MakeTree(stump())
	require.NoError(t, err)
	small, err := ExtractTree(nt, 2)
	require.NoError(t, err)
	_, err = Aggregate([]*WeightBundle{bundles[0], small}, []float64{0.5, 0.5}, nil)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestExtractForestValidates(t *testing.T) {
	m := newMaker(t, "sigmoid", true)
	f, err := tree.NewNeuralRandomForest([]*tree.DecisionTree{stump(), depthTwo(), constantTree(1)}, m, nil, nil, 0)
	require.NoError(t, err)

	b, err := ExtractForest(f, activationOf(m))
	require.NoError(t, err)
	require.Equal(t, 3, b.NTrees)
	require.Equal(t, 3, b.NLeaves)
	require.Equal(t, 15, b.Width())
	require.Equal(t, m.Coeffs, b.Activation.Coeffs)

	_, err = ExtractForest(f, layers.Poly{Name: "empty"})
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestFeaturizer(t *testing.T) {
	f := NewFeaturizer([]int{0, 1, InvalidIndex, 0, 1}, 2, nil)
	got, err := f.Featurize([]float64{0.3, 0.7})
	require.NoError(t, err)
	require.Equal(t, []float64{0.3, 0.7, 0, 0.3, 0.7}, got)

	_, err = f.Featurize([]float64{0.3})
	require.ErrorIs(t, err, utils.ErrPrecondition)
	_, err = f.Featurize([]float64{0.3, 0.7, 0.1, 0.9, 0.5})
	require.ErrorIs(t, err, utils.ErrPrecondition, "extra columns are a layout mismatch")
	_, err = NewFeaturizer([]int{0, InvalidIndex, 3}, 3, nil).Featurize([]float64{1, 2, 3})
	require.ErrorIs(t, err, utils.ErrPrecondition, "index past the declared features")
	_, err = f.Encrypt([]float64{0.3, 0.7})
	require.ErrorIs(t, err, utils.ErrPrecondition)

	decrypted := [][]float64{{1, 2, 3, 100}, {0.5, 0, 0, 100}}
	require.Equal(t, []float64{6, 0.5}, Scores(decrypted, 3, false))
	require.Equal(t, []float64{1, 0.5}, Scores(decrypted, 3, true))
}

func TestPipelineDepthAndRotations(t *testing.T) {
	m := newMaker(t, "sigmoid", true)
	act := activationOf(m)
	d, err := ActivationDepth(act)
	require.NoError(t, err)
	require.Equal(t, 5, d, "even terms of the sigmoid fit vanish, x^15 is the top power")
	depth, err := PipelineDepth(act)
	require.NoError(t, err)
	require.Equal(t, 12, depth)

	nt, err := m.MakeTree(stump())
	require.NoError(t, err)
	b, err := ExtractTree(nt, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1}, Rotations(b, false))
	require.Equal(t, []int{1, 2}, Rotations(b, true))
}
