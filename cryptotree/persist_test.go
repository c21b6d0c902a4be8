package cryptotree

import (
	"path/filepath"
	"testing"

	"github.com/dhuynh95/cryptotree/tree"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func forestBundle(t *testing.T) *WeightBundle {
	t.Helper()
	m := newMaker(t, "tanh", true)
	f, err := tree.NewNeuralRandomForest([]*tree.DecisionTree{stump(), depthTwo()}, m, []float64{0.4, 0.6}, []float64{0.1, -0.1}, 0)
	require.NoError(t, err)
	b, err := ExtractForest(f, activationOf(m))
	require.NoError(t, err)
	return b
}

func TestBundleRoundTrip(t *testing.T) {
	b := forestBundle(t)
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, SaveBundle(path, b))

	got, err := LoadBundle(path)
	require.NoError(t, err)
	if diff := cmp.Diff(b, got); diff != "" {
		t.Fatalf("bundle mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, b.Digest(), got.Digest())
}

func TestLoadBundleRejectsTamperedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, SaveBundle(path, forestBundle(t)))

	var f BundleFile
	require.NoError(t, utils.LoadJSON(path, &f))
	f.Index[0], f.Index[1] = f.Index[1], f.Index[0]
	require.NoError(t, utils.SaveJSON(path, f))

	_, err := LoadBundle(path)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestIndexFile(t *testing.T) {
	b := forestBundle(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	require.NoError(t, SaveIndex(path, b))

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	require.Equal(t, b.Digest(), idx.Digest)
	require.Equal(t, b.Index, idx.Index)
	require.Equal(t, b.Width(), idx.Width())
	require.Equal(t, Rotations(b, true), idx.Rotations)
	depth, err := PipelineDepth(b.Activation)
	require.NoError(t, err)
	require.Equal(t, depth, idx.Depth)
	require.Equal(t, "tanh", idx.Activation)

	idx.NClasses = 3
	require.NoError(t, utils.SaveJSON(path, idx))
	_, err = LoadIndex(path)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}
