package ckkswrapper

import (
	"errors"
	"math"
	"testing"

	"github.com/dhuynh95/cryptotree/utils"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Small insecure ring for fast tests.
func newTestContext(t *testing.T, depth int) *HeContext {
	t.Helper()
	h, err := NewHeContext(ParametersForDepth(12, 30, 40, depth))
	require.NoError(t, err)
	return h
}

func TestHeContextRoundTrip(t *testing.T) {
	h := newTestContext(t, 2)
	vals := []float64{3.1415926535, -0.5, 0.25}
	ct, err := h.EncryptValues(vals)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	got, err := h.DecryptValues(ct)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	for i, v := range vals {
		if diff := got[i] - v; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("roundtrip mismatch at %d: got %f, want %f", i, got[i], v)
		}
	}

	kit := h.GenServerKit([]int{1, 2, -1})
	ct2, err := kit.Evaluator.MulRelinNew(ct, ct)
	if err != nil {
		t.Fatalf("evaluator MulRelinNew error: %v", err)
	}
	_ = ct2
}

func TestParametersForDepth(t *testing.T) {
	lit := ParametersForDepth(12, 28, 37, 13)
	require.Equal(t, 14, len(lit.LogQ))
	require.Equal(t, 37, lit.LogQ[0])
	require.Equal(t, 28, lit.LogQ[13])
	require.Equal(t, []int{37}, lit.LogP)

	params, err := ckks.NewParametersFromLiteral(lit)
	require.NoError(t, err)
	require.Equal(t, 13, params.MaxLevel())
	require.NoError(t, CheckDepth(params, 13))

	err = CheckDepth(params, 14)
	require.True(t, errors.Is(err, utils.ErrDepthExhausted))
}

func TestRotationKeys(t *testing.T) {
	h := newTestContext(t, 1)
	require.Equal(t, []int{1, 3, h.Params.MaxSlots() - 1}, normalizeRotations([]int{0, 3, 1, -1, 1, h.Params.MaxSlots()}, h.Params.MaxSlots()))

	kit := h.GenServerKit([]int{1, -1})
	ct, err := h.EncryptValues([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	left, err := kit.Worker().RotateNew(ct, 1)
	require.NoError(t, err)
	got, err := h.DecryptValues(left)
	require.NoError(t, err)
	require.InDelta(t, 2, got[0], 1e-4)
	require.InDelta(t, 4, got[2], 1e-4)

	right, err := kit.Worker().RotateNew(ct, -1)
	require.NoError(t, err)
	got, err = h.DecryptValues(right)
	require.NoError(t, err)
	require.InDelta(t, 1, got[1], 1e-4)
}

func TestRescaleAtLevelZero(t *testing.T) {
	h := newTestContext(t, 1)
	kit := h.GenServerKit(nil)
	ct, err := h.EncryptValues([]float64{0.5})
	require.NoError(t, err)

	down, err := Rescale(kit.Worker(), ct)
	require.NoError(t, err)
	require.Equal(t, 0, LevelsRemaining(down))

	_, err = Rescale(kit.Worker(), down)
	require.ErrorIs(t, err, utils.ErrDepthExhausted)
}

func TestPlainVectorAlignOrCopy(t *testing.T) {
	h := newTestContext(t, 3)
	store := NewPlainStore(h.Params)
	v, err := store.Vector([]float64{1, 2, 3})
	require.NoError(t, err)

	top, err := v.At(3, h.Params.DefaultScale())
	require.NoError(t, err)
	low, err := v.At(1, h.Params.DefaultScale())
	require.NoError(t, err)
	again, err := v.At(3, h.Params.DefaultScale())
	require.NoError(t, err)

	require.Equal(t, 3, top.Level())
	require.Equal(t, 1, low.Level())
	require.Same(t, top, again)
	require.Equal(t, 2, v.Encodings())
	require.Equal(t, []float64{1, 2, 3}, v.Values())

	_, err = store.Vector(make([]float64, h.Params.MaxSlots()+1))
	require.Error(t, err)
	require.True(t, store.Constant(0).IsZero())
}

func TestMulPlainRescaleExactScale(t *testing.T) {
	h := newTestContext(t, 3)
	kit := h.GenServerKit(nil)
	store := NewPlainStore(h.Params)
	eval := kit.Worker()

	x := []float64{0.5, -0.25, 0.75}
	ct, err := h.EncryptValues(x)
	require.NoError(t, err)

	// square once so the scale is no longer the default one
	sq, err := eval.MulRelinNew(ct, ct)
	require.NoError(t, err)
	sq, err = Rescale(eval, sq)
	require.NoError(t, err)

	w, err := store.Vector([]float64{2, 4, -1})
	require.NoError(t, err)
	out, err := MulPlainRescale(eval, sq, w)
	require.NoError(t, err)
	require.Equal(t, 0, out.Scale.Cmp(h.Params.DefaultScale()))
	require.Equal(t, sq.Level()-1, out.Level())

	b, err := store.Vector([]float64{1, 1, 1})
	require.NoError(t, err)
	out, err = AddPlain(eval, out, b)
	require.NoError(t, err)

	got, err := h.DecryptValues(out)
	require.NoError(t, err)
	want := []float64{2*0.25 + 1, 4*0.0625 + 1, -0.5625 + 1}
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-4)
	}
}

func TestAlignLevels(t *testing.T) {
	h := newTestContext(t, 3)
	eval := h.GenServerKit(nil).Worker()
	a, err := h.EncryptValues([]float64{1})
	require.NoError(t, err)
	b, err := h.EncryptValues([]float64{2})
	require.NoError(t, err)
	eval.DropLevel(b, 2)

	AlignLevels(eval, a, b)
	require.Equal(t, b.Level(), a.Level())
}

func TestOracleDebugCompare(t *testing.T) {
	h := newTestContext(t, 1)
	o := NewOracle(h, 1e-3)
	var labels []string
	o.Reports = func(label string, maxDiff float64, idx int) { labels = append(labels, label) }

	ct, err := h.EncryptValues([]float64{0.1, 0.2, 0.3})
	require.NoError(t, err)

	diff, err := o.DebugCompare(ct, []float64{0.1, 0.2, 0.3}, "clean")
	require.NoError(t, err)
	require.Less(t, diff, 1e-3)

	diff, err = o.DebugCompare(ct, []float64{0.1, 0.2, 0.4}, "shifted")
	require.ErrorIs(t, err, utils.ErrOracleMismatch)
	require.InDelta(t, 0.1, diff, 1e-3)
	require.Equal(t, []string{"clean", "shifted"}, labels)
	require.False(t, math.IsNaN(diff))
}
