package layers

import (
	"math/rand"
	"testing"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/linear"
	"github.com/dhuynh95/cryptotree/polynomials"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type testKit struct {
	he    *ckkswrapper.HeContext
	kit   *ckkswrapper.ServerKit
	store *ckkswrapper.PlainStore
}

func newTestKit(t *testing.T, depth int, rots []int) *testKit {
	t.Helper()
	he, err := ckkswrapper.NewHeContext(ckkswrapper.ParametersForDepth(12, 30, 40, depth))
	require.NoError(t, err)
	return &testKit{
		he:    he,
		kit:   he.GenServerKit(rots),
		store: ckkswrapper.NewPlainStore(he.Params),
	}
}

func TestActivationSigmoidPolynomial(t *testing.T) {
	coeffs, err := polynomials.Approximate(polynomials.Sigmoid, 16, 16, 1)
	require.NoError(t, err)

	tk := newTestKit(t, 5, nil)
	act, err := NewActivation(tk.store, Poly{Name: "sigmoid", Coeffs: coeffs, Tol: 1e-6})
	require.NoError(t, err)
	require.Equal(t, 5, act.Levels())

	inputs := []float64{-0.9, 0, 0.5, 0.99}
	ct, err := tk.he.EncryptValues(inputs)
	require.NoError(t, err)

	out, err := act.Forward(tk.kit.Worker(), ct)
	require.NoError(t, err)
	require.Equal(t, 0, out.Level())
	require.Equal(t, 0, out.Scale.Cmp(tk.he.Params.DefaultScale()))

	got, err := tk.he.DecryptValues(out)
	require.NoError(t, err)
	for i, x := range inputs {
		require.InDelta(t, polynomials.Eval(coeffs, x), got[i], 1e-2, "x=%v", x)
	}
	require.InDelta(t, 0.5, got[1], 1e-2)
	require.Greater(t, got[2], 0.9)
	require.Less(t, got[0], 0.1)
}

func TestActivationPrunedToConstant(t *testing.T) {
	tk := newTestKit(t, 2, nil)
	act, err := NewActivation(tk.store, Poly{Name: "flat", Coeffs: []float64{0.7, 1e-9, -1e-8}, Tol: 1e-6})
	require.NoError(t, err)
	require.Equal(t, 0, act.Levels())

	ct, err := tk.he.EncryptValues([]float64{0.3, -0.6})
	require.NoError(t, err)

	eval := NewWrappedEvaluator(tk.kit.Worker())
	out, err := act.Forward(eval, ct)
	require.NoError(t, err)
	require.NotNil(t, out)

	counts := eval.Counts()
	require.Zero(t, counts.Mul)
	require.Zero(t, counts.Rescale)
	require.Equal(t, ct.Level(), out.Level())

	got, err := tk.he.DecryptValues(out)
	require.NoError(t, err)
	require.InDelta(t, 0.7, got[0], 1e-4)
	require.InDelta(t, 0.7, got[1], 1e-4)

	plain, err := act.ForwardPlain([]float64{0.3})
	require.NoError(t, err)
	require.Equal(t, []float64{0.7}, plain)
}

func TestComputeAllPowersOnePerPower(t *testing.T) {
	tk := newTestKit(t, 3, nil)
	schedule, err := polynomials.PowerSchedule(5)
	require.NoError(t, err)

	ct, err := tk.he.EncryptValues([]float64{0.5})
	require.NoError(t, err)
	eval := NewWrappedEvaluator(tk.kit.Worker())

	powers, err := ComputeAllPowers(eval, ct, schedule, nil)
	require.NoError(t, err)
	require.Equal(t, int64(4), eval.Counts().Mul)
	require.Equal(t, int64(4), eval.Counts().Relin)

	for i := 1; i <= 5; i++ {
		require.Equal(t, ct.Level()-schedule.Levels[i], powers[i].Level(), "power %d", i)
		got, err := tk.he.DecryptValues(powers[i])
		require.NoError(t, err)
		want := 1.0
		for k := 0; k < i; k++ {
			want *= 0.5
		}
		require.InDelta(t, want, got[0], 1e-4, "power %d", i)
	}

	// x^16 needs four squarings plus the coefficient product
	c := make([]float64, 17)
	c[16] = 1
	_, err = EvalPolynomial(tk.kit.Worker(), tk.store, ct, c, 1e-6)
	require.ErrorIs(t, err, utils.ErrDepthExhausted)
}

func TestLinearMatchesClearProduct(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const dim = 4
	data := make([]float64, dim*dim)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	m := mat.NewDense(dim, dim, data)
	x := []float64{0.1, -0.4, 0.7, 0.2}
	bias := []float64{0.5, 0, -0.5, 1}

	diags, err := linear.ExtractDiagonals(m)
	require.NoError(t, err)

	he, err := ckkswrapper.NewHeContext(ckkswrapper.ParametersForDepth(12, 30, 40, 1))
	require.NoError(t, err)
	store := ckkswrapper.NewPlainStore(he.Params)
	lin, err := NewLinear(store, "w", diags, bias)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, lin.RequiredRotations())
	kit := he.GenServerKit(lin.RequiredRotations())

	// x followed by its first dim-1 entries keeps every rotation in range
	block := linear.Concat(x, x[:dim-1])
	ct, err := he.EncryptValues(block)
	require.NoError(t, err)

	out, err := lin.Forward(kit.Worker(), ct)
	require.NoError(t, err)
	got, err := he.DecryptValues(out)
	require.NoError(t, err)

	var want mat.VecDense
	want.MulVec(m, mat.NewVecDense(dim, x))
	plain, err := lin.ForwardPlain(block)
	require.NoError(t, err)
	for i := 0; i < dim; i++ {
		require.InDelta(t, want.AtVec(i)+bias[i], got[i], 1e-4)
		require.InDelta(t, want.AtVec(i)+bias[i], plain[i], 1e-12)
	}
	for i := dim; i < len(block); i++ {
		require.InDelta(t, 0, got[i], 1e-4)
	}
}

func TestLinearSkipsZeroDiagonals(t *testing.T) {
	tk := newTestKit(t, 1, []int{2})
	diags := [][]float64{{1, 1, 1}, {0, 0, 0}, {2, 0, 0}}
	lin, err := NewLinear(tk.store, "sparse", diags, nil)
	require.NoError(t, err)
	require.Equal(t, []int{2}, lin.RequiredRotations())

	ct, err := tk.he.EncryptValues([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	eval := NewWrappedEvaluator(tk.kit.Worker())
	out, err := lin.Forward(eval, ct)
	require.NoError(t, err)
	require.Equal(t, int64(1), eval.Counts().Rotate)

	got, err := tk.he.DecryptValues(out)
	require.NoError(t, err)
	require.InDelta(t, 1+2*3, got[0], 1e-4)
	require.InDelta(t, 2, got[1], 1e-4)

	zero, err := NewLinear(tk.store, "zero", [][]float64{{0, 0}, {0, 0}}, []float64{0.5, -1})
	require.NoError(t, err)
	require.Empty(t, zero.RequiredRotations())
	out, err = zero.Forward(tk.kit.Worker(), ct)
	require.NoError(t, err)
	got, err = tk.he.DecryptValues(out)
	require.NoError(t, err)
	require.InDelta(t, 0.5, got[0], 1e-4)
	require.InDelta(t, -1, got[1], 1e-4)

	_, err = NewLinear(tk.store, "empty", nil, nil)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestSumReduceAndDotProduct(t *testing.T) {
	tk := newTestKit(t, 1, linear.ReduceSteps(5))
	x := []float64{1, 2, 3, 4, 5}
	ct, err := tk.he.EncryptValues(x)
	require.NoError(t, err)

	sum, err := SumReduce(tk.kit.Worker(), ct, len(x))
	require.NoError(t, err)
	got, err := tk.he.DecryptValues(sum)
	require.NoError(t, err)
	require.InDelta(t, 15, got[0], 1e-4)

	v, err := tk.store.Vector([]float64{1, 0, 2, 0, 1})
	require.NoError(t, err)
	dot, err := DotProductPlain(tk.kit.Worker(), ct, v, len(x))
	require.NoError(t, err)
	got, err = tk.he.DecryptValues(dot)
	require.NoError(t, err)
	require.InDelta(t, 12, got[0], 1e-4)

	r := &Reduce{Width: 5}
	plain, err := r.ForwardPlain(linear.PadVector(x, 8))
	require.NoError(t, err)
	require.Equal(t, 15.0, plain[0])
	require.Equal(t, []int{1, 2, 4}, r.RequiredRotations())
}

func TestElementwiseAndBias(t *testing.T) {
	tk := newTestKit(t, 1, nil)
	e, err := NewElementwise(tk.store, "head", []float64{2, -1}, []float64{0.5, 0.5})
	require.NoError(t, err)
	b, err := NewBias(tk.store, "b0", []float64{-0.25, 0.25, 1})
	require.NoError(t, err)

	ct, err := tk.he.EncryptValues([]float64{0.5, 0.25, 3})
	require.NoError(t, err)
	eval := tk.kit.Worker()

	shifted, err := b.Forward(eval, ct)
	require.NoError(t, err)
	out, err := e.Forward(eval, shifted)
	require.NoError(t, err)
	got, err := tk.he.DecryptValues(out)
	require.NoError(t, err)

	plainShifted, err := b.ForwardPlain([]float64{0.5, 0.25, 3})
	require.NoError(t, err)
	plain, err := e.ForwardPlain(plainShifted)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0, 0}, plain)
	for i := range plain {
		require.InDelta(t, plain[i], got[i], 1e-4)
	}
	require.Equal(t, 1, e.Levels())
	require.Equal(t, 0, b.Levels())

	// a zero bias costs no addition
	unbiased, err := NewElementwise(tk.store, "head", []float64{2, -1}, []float64{0, 0})
	require.NoError(t, err)
	counted := NewWrappedEvaluator(eval)
	out, err = unbiased.Forward(counted, shifted)
	require.NoError(t, err)
	require.Zero(t, counted.Counts().Add)
	got, err = tk.he.DecryptValues(out)
	require.NoError(t, err)
	require.InDelta(t, 0.5, got[0], 1e-4)
	require.InDelta(t, -0.5, got[1], 1e-4)
}

func TestWrappedBackendSharesCounters(t *testing.T) {
	tk := newTestKit(t, 1, nil)
	w := WrapBackend(tk.kit)
	ct, err := tk.he.EncryptValues([]float64{1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := w.Worker().AddNew(ct, ct)
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), w.Counts().Add)
	w.ResetCounters()
	require.Zero(t, w.Counts().Add)
	require.Equal(t, tk.he.Params.MaxLevel(), w.Parameters().MaxLevel())
}
