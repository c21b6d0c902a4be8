package polynomials

import (
	"math"
	"testing"

	"github.com/dhuynh95/cryptotree/utils"

	"github.com/stretchr/testify/require"
)

func TestPowerScheduleLevels(t *testing.T) {
	for d := 1; d <= 32; d++ {
		s, err := PowerSchedule(d)
		require.NoError(t, err)
		require.Equal(t, int(math.Ceil(math.Log2(float64(d)))), s.Depth(), "degree %d", d)

		for i := 2; i <= d; i++ {
			l, r := s.Operands(i)
			require.GreaterOrEqual(t, l, 1)
			require.LessOrEqual(t, l, r)
			require.Less(t, r, i)
			require.Equal(t, max(s.Levels[l], s.Levels[r])+1, s.Levels[i])
		}
	}
}

func TestPowerScheduleFirstMinimumWins(t *testing.T) {
	s, err := PowerSchedule(8)
	require.NoError(t, err)
	require.Equal(t, []int{0, 0, 1, 2, 2, 3, 3, 3, 3}, s.Levels)
	l, r := s.Operands(6)
	require.Equal(t, 2, l)
	require.Equal(t, 4, r)
	l, r = s.Operands(7)
	require.Equal(t, 3, l)
	require.Equal(t, 4, r)

	_, err = PowerSchedule(0)
	require.ErrorIs(t, err, utils.ErrPrecondition)
}

func TestNeededPowersAndDepth(t *testing.T) {
	s, err := PowerSchedule(16)
	require.NoError(t, err)

	odd := make([]float64, 17)
	for i := 1; i <= 15; i += 2 {
		odd[i] = 1
	}
	need := s.Needed(odd, 1e-6)
	require.False(t, need[0])
	require.False(t, need[16])
	require.True(t, need[15])
	l, r := s.Operands(15)
	require.True(t, need[l] && need[r])
	require.Equal(t, 5, s.EvalDepth(odd, 1e-6))

	constant := []float64{0.5, 1e-9, 0, 0}
	require.Equal(t, 0, s.EvalDepth(constant, 1e-6))
	for _, n := range s.Needed(constant, 1e-6) {
		require.False(t, n)
	}
	require.Equal(t, []float64{0.5, 0, 0, 0}, Prune(constant, 1e-6))
	require.Equal(t, 1e-9, constant[1])
}
