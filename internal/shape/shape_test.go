package shape

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for order := 1; order <= 2; order++ {
		s, err := New(order)
		require.NoError(t, err)
		assert.Equal(t, order, s.Order())
		assert.Equal(t, order+1, s.Support())
	}
	_, err := New(3)
	assert.ErrorIs(t, err, ErrUnsupportedOrder)
}

func TestWeightsPartitionUnity(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, s := range []Shape{Linear{}, Quadratic{}} {
		var w [MaxSupport]float64
		for range 1000 {
			x := 40 * (r.Float64() - 0.5)
			first := s.Weights(x, w[:])
			sum, moment := 0., 0.
			for i := range s.Support() {
				require.GreaterOrEqual(t, w[i], 0.)
				sum += w[i]
				moment += w[i] * float64(first+i)
			}
			assert.InDelta(t, 1, sum, 1e-14)
			// both shapes preserve the particle position
			assert.InDelta(t, x, moment, 1e-12)
		}
	}
}

func TestOnNode(t *testing.T) {
	var w [MaxSupport]float64
	first := Linear{}.Weights(3, w[:])
	assert.Equal(t, 3, first)
	assert.Equal(t, []float64{1, 0}, w[:2])

	first = Quadratic{}.Weights(3, w[:])
	assert.Equal(t, 2, first)
	assert.Equal(t, []float64{0.125, 0.75, 0.125}, w[:])
}

func TestStencil(t *testing.T) {
	for _, s := range []Shape{Linear{}, Quadratic{}} {
		out := make([]float64, StencilWidth(s))
		x := 5.3
		start := StencilStart(s, x)
		require.True(t, Stencil(s, x, start, out))
		assert.Zero(t, out[0])
		sum := 0.
		for _, v := range out {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-15)

		// a displacement below one cell stays within the stencil
		assert.True(t, Stencil(s, x+0.99, start, out))
		assert.True(t, Stencil(s, x-0.99, start, out))
		assert.False(t, Stencil(s, x+2.5, start, out))
	}
}
