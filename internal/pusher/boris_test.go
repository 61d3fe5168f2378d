package pusher

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildstyl3r/ionpic/internal/particles"
)

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func TestInvalidParameters(t *testing.T) {
	_, err := NewBoris(0, 0.1, 1)
	assert.ErrorIs(t, err, ErrInvalidSpecies)
	_, err = NewBoris(1, -0.1, 1)
	assert.ErrorIs(t, err, ErrInvalidSpecies)
	_, err = NewBoris(1, 0.1, 4)
	assert.ErrorIs(t, err, ErrInvalidSpecies)
}

func TestRotationPreservesMomentum(t *testing.T) {
	b, err := NewBoris(1, 0.1, 3)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		bf := [3]float64{rng.NormFloat64() * 10, rng.NormFloat64() * 10, rng.NormFloat64() * 10}
		p := particles.Particle{
			Momentum: [3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
			Charge:   int16(rng.IntN(5)) - 2,
			Weight:   1,
		}
		before := norm(p.Momentum)
		gamma := b.Push(&p, [3]float64{}, bf)
		assert.InDelta(t, before, norm(p.Momentum), 1e-12*max(1, before))
		assert.InDelta(t, math.Sqrt(1+before*before), gamma, 1e-12*max(1, before))
	}
}

func TestZeroFieldIsIdempotent(t *testing.T) {
	b, err := NewBoris(1, 0.01, 3)
	require.NoError(t, err)
	p := particles.Particle{Position: [3]float64{0.5, 1.5, 2.5}, Weight: 1, Charge: 1}
	start := p
	for range 1000 {
		assert.Equal(t, 1., b.Push(&p, [3]float64{}, [3]float64{}))
	}
	assert.Equal(t, start, p)
}

func TestUniformElectricField(t *testing.T) {
	const dt = 0.01
	b, err := NewBoris(1, dt, 3)
	require.NoError(t, err)
	p := particles.Particle{Weight: 1, Charge: 1}
	e := [3]float64{1, 0, 0}
	for n := 1; n <= 100; n++ {
		b.Push(&p, e, [3]float64{})
		require.InDelta(t, float64(n)*dt, p.Momentum[0], 1e-12)
		// x(t) = sqrt(1 + t^2) - 1 for a particle starting at rest
		tn := float64(n) * dt
		require.InDelta(t, math.Sqrt(1+tn*tn)-1, p.Position[0], dt)
	}
	assert.Zero(t, p.Momentum[1])
	assert.Zero(t, p.Momentum[2])
	assert.Zero(t, p.Position[1])
}

func TestCircularOrbit(t *testing.T) {
	const dt = 0.05
	b, err := NewBoris(1, dt, 2)
	require.NoError(t, err)
	p := particles.Particle{Momentum: [3]float64{1, 0, 0}, Weight: 1, Charge: 1}
	bf := [3]float64{0, 0, 1}

	// gyration radius p / (q B) around (0, -1)
	angle := 0.
	for range 2000 {
		prev := p.Momentum
		b.Push(&p, [3]float64{}, bf)
		require.InDelta(t, 1, norm(p.Momentum), 1e-12)
		require.Zero(t, p.Momentum[2])
		require.InDelta(t, 1, math.Hypot(p.Position[0], p.Position[1]+1), 0.05)
		angle += math.Atan2(prev[0]*p.Momentum[1]-prev[1]*p.Momentum[0], prev[0]*p.Momentum[0]+prev[1]*p.Momentum[1])
	}
	// positive charges gyrate clockwise at omega = 1 / gamma
	assert.InDelta(t, -2000*dt/math.Sqrt2, angle, 0.01*2000*dt)
}

func TestOnlyResolvedAxesMove(t *testing.T) {
	b, err := NewBoris(1, 0.1, 1)
	require.NoError(t, err)
	p := particles.Particle{Momentum: [3]float64{0.1, 0.2, 0.3}, Weight: 1, Charge: -1}
	b.Push(&p, [3]float64{}, [3]float64{})
	assert.Greater(t, p.Position[0], 0.)
	assert.Zero(t, p.Position[1])
	assert.Zero(t, p.Position[2])
}
