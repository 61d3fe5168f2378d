package projector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/particles"
	"github.com/wildstyl3r/ionpic/internal/shape"
)

const dt = 0.05

func setup(t *testing.T, order, nDim int) (*grid.Grid, *Esirkepov) {
	t.Helper()
	geom := grid.Geometry{NDim: nDim, Cells: [3]int{16, 12, 10}, CellLength: [3]float64{0.2, 0.25, 0.3}}
	g, err := grid.New(geom)
	require.NoError(t, err)
	s, err := shape.New(order)
	require.NoError(t, err)
	return g, New(s, geom, dt)
}

// residual returns the largest violation of
// rho1 - rho0 + dt * div J = 0 over the grid nodes.
func residual(g *grid.Grid, before, after *grid.Buffer) float64 {
	worst := 0.
	hi := [3]int{1, 1, 1}
	lo := [3]int{0, 0, 0}
	for d := range g.NDim {
		lo[d] = -Ghost + 1
		hi[d] = g.Cells[d] + Ghost
	}
	for i := lo[0]; i < hi[0]; i++ {
		for j := lo[1]; j < hi[1]; j++ {
			for k := lo[2]; k < hi[2]; k++ {
				r := after.Rho.At(i, j, k) - before.Rho.At(i, j, k)
				prev := [3][3]int{{i - 1, j, k}, {i, j - 1, k}, {i, j, k - 1}}
				for d := range g.NDim {
					jd := after.J[d]
					r += dt * (jd.At(i, j, k) - jd.At(prev[d][0], prev[d][1], prev[d][2])) / g.CellLength[d]
				}
				if r < 0 {
					r = -r
				}
				worst = max(worst, r)
			}
		}
	}
	return worst
}

const Ghost = grid.Ghost

func TestContinuity(t *testing.T) {
	moves := [][2][3]float64{
		{{1.51, 1.22, 1.43}, {1.58, 1.17, 1.47}},
		{{1.01, 1.99, 1.05}, {1.19, 1.76, 1.31}},
		{{2.09, 0.74, 0.61}, {1.95, 0.98, 0.70}},
		{{0.60, 0.50, 0.45}, {0.60, 0.50, 0.45}},
	}
	for _, order := range []int{1, 2} {
		for _, nDim := range []int{1, 2, 3} {
			g, pr := setup(t, order, nDim)
			for _, m := range moves {
				p := particles.Particle{Position: m[0], Momentum: [3]float64{0.3, -0.2, 0.4}, Weight: 0.7, Charge: -1}
				before := g.NewBuffer()
				pr.Charge(before, &p)

				p.Position = m[1]
				after := g.NewBuffer()
				require.NoError(t, pr.CurrentAndCharge(after, &p, m[0], 1/p.Gamma()))
				assert.InDelta(t, 0, residual(g, before, after), 1e-12, "order %d, %dD, move %v", order, nDim, m)
			}
		}
	}
}

func TestCurrentFirstMoment(t *testing.T) {
	for _, order := range []int{1, 2} {
		g, pr := setup(t, order, 1)
		old := [3]float64{1.23, 0, 0}
		p := particles.Particle{Position: [3]float64{1.31, 0, 0}, Momentum: [3]float64{0.1, 0.2, -0.5}, Weight: 2, Charge: 3}
		buf := g.NewBuffer()
		invGamma := 1 / p.Gamma()
		require.NoError(t, pr.Current(buf, &p, old, invGamma))

		qw := 6.
		sum := func(f *grid.Field) (s float64) {
			for _, v := range f.Data {
				s += v
			}
			return s
		}
		assert.InDelta(t, qw*(p.Position[0]-old[0])/dt, sum(buf.J[0]), 1e-10)
		assert.InDelta(t, qw*p.Momentum[1]*invGamma, sum(buf.J[1]), 1e-12)
		assert.InDelta(t, qw*p.Momentum[2]*invGamma, sum(buf.J[2]), 1e-12)
		assert.Zero(t, sum(buf.Rho))
	}
}

func TestBinBufferMatchesGlobal(t *testing.T) {
	g, pr := setup(t, 2, 2)
	p := particles.Particle{Position: [3]float64{1.05, 1.4, 0}, Momentum: [3]float64{0.5, 0.1, 0.2}, Weight: 1.5, Charge: 1}
	old := [3]float64{0.97, 1.45, 0}

	global := g.NewBuffer()
	require.NoError(t, pr.CurrentAndCharge(global, &p, old, 1/p.Gamma()))

	bin := g.NewBinBuffer(4, 8)
	require.NoError(t, pr.CurrentAndCharge(bin, &p, old, 1/p.Gamma()))
	folded := g.NewBuffer()
	require.NoError(t, bin.AddTo(folded))

	for c := range 3 {
		assert.Equal(t, global.J[c].Data, folded.J[c].Data)
	}
	assert.Equal(t, global.Rho.Data, folded.Rho.Data)
}

func TestStencilOutsideBinBuffer(t *testing.T) {
	g, pr := setup(t, 1, 1)
	bin := g.NewBinBuffer(10, 12)
	p := particles.Particle{Position: [3]float64{0.5, 0, 0}, Weight: 1, Charge: 1}
	assert.ErrorIs(t, pr.Current(bin, &p, [3]float64{0.45, 0, 0}, 1), ErrOutsideBuffer)
}

func TestDisplacementFault(t *testing.T) {
	g, pr := setup(t, 1, 2)
	p := particles.Particle{Position: [3]float64{1.5, 1.0, 0}, Weight: 1, Charge: 1}
	buf := g.NewBuffer()
	err := pr.Current(buf, &p, [3]float64{1.0, 1.0, 0}, 1)
	assert.ErrorIs(t, err, ErrDisplacement)
	for _, v := range buf.J[0].Data {
		require.Zero(t, v)
	}
}

func TestIonizationCurrentContinuity(t *testing.T) {
	from := [3]float64{1.1, 0.9, 1.3}
	shifts := [][3]float64{
		{0.03, 0, 0},
		{-0.04, 0.02, 0.01},
		{0, 0.05, -0.02},
	}
	sum := func(f *grid.Field) (s float64) {
		for _, v := range f.Data {
			s += v
		}
		return s
	}
	for _, order := range []int{1, 2} {
		for _, nDim := range []int{1, 2, 3} {
			g, pr := setup(t, order, nDim)
			for _, d := range shifts {
				e := particles.Particle{Weight: 0.5, Charge: -1}
				e.Position = from
				before := g.NewBuffer()
				pr.Charge(before, &e)

				for c := range 3 {
					e.Position[c] = from[c] + d[c]
				}
				after := g.NewBuffer()
				require.NoError(t, pr.IonizationCurrent(after, from, &e))
				pr.Charge(after, &e)
				assert.InDelta(t, 0, residual(g, before, after), 1e-12, "order %d, %dD, shift %v", order, nDim, d)
				for c := range 3 {
					assert.InDelta(t, -0.5*d[c]/dt, sum(after.J[c]), 1e-10, "order %d, %dD, component %d", order, nDim, c)
				}
			}
		}
	}
}

func TestIonizationCurrentFault(t *testing.T) {
	g, pr := setup(t, 2, 1)
	buf := g.NewBuffer()
	e := particles.Particle{Position: [3]float64{1.45, 0, 0}, Weight: 1, Charge: -1}
	assert.ErrorIs(t, pr.IonizationCurrent(buf, [3]float64{1.2, 0, 0}, &e), ErrDisplacement)
	for c := range 3 {
		for _, v := range buf.J[c].Data {
			require.Zero(t, v)
		}
	}
}
