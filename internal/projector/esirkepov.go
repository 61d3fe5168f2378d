/*
Package projector deposits particle charge and current onto grid buffers.

Current deposition follows Esirkepov's charge-conserving scheme generalised
to any number of resolved axes: for an axis d the density decomposition is

	W_d = DS_d * integral_0^1 prod_{e != d} (S0_e + t DS_e) dt

where S0 and S1 are the shape weights at the old and new positions and
DS = S1 - S0. Summing W_d over d telescopes to prod S1 - prod S0, so the
discrete continuity equation holds to round-off for every particle.
Components along unresolved axes are deposited with v_c times the time
averaged shape.
*/
package projector

import (
	"errors"
	"fmt"
	"math"

	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/interp"
	"github.com/wildstyl3r/ionpic/internal/particles"
	"github.com/wildstyl3r/ionpic/internal/shape"
)

var (
	// ErrDisplacement means a particle moved one cell or more in one step.
	ErrDisplacement = errors.New("displacement exceeds one cell")
	// ErrOutsideBuffer means the stencil does not fit into the target buffer.
	ErrOutsideBuffer = errors.New("stencil outside deposition buffer")
)

const maxStencil = shape.MaxSupport + 2
const maxNodes = maxStencil * maxStencil * maxStencil

type Esirkepov struct {
	shape   shape.Shape
	geom    grid.Geometry
	dt      float64
	sampler *interp.Sampler
}

func New(s shape.Shape, g grid.Geometry, dt float64) *Esirkepov {
	return &Esirkepov{shape: s, geom: g, dt: dt, sampler: interp.New(s, g)}
}

// axes collects the per-axis stencil data of one deposit.
type axes struct {
	start  [3]int
	k      [3]int
	stride [3]int
	s0     [3][maxStencil]float64
	ds     [3][maxStencil]float64
}

func (pr *Esirkepov) prepare(old, cur [3]float64) (ax axes, err error) {
	width := shape.StencilWidth(pr.shape)
	for d := range 3 {
		if d >= pr.geom.NDim {
			ax.k[d] = 1
			ax.s0[d][0] = 1
			continue
		}
		x0 := old[d] / pr.geom.CellLength[d]
		x1 := cur[d] / pr.geom.CellLength[d]
		if !(math.Abs(x1-x0) < 1) {
			return ax, fmt.Errorf("%w: axis %d moved %g cells", ErrDisplacement, d, x1-x0)
		}
		ax.k[d] = width
		ax.start[d] = shape.StencilStart(pr.shape, x0)
		var s1 [maxStencil]float64
		shape.Stencil(pr.shape, x0, ax.start[d], ax.s0[d][:width])
		if !shape.Stencil(pr.shape, x1, ax.start[d], s1[:width]) {
			return ax, fmt.Errorf("%w: axis %d", ErrDisplacement, d)
		}
		for i := range width {
			ax.ds[d][i] = s1[i] - ax.s0[d][i]
		}
	}
	ax.stride[2] = 1
	ax.stride[1] = ax.k[2]
	ax.stride[0] = ax.k[1] * ax.k[2]
	return ax, nil
}

func fits(f *grid.Field, ax *axes) bool {
	return f.Contains(ax.start[0], ax.start[1], ax.start[2]) &&
		f.Contains(ax.start[0]+ax.k[0]-1, ax.start[1]+ax.k[1]-1, ax.start[2]+ax.k[2]-1)
}

// integrateProduct returns integral_0^1 prod_i (a[i] + t b[i]) dt.
func integrateProduct(a, b []float64) float64 {
	var coef [4]float64
	coef[0] = 1
	n := 0
	for i := range a {
		for j := n + 1; j > 0; j-- {
			coef[j] = coef[j]*a[i] + coef[j-1]*b[i]
		}
		coef[0] *= a[i]
		n++
	}
	sum := 0.
	for j := 0; j <= n; j++ {
		sum += coef[j] / float64(j+1)
	}
	return sum
}

// Current deposits the current of p over its move from old to p.Position
// during one step. invGamma is 1/gamma of the momentum used for the move.
func (pr *Esirkepov) Current(buf *grid.Buffer, p *particles.Particle, old [3]float64, invGamma float64) error {
	var v [3]float64
	for c := range 3 {
		v[c] = invGamma * p.Momentum[c]
	}
	return pr.deposit(buf, float64(p.Charge)*p.Weight, old, p.Position, v)
}

// IonizationCurrent deposits the current of an electron freed at the ion
// position from and displaced to e.Position within the step. The move is
// charge-conserving like any other; along unresolved axes the velocity is the
// displacement over the timestep. Nothing is deposited on error.
func (pr *Esirkepov) IonizationCurrent(buf *grid.Buffer, from [3]float64, e *particles.Particle) error {
	var v [3]float64
	for c := range 3 {
		v[c] = (e.Position[c] - from[c]) / pr.dt
	}
	return pr.deposit(buf, float64(e.Charge)*e.Weight, from, e.Position, v)
}

// deposit spreads the current of charge qw moving from old to cur. v holds
// the velocity used for the components along unresolved axes.
func (pr *Esirkepov) deposit(buf *grid.Buffer, qw float64, old, cur, v [3]float64) error {
	ax, err := pr.prepare(old, cur)
	if err != nil {
		return err
	}
	if !fits(buf.Rho, &ax) {
		return ErrOutsideBuffer
	}
	if qw == 0 {
		return nil
	}
	nDim := pr.geom.NDim

	var a, b [3]float64
	var local [maxNodes]float64
	var idx [3]int
	for d := range nDim {
		factor := qw * pr.geom.CellLength[d] / pr.dt
		for idx[0] = 0; idx[0] < ax.k[0]; idx[0]++ {
			for idx[1] = 0; idx[1] < ax.k[1]; idx[1]++ {
				for idx[2] = 0; idx[2] < ax.k[2]; idx[2]++ {
					n := 0
					for e := range nDim {
						if e == d {
							continue
						}
						a[n], b[n] = ax.s0[e][idx[e]], ax.ds[e][idx[e]]
						n++
					}
					l := idx[0]*ax.stride[0] + idx[1]*ax.stride[1] + idx[2]
					w := ax.ds[d][idx[d]] * integrateProduct(a[:n], b[:n])
					if idx[d] > 0 {
						local[l] = local[l-ax.stride[d]] - factor*w
					} else {
						local[l] = -factor * w
					}
					buf.J[d].Add(ax.start[0]+idx[0], ax.start[1]+idx[1], ax.start[2]+idx[2], local[l])
				}
			}
		}
	}

	if nDim == 3 {
		return nil
	}
	// components along unresolved axes
	for idx[0] = 0; idx[0] < ax.k[0]; idx[0]++ {
		for idx[1] = 0; idx[1] < ax.k[1]; idx[1]++ {
			for idx[2] = 0; idx[2] < ax.k[2]; idx[2]++ {
				for e := range nDim {
					a[e], b[e] = ax.s0[e][idx[e]], ax.ds[e][idx[e]]
				}
				w := qw * integrateProduct(a[:nDim], b[:nDim])
				for c := nDim; c < 3; c++ {
					buf.J[c].Add(ax.start[0]+idx[0], ax.start[1]+idx[1], ax.start[2]+idx[2], w*v[c])
				}
			}
		}
	}
	return nil
}

// CurrentAndCharge deposits the current of the move and the charge at the
// new position.
func (pr *Esirkepov) CurrentAndCharge(buf *grid.Buffer, p *particles.Particle, old [3]float64, invGamma float64) error {
	if err := pr.Current(buf, p, old, invGamma); err != nil {
		return err
	}
	pr.Charge(buf, p)
	return nil
}

// Charge deposits the charge density of p at its current position.
func (pr *Esirkepov) Charge(buf *grid.Buffer, p *particles.Particle) {
	pr.sampler.Scatter(buf.Rho, p.Position, float64(p.Charge)*p.Weight)
}
