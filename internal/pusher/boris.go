// Package pusher advances particle momenta and positions with the
// relativistic Boris leap-frog scheme, in units where c = 1 and the
// elementary charge and electron mass are 1.
package pusher

import (
	"errors"
	"fmt"
	"math"

	"github.com/wildstyl3r/ionpic/internal/particles"
)

var ErrInvalidSpecies = errors.New("invalid pusher parameters")

type Boris struct {
	oneOverMass float64
	dt          float64
	dts2        float64
	nDim        int
}

func NewBoris(mass, dt float64, nDim int) (*Boris, error) {
	if !(mass > 0) {
		return nil, fmt.Errorf("%w: mass %g", ErrInvalidSpecies, mass)
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: timestep %g", ErrInvalidSpecies, dt)
	}
	if nDim < 1 || nDim > 3 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrInvalidSpecies, nDim)
	}
	return &Boris{oneOverMass: 1. / mass, dt: dt, dts2: 0.5 * dt, nDim: nDim}, nil
}

func (b *Boris) Timestep() float64 {
	return b.dt
}

// Push advances p by one timestep in the fields e and bf and returns the
// Lorentz factor of the new momentum.
func (b *Boris) Push(p *particles.Particle, e, bf [3]float64) (gamma float64) {
	chargeOverMassDts2 := float64(p.Charge) * b.oneOverMass * b.dts2

	// half acceleration in the electric field
	pxsm := chargeOverMassDts2 * e[0]
	pysm := chargeOverMassDts2 * e[1]
	pzsm := chargeOverMassDts2 * e[2]

	umx := p.Momentum[0] + pxsm
	umy := p.Momentum[1] + pysm
	umz := p.Momentum[2] + pzsm
	gamma = math.Sqrt(1. + umx*umx + umy*umy + umz*umz)

	// rotation in the magnetic field
	alpha := chargeOverMassDts2 / gamma
	tx, ty, tz := alpha*bf[0], alpha*bf[1], alpha*bf[2]
	tx2, ty2, tz2 := tx*tx, ty*ty, tz*tz
	txty, tytz, tztx := tx*ty, ty*tz, tz*tx
	invDetT := 1. / (1. + tx2 + ty2 + tz2)

	upx := ((1.+tx2-ty2-tz2)*umx + 2.*(txty+tz)*umy + 2.*(tztx-ty)*umz) * invDetT
	upy := (2.*(txty-tz)*umx + (1.-tx2+ty2-tz2)*umy + 2.*(tytz+tx)*umz) * invDetT
	upz := (2.*(tztx+ty)*umx + 2.*(tytz-tx)*umy + (1.-tx2-ty2+tz2)*umz) * invDetT

	// second half acceleration
	pxsm += upx
	pysm += upy
	pzsm += upz
	gamma = math.Sqrt(1. + pxsm*pxsm + pysm*pysm + pzsm*pzsm)

	p.Momentum = [3]float64{pxsm, pysm, pzsm}

	invGamma := 1. / gamma
	for d := range b.nDim {
		p.Position[d] += b.dt * p.Momentum[d] * invGamma
	}
	return gamma
}
