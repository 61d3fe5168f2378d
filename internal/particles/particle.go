// Package particles holds the per-species particle records and their
// grouping into spatial bins.
package particles

import "math"

// Particle is one macro-particle. Momentum is normalised to m c of its
// species, Charge is the charge state in units of e.
type Particle struct {
	Position [3]float64
	Momentum [3]float64
	Weight   float64
	Charge   int16
}

// Gamma is the Lorentz factor sqrt(1 + |p|^2).
func (p *Particle) Gamma() float64 {
	return math.Sqrt(1. + p.Momentum[0]*p.Momentum[0] + p.Momentum[1]*p.Momentum[1] + p.Momentum[2]*p.Momentum[2])
}

// KineticEnergy in units of the species rest energy, weighted.
func (p *Particle) KineticEnergy() float64 {
	return p.Weight * (p.Gamma() - 1.)
}

// Params are the immutable physical parameters of a species.
type Params struct {
	Name                      string
	Mass                      float64 // [m_e]
	Charge                    float64 // initial charge state [e]
	AtomicNumber              int
	Timestep                  float64 // [1 / omega_r]
	ReferenceAngularFrequency float64 // [rad / s]
}
