/*
Package ionization implements field (tunnel) ionization of ions with the
Ammosov-Delone-Krainov rate in atomic units. Charge states only increase, one
level per call, and every event frees one electron with the ion's weight.
*/
package ionization

import (
	"errors"
	"fmt"
	"math"

	"github.com/wildstyl3r/ionpic/internal/constants"
	"github.com/wildstyl3r/ionpic/internal/particles"
	"github.com/wildstyl3r/ionpic/internal/utils"
)

var ErrParameters = errors.New("invalid ionization parameters")

// minFieldAU is the field [au] below which no ionization is computed.
const minFieldAU = 1e-10

// Event is the result of one ionization.
type Event struct {
	Level        int                // charge state before the event
	Electron     particles.Particle // freed electron, already displaced
	Displacement [3]float64         // electron position relative to the ion
}

type Tunnel struct {
	atomicNumber int
	dt           float64
	potential    []float64 // [au]
	alpha, beta  []float64
	gamma        []float64
	ecToAU       float64
	auToW0       float64
}

// NewTunnel precomputes the rate coefficients of every level of the species.
func NewTunnel(params particles.Params, table Table) (*Tunnel, error) {
	if params.AtomicNumber != table.AtomicNumber {
		return nil, fmt.Errorf("%w: species Z = %d, table Z = %d", ErrAtomicNumber, params.AtomicNumber, table.AtomicNumber)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if !(params.Timestep > 0) || !(params.ReferenceAngularFrequency > 0) {
		return nil, fmt.Errorf("%w: timestep %g, reference angular frequency %g",
			ErrParameters, params.Timestep, params.ReferenceAngularFrequency)
	}
	z := params.AtomicNumber
	t := &Tunnel{
		atomicNumber: z,
		dt:           params.Timestep,
		potential:    make([]float64, z),
		alpha:        make([]float64, z),
		beta:         make([]float64, z),
		gamma:        make([]float64, z),
		ecToAU:       constants.FieldToAUPerOmega * params.ReferenceAngularFrequency,
		auToW0:       constants.AUFrequencyTimesOmega / params.ReferenceAngularFrequency,
	}
	for k := range z {
		ip := table.Levels[k].PotentialEV * constants.EVToAU
		l := float64(table.Levels[k].Azimuthal)
		twoNStar := float64(k+1) * math.Sqrt(2./ip)
		t.potential[k] = ip
		t.alpha[k] = twoNStar - 1.
		t.beta[k] = math.Pow(2, t.alpha[k]) * (8.*l + 4.) / (twoNStar * math.Gamma(twoNStar)) * ip * t.auToW0
		t.gamma[k] = 2. * math.Pow(2.*ip, 1.5)
	}
	return t, nil
}

func (t *Tunnel) AtomicNumber() int {
	return t.atomicNumber
}

// Rate is the ionization rate [omega_r] of charge state k in a field of
// normalised magnitude e.
func (t *Tunnel) Rate(k int, e float64) float64 {
	eAU := t.ecToAU * e
	if eAU < minFieldAU {
		return 0
	}
	delta := t.gamma[k] / eAU
	return t.beta[k] * math.Exp(-delta/3.+t.alpha[k]*math.Log(delta))
}

// Probability of leaving charge state k during one timestep.
func (t *Tunnel) Probability(k int, e float64) float64 {
	return -math.Expm1(-t.Rate(k, e) * t.dt)
}

// Ionize ionizes p by one level when draw falls below the transition
// probability in the field e. The ion's charge is incremented in place.
func (t *Tunnel) Ionize(p *particles.Particle, e [3]float64, draw float64) (Event, bool) {
	k := int(p.Charge)
	if k < 0 || k >= t.atomicNumber {
		return Event{}, false
	}
	e2 := e[0]*e[0] + e[1]*e[1] + e[2]*e[2]
	if draw >= t.Probability(k, math.Sqrt(e2)) {
		return Event{}, false
	}
	p.Charge++
	ev := Event{
		Level: k,
		Electron: particles.Particle{
			Position: p.Position,
			Momentum: p.Momentum,
			Weight:   p.Weight,
			Charge:   -1,
		},
	}
	// the electron is moved against E far enough that its current takes
	// q w E.d = w Ip out of the field
	shift := -t.potential[k] * constants.AUToMeC2 / e2
	for c := range 3 {
		ev.Displacement[c] = shift * e[c]
		ev.Electron.Position[c] += ev.Displacement[c]
	}
	return ev, true
}

// AppearanceField returns the normalised field at which the per-step
// probability of leaving charge state k reaches one half. ok is false when
// the rate never gets there.
func (t *Tunnel) AppearanceField(k int) (e float64, ok bool) {
	lo := minFieldAU / t.ecToAU
	// the rate peaks at delta = 3 alpha
	hi := t.gamma[k] / max(3.*t.alpha[k], minFieldAU) / t.ecToAU
	half := func(e float64) bool { return t.Probability(k, e) >= 0.5 }
	if !half(hi) {
		return 0, false
	}
	_, e = utils.LogBinarySearch(half, lo, hi, 1e-6)
	return e, true
}
