package model

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/wildstyl3r/ionpic/internal/config"
	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/ionization"
	"github.com/wildstyl3r/ionpic/internal/particles"
	"github.com/wildstyl3r/ionpic/internal/pusher"
)

// Species is one particle population with its pusher and, for ions, its
// ionization model.
type Species struct {
	Index      int
	Params     particles.Params
	Store      *particles.Store
	TimeFrozen float64

	pusher *pusher.Boris
	tunnel *ionization.Tunnel
	target int // index of the species receiving freed electrons
}

func (s *Species) Ionizing() bool {
	return s.tunnel != nil
}

func newSpecies(index int, name string, sp config.SpeciesParameters, cfg *config.Config, nDim int, logger *slog.Logger) (*Species, error) {
	s := &Species{
		Index: index,
		Params: particles.Params{
			Name:                      name,
			Mass:                      sp.Mass,
			Charge:                    sp.Charge,
			AtomicNumber:              sp.AtomicNumber,
			Timestep:                  cfg.Timestep,
			ReferenceAngularFrequency: cfg.ReferenceAngularFrequency,
		},
		Store:      particles.NewStore(0),
		TimeFrozen: sp.TimeFrozen,
		target:     -1,
	}
	var err error
	if s.pusher, err = pusher.NewBoris(sp.Mass, cfg.Timestep, nDim); err != nil {
		return nil, fmt.Errorf("%w: species %s: %w", config.ErrConfig, name, err)
	}
	if sp.IonizationModel == "" {
		return s, nil
	}

	var table ionization.Table
	if sp.IonizationTable != "" {
		table, err = ionization.ReadTable(sp.IonizationTable, sp.AtomicNumber)
	} else {
		table, err = ionization.Lookup(sp.AtomicNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: species %s: %w", config.ErrConfig, name, err)
	}
	if s.tunnel, err = ionization.NewTunnel(s.Params, table); err != nil {
		return nil, fmt.Errorf("%w: species %s: %w", config.ErrConfig, name, err)
	}
	if sp.CrossSections != "" {
		mismatch, err := ionization.CompareWithCrossSections(table, sp.CrossSections)
		if err != nil {
			return nil, fmt.Errorf("%w: species %s: %w", config.ErrConfig, name, err)
		}
		if mismatch > 0.05 {
			logger.Warn("first ionization potential differs from cross section threshold",
				"species", name, "relative_difference", mismatch)
		}
	}
	for k := range sp.AtomicNumber {
		if e, ok := s.tunnel.AppearanceField(k); ok {
			logger.Debug("appearance field", "species", name, "level", k, "field", e)
		}
	}
	return s, nil
}

// load fills the store with ParticlesPerCell particles in every cell.
func (s *Species) load(sp config.SpeciesParameters, geom grid.Geometry, rng *ionization.RNG) {
	n := sp.ParticlesPerCell
	if n == 0 || sp.Density == 0 {
		return
	}
	var momentum [3]float64
	if len(sp.MeanVelocity) == 3 {
		v2 := sp.MeanVelocity[0]*sp.MeanVelocity[0] + sp.MeanVelocity[1]*sp.MeanVelocity[1] + sp.MeanVelocity[2]*sp.MeanVelocity[2]
		lorentz := 1. / math.Sqrt(1.-v2)
		for c := range 3 {
			momentum[c] = lorentz * sp.MeanVelocity[c]
		}
	}
	weight := sp.Density / float64(n)

	// regular loading uses a lattice when n is a perfect power, otherwise
	// stratifies along x
	perAxis := int(math.Round(math.Pow(float64(n), 1./float64(geom.NDim))))
	lattice := 1
	for range geom.NDim {
		lattice *= perAxis
	}

	var cells [3]int
	for d := range 3 {
		cells[d] = 1
		if d < geom.NDim {
			cells[d] = geom.Cells[d]
		}
	}
	for i := range cells[0] {
		for j := range cells[1] {
			for k := range cells[2] {
				cell := [3]int{i, j, k}
				for q := range n {
					p := particles.Particle{Momentum: momentum, Weight: weight, Charge: int16(sp.Charge)}
					for d := range geom.NDim {
						var frac float64
						switch {
						case sp.Position == "random":
							frac = rng.Uniform()
						case lattice == n:
							stride := 1
							for range d {
								stride *= perAxis
							}
							frac = (float64((q/stride)%perAxis) + 0.5) / float64(perAxis)
						case d == 0:
							frac = (float64(q) + 0.5) / float64(n)
						default:
							frac = 0.5
						}
						p.Position[d] = (float64(cell[d]) + frac) * geom.CellLength[d]
					}
					s.Store.Add(p)
				}
			}
		}
	}
}
