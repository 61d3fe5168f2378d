// Package interp interpolates staggered grid fields to particle positions
// with the same shape function the projector deposits with.
package interp

import (
	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/shape"
)

type Sampler struct {
	shape shape.Shape
	geom  grid.Geometry
}

func New(s shape.Shape, g grid.Geometry) *Sampler {
	return &Sampler{shape: s, geom: g}
}

func (s *Sampler) Shape() shape.Shape {
	return s.shape
}

// stencil holds per-axis node ranges and weights for one staggering.
type stencil struct {
	first [3]int
	n     [3]int
	w     [3][shape.MaxSupport]float64
}

func (s *Sampler) stencil(dual [3]bool, pos [3]float64) (st stencil) {
	for d := range 3 {
		if d >= s.geom.NDim {
			st.n[d] = 1
			st.w[d][0] = 1
			continue
		}
		x := pos[d] / s.geom.CellLength[d]
		if dual[d] {
			x -= 0.5
		}
		st.first[d] = s.shape.Weights(x, st.w[d][:])
		st.n[d] = s.shape.Support()
	}
	return
}

// Sample interpolates f at pos.
func (s *Sampler) Sample(f *grid.Field, pos [3]float64) (v float64) {
	st := s.stencil(f.Dual, pos)
	for a := range st.n[0] {
		for b := range st.n[1] {
			wab := st.w[0][a] * st.w[1][b]
			for c := range st.n[2] {
				v += wab * st.w[2][c] * f.At(st.first[0]+a, st.first[1]+b, st.first[2]+c)
			}
		}
	}
	return v
}

// Fields returns E and B at pos.
func (s *Sampler) Fields(g *grid.Grid, pos [3]float64) (e, b [3]float64) {
	for c := range 3 {
		e[c] = s.Sample(g.E[c], pos)
		b[c] = s.Sample(g.B[c], pos)
	}
	return
}

// Scatter is the adjoint of Sample: it spreads value over the nodes of f
// around pos with the sampling weights.
func (s *Sampler) Scatter(f *grid.Field, pos [3]float64, value float64) {
	st := s.stencil(f.Dual, pos)
	for a := range st.n[0] {
		for b := range st.n[1] {
			wab := value * st.w[0][a] * st.w[1][b]
			for c := range st.n[2] {
				f.Add(st.first[0]+a, st.first[1]+b, st.first[2]+c, wab*st.w[2][c])
			}
		}
	}
}
