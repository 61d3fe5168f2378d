package model

import "github.com/wildstyl3r/ionpic/internal/grid"

// FieldSolver advances E and B from the current deposited on the grid. It is
// called once per step after every species has deposited.
type FieldSolver interface {
	Solve(g *grid.Grid, step int) error
}

// StaticSolver keeps uniform external fields on the grid.
type StaticSolver struct {
	E, B [3]float64
}

func (s StaticSolver) Solve(g *grid.Grid, step int) error {
	for c := range 3 {
		fill(g.E[c].Data, s.E[c])
		fill(g.B[c].Data, s.B[c])
	}
	return nil
}

func fill(data []float64, v float64) {
	for i := range data {
		data[i] = v
	}
}

// NewStaticSolver builds a solver from optional 3-component field values.
func NewStaticSolver(e, b []float64) StaticSolver {
	var s StaticSolver
	copy(s.E[:], e)
	copy(s.B[:], b)
	return s
}
