/*
Package grid holds the electromagnetic fields, current and charge densities
of one spatial domain on a staggered (Yee) layout:

	Ex, Jx  dual along x
	Bx      dual along y and z
	rho     primal everywhere

and the same pattern for the other components. Unresolved axes carry no
staggering.
*/
package grid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Ghost is the number of guard nodes kept on each side of every resolved axis.
const Ghost = 3

var ErrUnknownGeometry = errors.New("unknown geometry")

type Geometry struct {
	NDim       int
	Cells      [3]int
	CellLength [3]float64
}

// ParseGeometry maps "1d3v", "2d3v" and "3d3v" to the number of resolved
// dimensions.
func ParseGeometry(name string) (int, error) {
	switch name {
	case "1d3v":
		return 1, nil
	case "2d3v":
		return 2, nil
	case "3d3v":
		return 3, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGeometry, name)
}

func (g Geometry) Validate() error {
	if g.NDim < 1 || g.NDim > 3 {
		return fmt.Errorf("%w: %d dimensions", ErrUnknownGeometry, g.NDim)
	}
	for d := range g.NDim {
		if g.Cells[d] <= 0 {
			return fmt.Errorf("axis %d: %d cells", d, g.Cells[d])
		}
		if g.CellLength[d] <= 0 {
			return fmt.Errorf("axis %d: cell length %g", d, g.CellLength[d])
		}
	}
	return nil
}

// Length is the extent of the domain along axis d.
func (g Geometry) Length(d int) float64 {
	return float64(g.Cells[d]) * g.CellLength[d]
}

// CellVolume is the product of the resolved cell lengths.
func (g Geometry) CellVolume() float64 {
	v := 1.
	for d := range g.NDim {
		v *= g.CellLength[d]
	}
	return v
}

// Inside reports whether pos lies in [0, Length) on every resolved axis.
func (g Geometry) Inside(pos [3]float64) bool {
	for d := range g.NDim {
		if pos[d] < 0 || pos[d] >= g.Length(d) {
			return false
		}
	}
	return true
}

// Dual layouts per component.
func (g Geometry) electricDual(c int) (dual [3]bool) {
	if c < g.NDim {
		dual[c] = true
	}
	return
}

func (g Geometry) magneticDual(c int) (dual [3]bool) {
	for d := range g.NDim {
		dual[d] = d != c
	}
	return
}

// EDual is the staggering of E and J component c.
func (g Geometry) EDual(c int) [3]bool { return g.electricDual(c) }

// BDual is the staggering of B component c.
func (g Geometry) BDual(c int) [3]bool { return g.magneticDual(c) }

// extents returns offsets and dims covering nodes [from, to) along x and the
// full ghosted range along the other resolved axes.
func (g Geometry) extents(from, to int) (offset, dims [3]int) {
	for d := range 3 {
		dims[d] = 1
	}
	offset[0] = from
	dims[0] = to - from
	for d := 1; d < g.NDim; d++ {
		offset[d] = -Ghost
		dims[d] = g.Cells[d] + 1 + 2*Ghost
	}
	return
}

func (g Geometry) fullExtents() (offset, dims [3]int) {
	return g.extents(-Ghost, g.Cells[0]+1+Ghost)
}

var componentNames = [3]string{"x", "y", "z"}

type Grid struct {
	Geometry
	E, B, J [3]*Field
	Rho     *Field

	eAvg, bAvg, jAvg [3]*Field
	rhoAvg           *Field
	avgCount         int
}

func New(g Geometry) (*Grid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	offset, dims := g.fullExtents()
	gr := &Grid{Geometry: g}
	for c := range 3 {
		gr.E[c] = newField("E"+componentNames[c], g.EDual(c), offset, dims)
		gr.B[c] = newField("B"+componentNames[c], g.BDual(c), offset, dims)
		gr.J[c] = newField("J"+componentNames[c], g.EDual(c), offset, dims)
		gr.eAvg[c] = newField("E"+componentNames[c]+"_avg", g.EDual(c), offset, dims)
		gr.bAvg[c] = newField("B"+componentNames[c]+"_avg", g.BDual(c), offset, dims)
		gr.jAvg[c] = newField("J"+componentNames[c]+"_avg", g.EDual(c), offset, dims)
	}
	gr.Rho = newField("Rho", [3]bool{}, offset, dims)
	gr.rhoAvg = newField("Rho_avg", [3]bool{}, offset, dims)
	return gr, nil
}

// All lists the instantaneous fields in dump order.
func (g *Grid) All() []*Field {
	return []*Field{g.E[0], g.E[1], g.E[2], g.B[0], g.B[1], g.B[2], g.J[0], g.J[1], g.J[2], g.Rho}
}

// AllAverages lists the running-average accumulators in dump order.
func (g *Grid) AllAverages() []*Field {
	return []*Field{g.eAvg[0], g.eAvg[1], g.eAvg[2], g.bAvg[0], g.bAvg[1], g.bAvg[2], g.jAvg[0], g.jAvg[1], g.jAvg[2], g.rhoAvg}
}

func (g *Grid) Field(name string) *Field {
	for _, f := range append(g.All(), g.AllAverages()...) {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RestartRhoJ zeroes the current and charge densities before a deposition pass.
func (g *Grid) RestartRhoJ() {
	for c := range 3 {
		g.J[c].Zero()
	}
	g.Rho.Zero()
}

// Buffer is a private deposition target: the J and rho components over an
// x-slab of the grid. A buffer covering the whole grid has the grid's own
// extents.
type Buffer struct {
	J   [3]*Field
	Rho *Field
}

func (g Geometry) newBuffer(offset, dims [3]int) *Buffer {
	b := &Buffer{}
	for c := range 3 {
		b.J[c] = newField("J"+componentNames[c], g.EDual(c), offset, dims)
	}
	b.Rho = newField("Rho", [3]bool{}, offset, dims)
	return b
}

// NewBuffer allocates a buffer with the extents of the whole grid.
func (g *Grid) NewBuffer() *Buffer {
	offset, dims := g.fullExtents()
	return g.newBuffer(offset, dims)
}

// NewBinBuffer allocates a buffer covering cells [firstCell, lastCell) along x
// plus the guard nodes needed by any deposition stencil.
func (g *Grid) NewBinBuffer(firstCell, lastCell int) *Buffer {
	offset, dims := g.extents(firstCell-Ghost, lastCell+1+Ghost)
	return g.newBuffer(offset, dims)
}

// Rebase moves a bin buffer to start at firstCell, keeping its width, and
// zeroes it.
func (b *Buffer) Rebase(firstCell int) {
	for _, f := range b.fields() {
		f.Offset[0] = firstCell - Ghost
		f.Zero()
	}
}

// Width is the number of cells a bin buffer covers along x.
func (b *Buffer) Width() int {
	return b.Rho.Dims[0] - 1 - 2*Ghost
}

func (b *Buffer) fields() []*Field {
	return []*Field{b.J[0], b.J[1], b.J[2], b.Rho}
}

func (b *Buffer) Zero() {
	for _, f := range b.fields() {
		f.Zero()
	}
}

// AddTo folds b into dst, which must cover b along x.
func (b *Buffer) AddTo(dst *Buffer) error {
	src, to := b.fields(), dst.fields()
	for i := range src {
		if err := src[i].AddTo(to[i]); err != nil {
			return err
		}
	}
	return nil
}

// Reduce adds the buffers into the grid's J and rho in the given order.
func (g *Grid) Reduce(buffers ...*Buffer) error {
	target := &Buffer{J: g.J, Rho: g.Rho}
	for _, b := range buffers {
		if err := b.AddTo(target); err != nil {
			return err
		}
	}
	return nil
}

// IncrementAverage adds the current E, B, J and rho to the running sums.
func (g *Grid) IncrementAverage() {
	inst, avg := g.All(), g.AllAverages()
	for i := range inst {
		floats.Add(avg[i].Data, inst[i].Data)
	}
	g.avgCount++
}

func (g *Grid) ResetAverage() {
	for _, f := range g.AllAverages() {
		f.Zero()
	}
	g.avgCount = 0
}

func (g *Grid) AverageCount() int {
	return g.avgCount
}

// Averaged returns the mean of the accumulated samples of every field, named
// after the instantaneous field with an "_avg" suffix. It returns nil when no
// sample was accumulated.
func (g *Grid) Averaged() []*Field {
	if g.avgCount == 0 {
		return nil
	}
	var out []*Field
	for _, f := range g.AllAverages() {
		mean := f.Clone()
		floats.Scale(1./float64(g.avgCount), mean.Data)
		out = append(out, mean)
	}
	return out
}

// SetAverageState restores the averaging accumulators, used on restart.
func (g *Grid) SetAverageState(count int) {
	g.avgCount = count
}
