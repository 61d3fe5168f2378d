package grid

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Field is one scalar component on the staggered grid. Node i along axis d is
// located at (i + 0.5*Dual[d]) * CellLength[d]; array element 0 along that
// axis is node Offset[d]. Axes the geometry does not resolve have extent 1.
type Field struct {
	Name   string
	Dual   [3]bool
	Offset [3]int
	Dims   [3]int
	Data   []float64
}

func newField(name string, dual [3]bool, offset, dims [3]int) *Field {
	return &Field{
		Name:   name,
		Dual:   dual,
		Offset: offset,
		Dims:   dims,
		Data:   make([]float64, dims[0]*dims[1]*dims[2]),
	}
}

// Index maps global node indices to the position in Data. Axes with extent 1
// ignore their index.
func (f *Field) Index(i, j, k int) int {
	if f.Dims[1] == 1 {
		j = f.Offset[1]
	}
	if f.Dims[2] == 1 {
		k = f.Offset[2]
	}
	return ((i-f.Offset[0])*f.Dims[1]+(j-f.Offset[1]))*f.Dims[2] + (k - f.Offset[2])
}

// Contains reports whether the global node (i, j, k) is stored in f.
func (f *Field) Contains(i, j, k int) bool {
	idx := [3]int{i, j, k}
	for d := range 3 {
		if f.Dims[d] == 1 {
			continue
		}
		if idx[d] < f.Offset[d] || idx[d] >= f.Offset[d]+f.Dims[d] {
			return false
		}
	}
	return true
}

func (f *Field) At(i, j, k int) float64 {
	return f.Data[f.Index(i, j, k)]
}

func (f *Field) Set(i, j, k int, v float64) {
	f.Data[f.Index(i, j, k)] = v
}

func (f *Field) Add(i, j, k int, v float64) {
	f.Data[f.Index(i, j, k)] += v
}

func (f *Field) Zero() {
	clear(f.Data)
}

// AddTo accumulates f into dst. f must be an x-slab of dst: identical extents
// and offsets on axes 1 and 2 and contained along axis 0.
func (f *Field) AddTo(dst *Field) error {
	if f.Dims[1] != dst.Dims[1] || f.Dims[2] != dst.Dims[2] ||
		f.Offset[1] != dst.Offset[1] || f.Offset[2] != dst.Offset[2] {
		return fmt.Errorf("field %s: incompatible slab %v@%v for %v@%v", f.Name, f.Dims, f.Offset, dst.Dims, dst.Offset)
	}
	first := f.Offset[0] - dst.Offset[0]
	if first < 0 || first+f.Dims[0] > dst.Dims[0] {
		return fmt.Errorf("field %s: slab [%d, %d) outside [%d, %d)", f.Name,
			f.Offset[0], f.Offset[0]+f.Dims[0], dst.Offset[0], dst.Offset[0]+dst.Dims[0])
	}
	plane := f.Dims[1] * f.Dims[2]
	floats.Add(dst.Data[first*plane:(first+f.Dims[0])*plane], f.Data)
	return nil
}

func (f *Field) Clone() *Field {
	c := *f
	c.Data = make([]float64, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}
