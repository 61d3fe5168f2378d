// Package shape provides the particle shape functions shared by field
// interpolation and charge/current deposition. Positions are given in cell
// units relative to the grid (primal nodes sit on integers).
package shape

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedOrder = errors.New("unsupported interpolation order")

// MaxSupport is the largest number of nodes any shape touches.
const MaxSupport = 3

type Shape interface {
	Order() int
	// Support is the number of nodes receiving a weight.
	Support() int
	// Weights writes Support() weights into w and returns the index of the
	// node w[0] belongs to.
	Weights(x float64, w []float64) (first int)
}

func New(order int) (Shape, error) {
	switch order {
	case 1:
		return Linear{}, nil
	case 2:
		return Quadratic{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedOrder, order)
}

// Linear is the cloud-in-cell shape.
type Linear struct{}

func (Linear) Order() int   { return 1 }
func (Linear) Support() int { return 2 }

func (Linear) Weights(x float64, w []float64) int {
	i := math.Floor(x)
	delta := x - i
	w[0] = 1. - delta
	w[1] = delta
	return int(i)
}

// Quadratic is the triangular-shaped-cloud shape, centred on the nearest node.
type Quadratic struct{}

func (Quadratic) Order() int   { return 2 }
func (Quadratic) Support() int { return 3 }

func (Quadratic) Weights(x float64, w []float64) int {
	i := math.Floor(x + 0.5)
	delta := x - i
	w[0] = 0.5 * (0.5 - delta) * (0.5 - delta)
	w[1] = 0.75 - delta*delta
	w[2] = 0.5 * (0.5 + delta) * (0.5 + delta)
	return int(i) - 1
}

// StencilWidth is the number of nodes a charge-conserving deposit needs along
// one axis when a particle moves less than one cell.
func StencilWidth(s Shape) int {
	return s.Order() + 3
}

// StencilStart returns the first node of the deposition stencil for a
// particle whose old position is x.
func StencilStart(s Shape, x float64) int {
	var w [MaxSupport]float64
	first := s.Weights(x, w[:])
	return first - 1
}

// Stencil writes the weights of position x onto out, whose element 0
// corresponds to node start. Nodes outside the shape support are zero. It
// reports false when the support does not fit into out.
func Stencil(s Shape, x float64, start int, out []float64) bool {
	for i := range out {
		out[i] = 0
	}
	var w [MaxSupport]float64
	first := s.Weights(x, w[:]) - start
	if first < 0 || first+s.Support() > len(out) {
		return false
	}
	copy(out[first:], w[:s.Support()])
	return true
}
