package particles

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// binOf bins by the integer part of x, tagging particles through Weight.
func binOf(p *Particle) int {
	return int(math.Floor(p.Position[0]))
}

func at(x, tag float64) Particle {
	return Particle{Position: [3]float64{x}, Weight: tag}
}

func tags(s *Store) []float64 {
	var out []float64
	for _, p := range s.Particles {
		out = append(out, p.Weight)
	}
	return out
}

func TestSortBinsIsStable(t *testing.T) {
	s := NewStore(8)
	s.Add(at(2.5, 1), at(0.1, 2), at(2.1, 3), at(1.9, 4), at(0.7, 5), at(-4, 6), at(9, 7))
	s.SortBins(3, binOf)

	assert.Equal(t, 3, s.Bins())
	// out-of-range keys are clamped into the first and last bins
	assert.Equal(t, []float64{2, 5, 6, 4, 1, 3, 7}, tags(s))
	start, end := s.Bin(0)
	assert.Equal(t, [2]int{0, 3}, [2]int{start, end})
	start, end = s.Bin(1)
	assert.Equal(t, [2]int{3, 4}, [2]int{start, end})
	start, end = s.Bin(2)
	assert.Equal(t, [2]int{4, 7}, [2]int{start, end})
}

func TestRemove(t *testing.T) {
	s := NewStore(0)
	s.Add(at(0.1, 1), at(0.2, 2), at(1.1, 3), at(2.1, 4), at(2.2, 5))
	s.SortBins(3, binOf)
	s.Remove([]int{4, 0, 2, 0})

	assert.Equal(t, []float64{2, 4}, tags(s))
	bmin, bmax := s.BinBounds()
	assert.Equal(t, []int{0, 1, 1}, bmin)
	assert.Equal(t, []int{1, 1, 2}, bmax)

	s.Remove(nil)
	assert.Equal(t, 2, s.Len())
}

func TestMergePending(t *testing.T) {
	s := NewStore(0)
	s.Add(at(1.5, 1))
	s.SortBins(2, binOf)
	n := s.MergePending([]Particle{at(0.5, 2)}, nil, []Particle{at(1.2, 3), at(0.2, 4)})
	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{1, 2, 3, 4}, tags(s))

	s.SortBins(2, binOf)
	assert.Equal(t, []float64{2, 4, 1, 3}, tags(s))
}

func TestSnapshotRestore(t *testing.T) {
	s := NewStore(0)
	s.Add(at(0.5, 1), at(1.5, 2), at(1.7, 3))
	s.SortBins(2, binOf)
	ps, bmin, bmax := s.Snapshot()

	s.Particles[0].Weight = 10
	assert.Equal(t, 1., ps[0].Weight)

	other := NewStore(0)
	require.NoError(t, other.Restore(ps, bmin, bmax))
	assert.Equal(t, []float64{1, 2, 3}, tags(other))
	start, end := other.Bin(1)
	assert.Equal(t, [2]int{1, 3}, [2]int{start, end})

	err := other.Restore(ps[:1], bmin, bmax)
	assert.Error(t, err)
	assert.Equal(t, 3, other.Len())
	assert.Error(t, other.SetBinBounds([]int{0, 2}, []int{1, 3}))
	assert.Error(t, other.SetBinBounds([]int{0}, []int{1, 3}))

	assert.NoError(t, ValidateBinBounds(3, []int{0, 1}, []int{1, 3}))
	assert.Error(t, ValidateBinBounds(3, []int{-1, 1}, []int{1, 3}))
	assert.Error(t, ValidateBinBounds(2, []int{0, 1}, []int{1, 3}))
}

func TestGamma(t *testing.T) {
	p := Particle{Momentum: [3]float64{3, 0, 4}, Weight: 2}
	assert.InDelta(t, math.Sqrt(26), p.Gamma(), 1e-15)
	assert.InDelta(t, 2*(math.Sqrt(26)-1), p.KineticEnergy(), 1e-14)
}
