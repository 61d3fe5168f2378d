package particles

import (
	"fmt"
	"slices"
)

// Store is the ordered particle collection of one species in one domain.
// After SortBins, bin b holds Particles[bmin[b]:bmax[b]].
type Store struct {
	Particles []Particle
	bmin      []int
	bmax      []int

	scratch []Particle
}

func NewStore(capacity int) *Store {
	return &Store{Particles: make([]Particle, 0, capacity)}
}

func (s *Store) Len() int {
	return len(s.Particles)
}

// Add appends particles. Bin bounds are not updated until the next SortBins.
func (s *Store) Add(ps ...Particle) {
	s.Particles = append(s.Particles, ps...)
}

func (s *Store) Bins() int {
	return len(s.bmin)
}

// Bin returns the half-open index range of bin b.
func (s *Store) Bin(b int) (start, end int) {
	return s.bmin[b], s.bmax[b]
}

// SortBins reorders the particles so that each bin is contiguous, keeping the
// relative order of particles within a bin.
func (s *Store) SortBins(nBins int, binOf func(*Particle) int) {
	counts := make([]int, nBins)
	keys := make([]int, len(s.Particles))
	for i := range s.Particles {
		b := binOf(&s.Particles[i])
		b = max(0, min(nBins-1, b))
		keys[i] = b
		counts[b]++
	}
	s.bmin = make([]int, nBins)
	s.bmax = make([]int, nBins)
	next := make([]int, nBins)
	offset := 0
	for b := range nBins {
		s.bmin[b] = offset
		next[b] = offset
		offset += counts[b]
		s.bmax[b] = offset
	}
	s.scratch = slices.Grow(s.scratch[:0], len(s.Particles))[:len(s.Particles)]
	for i := range s.Particles {
		s.scratch[next[keys[i]]] = s.Particles[i]
		next[keys[i]]++
	}
	s.Particles, s.scratch = s.scratch, s.Particles
}

// Remove deletes the particles at the given indices, preserving the order of
// the rest, and shrinks the bins accordingly.
func (s *Store) Remove(indices []int) {
	if len(indices) == 0 {
		return
	}
	idx := slices.Clone(indices)
	slices.Sort(idx)
	idx = slices.Compact(idx)

	removedInBin := make([]int, len(s.bmin))
	r, w := 0, 0
	for i := range s.Particles {
		if r < len(idx) && idx[r] == i {
			if b, ok := s.binOfIndex(i); ok {
				removedInBin[b]++
			}
			r++
			continue
		}
		s.Particles[w] = s.Particles[i]
		w++
	}
	s.Particles = s.Particles[:w]

	shift := 0
	for b := range s.bmin {
		s.bmin[b] -= shift
		shift += removedInBin[b]
		s.bmax[b] -= shift
	}
}

func (s *Store) binOfIndex(i int) (int, bool) {
	b, _ := slices.BinarySearch(s.bmax, i+1)
	if b < len(s.bmax) && s.bmin[b] <= i {
		return b, true
	}
	return 0, false
}

// MergePending appends the pending lists in order. It is the single point
// where particles created during a parallel pass enter the store.
func (s *Store) MergePending(pending ...[]Particle) int {
	n := 0
	for _, p := range pending {
		s.Particles = append(s.Particles, p...)
		n += len(p)
	}
	return n
}

// BinBounds returns copies of the bin boundary indices.
func (s *Store) BinBounds() (bmin, bmax []int) {
	return slices.Clone(s.bmin), slices.Clone(s.bmax)
}

// SetBinBounds restores bin boundaries, e.g. from a checkpoint.
func (s *Store) SetBinBounds(bmin, bmax []int) error {
	if err := ValidateBinBounds(len(s.Particles), bmin, bmax); err != nil {
		return err
	}
	s.bmin = slices.Clone(bmin)
	s.bmax = slices.Clone(bmax)
	return nil
}

// ValidateBinBounds checks that bmin and bmax describe contiguous bins over
// n particles.
func ValidateBinBounds(n int, bmin, bmax []int) error {
	if len(bmin) != len(bmax) {
		return fmt.Errorf("bin bounds of different length: %d and %d", len(bmin), len(bmax))
	}
	for b := range bmin {
		if bmin[b] < 0 || bmin[b] > bmax[b] || bmax[b] > n || (b > 0 && bmin[b] != bmax[b-1]) {
			return fmt.Errorf("bin %d: invalid range [%d, %d)", b, bmin[b], bmax[b])
		}
	}
	return nil
}

// Snapshot returns copies of the particles and bin bounds.
func (s *Store) Snapshot() (ps []Particle, bmin, bmax []int) {
	bmin, bmax = s.BinBounds()
	return slices.Clone(s.Particles), bmin, bmax
}

// Restore replaces the store content with ps and its bin bounds.
func (s *Store) Restore(ps []Particle, bmin, bmax []int) error {
	old := s.Particles
	s.Particles = slices.Clone(ps)
	if err := s.SetBinBounds(bmin, bmax); err != nil {
		s.Particles = old
		return err
	}
	return nil
}
