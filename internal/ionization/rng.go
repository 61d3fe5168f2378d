package ionization

import "math"

var xorshiftMaxUint = float64(math.MaxUint32)

// RNG is an xorshift random number generator. It is not thread safe.
type RNG struct {
	w, x, y, z uint32
}

// NewRNG seeds all four state words from seed.
func NewRNG(seed uint64) *RNG {
	a, b := splitmix(seed), splitmix(seed+1)
	gen := &RNG{uint32(a), uint32(a >> 32), uint32(b), uint32(b >> 32)}
	if gen.w|gen.x|gen.y|gen.z == 0 {
		gen.x = 123456789
	}
	return gen
}

// Uniform generates a single random number in the range [0, 1).
func (gen *RNG) Uniform() float64 {
	for {
		t := gen.x ^ (gen.x << 11)
		gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
		gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
		res := float64(math.MaxUint32-gen.w) / xorshiftMaxUint
		if res != 1.0 {
			return res
		}
	}
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Stream hands out draws keyed by (step, species, particle), so a draw does
// not depend on which worker processes the particle or in which order.
type Stream struct {
	seed uint64
}

func NewStream(seed uint64) Stream {
	return Stream{seed: splitmix(seed)}
}

// Draw returns the uniform draw of particle index of species at step.
func (s Stream) Draw(step, species, index int) float64 {
	key := splitmix(s.seed ^ uint64(step))
	key = splitmix(key ^ uint64(species))
	key = splitmix(key ^ uint64(index))
	return NewRNG(key).Uniform()
}
