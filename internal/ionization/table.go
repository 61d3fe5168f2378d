package ionization

import (
	_ "embed"
	"errors"
	"fmt"
	"math"

	"github.com/BurntSushi/toml"
	"github.com/wildstyl3r/lxgata"

	"github.com/wildstyl3r/ionpic/internal/utils"
)

var (
	ErrAtomicNumber = errors.New("invalid atomic number")
	ErrMissingLevel = errors.New("missing ionization level")
)

//go:embed potentials.toml
var builtinTable string

// Level describes the transition from charge state k to k+1.
type Level struct {
	PotentialEV float64
	Azimuthal   int
}

// Table is the ordered list of levels of one element, Levels[k] belonging to
// charge state k.
type Table struct {
	Name         string
	AtomicNumber int
	Levels       []Level
}

type element struct {
	Name         string    `toml:"name"`
	AtomicNumber int       `toml:"atomic_number"`
	PotentialEV  []float64 `toml:"potential_eV"`
	Azimuthal    []int     `toml:"azimuthal"`
}

type tableFile struct {
	Element []element `toml:"element"`
}

var builtin map[int]Table

func init() {
	var f tableFile
	if _, err := toml.Decode(builtinTable, &f); err != nil {
		panic(fmt.Sprintf("embedded ionization table: %v", err))
	}
	builtin = make(map[int]Table, len(f.Element))
	for _, el := range f.Element {
		if len(el.PotentialEV) != len(el.Azimuthal) {
			panic(fmt.Sprintf("embedded ionization table: %s has %d potentials and %d quantum numbers",
				el.Name, len(el.PotentialEV), len(el.Azimuthal)))
		}
		t := Table{Name: el.Name, AtomicNumber: el.AtomicNumber}
		for i := range el.PotentialEV {
			t.Levels = append(t.Levels, Level{PotentialEV: el.PotentialEV[i], Azimuthal: el.Azimuthal[i]})
		}
		builtin[el.AtomicNumber] = t
	}
}

// Lookup returns the built-in table of the element with atomic number z.
func Lookup(z int) (Table, error) {
	if z <= 0 {
		return Table{}, fmt.Errorf("%w: %d", ErrAtomicNumber, z)
	}
	t, ok := builtin[z]
	if !ok {
		return Table{}, fmt.Errorf("%w: no built-in table for Z = %d", ErrMissingLevel, z)
	}
	return t, t.Validate()
}

// ReadTable loads a custom table from a two-column text file with one
// "potential_eV azimuthal" line per charge state.
func ReadTable(path string, z int) (Table, error) {
	pairs, err := utils.ReadFloatPairs(path)
	if err != nil {
		return Table{}, fmt.Errorf("ionization table %s: %w", path, err)
	}
	t := Table{Name: utils.GetFilename(path), AtomicNumber: z}
	for _, pair := range pairs {
		l := pair[1]
		if l < 0 || l != math.Trunc(l) {
			return Table{}, fmt.Errorf("ionization table %s: azimuthal quantum number %g", path, l)
		}
		t.Levels = append(t.Levels, Level{PotentialEV: pair[0], Azimuthal: int(l)})
	}
	return t, t.Validate()
}

// Validate checks that every charge state below the atomic number has a level.
// Non-monotonic potentials are accepted.
func (t Table) Validate() error {
	if t.AtomicNumber <= 0 {
		return fmt.Errorf("%w: %d", ErrAtomicNumber, t.AtomicNumber)
	}
	if len(t.Levels) < t.AtomicNumber {
		return fmt.Errorf("%w: Z = %d has %d levels, level %d is undefined",
			ErrMissingLevel, t.AtomicNumber, len(t.Levels), len(t.Levels))
	}
	for k := range t.AtomicNumber {
		if !(t.Levels[k].PotentialEV > 0) {
			return fmt.Errorf("%w: level %d of Z = %d has potential %g eV",
				ErrMissingLevel, k, t.AtomicNumber, t.Levels[k].PotentialEV)
		}
	}
	return nil
}

// CompareWithCrossSections returns the relative difference between the first
// ionization potential of t and the lowest ionization threshold of an LXCat
// cross section file.
func CompareWithCrossSections(t Table, path string) (float64, error) {
	collisions, err := lxgata.LoadCrossSections(path)
	if err != nil {
		return 0, fmt.Errorf("cross sections %s: %w", path, err)
	}
	threshold := collisions.MinThresholdOfKind(lxgata.IONIZATION)
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return 0, fmt.Errorf("cross sections %s: no ionization process", path)
	}
	first := t.Levels[0].PotentialEV
	return math.Abs(threshold-first) / first, nil
}
