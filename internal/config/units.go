package config

import (
	"fmt"
	"slices"

	"github.com/wildstyl3r/ionpic/internal/constants"
	"github.com/wildstyl3r/ionpic/internal/utils"
)

var unitToSI = map[string]float64{
	"m":  1,     // [m]
	"cm": 1e-2,  // [m]
	"mm": 1e-3,  // [m]
	"um": 1e-6,  // [m]
	"nm": 1e-9,  // [m]
	"s":  1,     // [s]
	"ns": 1e-9,  // [s]
	"ps": 1e-12, // [s]
	"fs": 1e-15, // [s]
}

type UnitClass int

const (
	Length UnitClass = iota
	Time
)

var unitsInClass = map[UnitClass][]string{
	Length: {"nm", "um", "mm", "cm", "m"},
	Time:   {"fs", "ps", "ns", "s"},
}

var classesOfUnits = map[string]UnitClass{
	"m":  Length,
	"cm": Length,
	"mm": Length,
	"um": Length,
	"nm": Length,
	"s":  Time,
	"ns": Time,
	"ps": Time,
	"fs": Time,
}

type UnitElement = struct {
	Class UnitClass
	Power int
}

var defaultUnits = []string{"um", "fs"}

// checkUnits completes units with the default unit of every missing class and
// reports unknown units and classes given twice.
func checkUnits(units []string) (extended, conflicts []string) {
	classes := map[UnitClass]struct{}{}
	for _, unit := range units {
		class, known := classesOfUnits[unit]
		if !known {
			conflicts = append(conflicts, unit)
			continue
		}
		if _, some := classes[class]; some {
			conflicts = append(conflicts, unit)
		} else {
			classes[class] = struct{}{}
		}
	}
	extended = slices.Clone(units)
	for _, unit := range defaultUnits {
		if _, some := classes[classesOfUnits[unit]]; !some {
			extended = append(extended, unit)
		}
	}
	return
}

// SI converts v given in units to SI (direct) or back.
func SI(v float64, classes []UnitElement, units []string, direct bool) float64 {
	for i := range classes {
		uc := classes[i]
		unit := utils.Intersect(unitsInClass[uc.Class], units)
		if unit == nil {
			continue
		}
		absPower := utils.IntAbs(uc.Power)
		if direct == (uc.Power > 0) {
			for range absPower {
				v *= unitToSI[*unit]
			}
		} else {
			for range absPower {
				v /= unitToSI[*unit]
			}
		}
	}
	return v
}

// normalisation of one SI unit of each class: lengths in c / omega_r and
// times in 1 / omega_r
func codeUnit(class UnitClass, omega float64) float64 {
	switch class {
	case Length:
		return constants.SpeedOfLight / omega
	case Time:
		return 1. / omega
	}
	panic(fmt.Sprintf("unit class %d", class))
}

// Normalize converts v given in units to code units.
func Normalize(v float64, classes []UnitElement, units []string, omega float64) float64 {
	v = SI(v, classes, units, true)
	for _, uc := range classes {
		scale := codeUnit(uc.Class, omega)
		for range utils.IntAbs(uc.Power) {
			if uc.Power > 0 {
				v /= scale
			} else {
				v *= scale
			}
		}
	}
	return v
}
