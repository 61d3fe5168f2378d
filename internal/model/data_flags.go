package model

import (
	"flag"
	"slices"
	"sort"
)

type DataItem struct {
	saveFlag   *bool
	fileSuffix string
}

// FieldGroup is a set of grid fields saved together.
type FieldGroup struct {
	DataItem
	fields []string
}

type DataFlags struct {
	all      *bool
	scalars  *bool
	averaged *bool
	groups   map[string]FieldGroup
}

// NewDataFlags registers the output flags on the command line.
func NewDataFlags() DataFlags {
	return NewDataFlagSet(flag.CommandLine)
}

func NewDataFlagSet(fs *flag.FlagSet) DataFlags {
	return DataFlags{
		all:      fs.Bool("all", false, "save every available field"),
		scalars:  fs.Bool("scalars", true, "save scalar records"),
		averaged: fs.Bool("avg", false, "save time-averaged fields"),
		groups: map[string]FieldGroup{
			"Electric field": {
				DataItem: DataItem{saveFlag: fs.Bool("e", false, "save electric field"), fileSuffix: "E"},
				fields:   []string{"Ex", "Ey", "Ez"},
			},
			"Magnetic field": {
				DataItem: DataItem{saveFlag: fs.Bool("b", false, "save magnetic field"), fileSuffix: "B"},
				fields:   []string{"Bx", "By", "Bz"},
			},
			"Current density": {
				DataItem: DataItem{saveFlag: fs.Bool("j", false, "save current density"), fileSuffix: "J"},
				fields:   []string{"Jx", "Jy", "Jz"},
			},
			"Charge density": {
				DataItem: DataItem{saveFlag: fs.Bool("rho", true, "save charge density"), fileSuffix: "Rho"},
				fields:   []string{"Rho"},
			},
		},
	}
}

// Fields returns the selected field names, restricted to only when it is not
// empty.
func (df DataFlags) Fields(only []string) []string {
	var names []string
	for _, g := range df.groups {
		if !*g.saveFlag && !*df.all {
			continue
		}
		for _, name := range g.fields {
			if len(only) == 0 || slices.Contains(only, name) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (df DataFlags) Scalars() bool {
	return *df.scalars
}

func (df DataFlags) Averaged() bool {
	return *df.averaged || *df.all
}
