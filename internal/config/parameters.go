package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/facette/natsort"
	"gopkg.in/yaml.v3"

	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/shape"
)

var ErrConfig = errors.New("invalid configuration")

type Config struct {
	OutputDir  string
	MakeDir    bool
	InputUnits []string
	SimulationParameters `yaml:",inline"`
	Species     map[string]SpeciesParameters
	Diagnostics DiagnosticsParameters
	Checkpoint  CheckpointParameters
}

type SimulationParameters struct {
	Geometry                  string
	InterpolationOrder        int
	Cells                     []int
	CellLength                []float64 // [c / omega_r]
	Timestep                  float64   // [1 / omega_r]
	SimulationTime            float64   // [1 / omega_r]
	ReferenceAngularFrequency float64   // [rad / s]
	ClusterWidth              int       // cells per bin along x
	Workers                   int
	Seed                      uint64
	TimeAverage               int    // steps per averaging window, 0 disables averaging
	FaultPolicy               string // drop, clamp or fatal
	ExternalE                 []float64
	ExternalB                 []float64
}

type SpeciesParameters struct {
	Mass                float64 // [m_e]
	Charge              float64 // [e]
	AtomicNumber        int
	IonizationModel     string // "" or "tunnel"
	IonizationElectrons string // species receiving the freed electrons
	IonizationTable     string // optional "potential_eV l" table file
	CrossSections       string // optional LXCat file to cross-check the table
	TimeFrozen          float64 // [1 / omega_r]
	Position            string  // regular or random
	ParticlesPerCell    int
	Density             float64   // [n_c]
	MeanVelocity        []float64 // [c]
}

type DiagnosticsParameters struct {
	Every          int // steps between scalar records, 0 disables them
	FieldsEvery    int // steps between field dumps, 0 disables them
	Fields         []string
	AveragedFields bool
}

type CheckpointParameters struct {
	DumpStep         int
	DumpFileSequence int
	ExitAfterDump    bool
	RestartDir       string
}

var defaultValues = map[string]any{
	"Geometry":                  "1d3v",
	"InterpolationOrder":        2,
	"ReferenceAngularFrequency": 1.8836515673088532e15, // 2 pi c / 1 um
	"ClusterWidth":              4,
	"Workers":                   runtime.NumCPU(),
	"Seed":                      uint64(1),
	"FaultPolicy":               "drop",
}

var speciesDefaultValues = map[string]any{
	"Mass":     1.,
	"Position": "regular",
	"Density":  1.,
}

var diagnosticsDefaultValues = map[string]any{
	"Every": 10,
}

var checkpointDefaultValues = map[string]any{
	"DumpFileSequence": 2,
}

var valueUnits = map[string][]UnitElement{
	"CellLength":     {{Class: Length, Power: 1}},
	"Timestep":       {{Class: Time, Power: 1}},
	"SimulationTime": {{Class: Time, Power: 1}},
	"TimeFrozen":     {{Class: Time, Power: 1}},
}

var FaultPolicies = []string{"drop", "clamp", "fatal"}
var Positions = []string{"regular", "random"}

func LoadConfig(configFileName string) (Config, error) {
	var config Config
	path := strings.TrimSuffix(configFileName, ".toml") + ".toml"
	meta, err := toml.DecodeFile(path, &config)
	if err != nil {
		return config, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config, fmt.Errorf("%w: unknown keys %v", ErrConfig, undecoded)
	}

	setDefaults(reflect.ValueOf(&config.SimulationParameters).Elem(), nil, defaultValues, &meta)
	setDefaults(reflect.ValueOf(&config.Diagnostics).Elem(), []string{"Diagnostics"}, diagnosticsDefaultValues, &meta)
	setDefaults(reflect.ValueOf(&config.Checkpoint).Elem(), []string{"Checkpoint"}, checkpointDefaultValues, &meta)
	for name, sp := range config.Species {
		setDefaults(reflect.ValueOf(&sp).Elem(), []string{"Species", name}, speciesDefaultValues, &meta)
		config.Species[name] = sp
	}

	if len(config.InputUnits) > 0 {
		var unitsConflict []string
		config.InputUnits, unitsConflict = checkUnits(config.InputUnits)
		if len(unitsConflict) > 0 {
			return config, fmt.Errorf("%w: input unit conflict: %v", ErrConfig, unitsConflict)
		}
		omega := config.ReferenceAngularFrequency
		if !(omega > 0) {
			return config, fmt.Errorf("%w: reference angular frequency %g", ErrConfig, omega)
		}
		toCodeUnits(reflect.ValueOf(&config.SimulationParameters).Elem(), config.InputUnits, omega)
		for name, sp := range config.Species {
			toCodeUnits(reflect.ValueOf(&sp).Elem(), config.InputUnits, omega)
			config.Species[name] = sp
		}
	}

	return config, config.Validate()
}

func setDefaults(target reflect.Value, path []string, defaults map[string]any, meta *toml.MetaData) {
	for fieldName, value := range defaults {
		if !meta.IsDefined(append(slices.Clone(path), fieldName)...) {
			target.FieldByName(fieldName).Set(reflect.ValueOf(value))
		}
	}
}

func toCodeUnits(target reflect.Value, units []string, omega float64) {
	for name, classes := range valueUnits {
		field := target.FieldByName(name)
		switch {
		case !field.IsValid():
		case field.CanFloat():
			field.SetFloat(Normalize(field.Float(), classes, units, omega))
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Float64:
			for i := range field.Len() {
				field.Index(i).SetFloat(Normalize(field.Index(i).Float(), classes, units, omega))
			}
		}
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if _, err := c.GridGeometry(); err != nil {
		return err
	}
	if _, err := shape.New(c.InterpolationOrder); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if !(c.Timestep > 0) || c.SimulationTime < 0 {
		return fmt.Errorf("%w: timestep %g, simulation time %g", ErrConfig, c.Timestep, c.SimulationTime)
	}
	if !(c.ReferenceAngularFrequency > 0) {
		return fmt.Errorf("%w: reference angular frequency %g", ErrConfig, c.ReferenceAngularFrequency)
	}
	if c.ClusterWidth <= 0 || c.Workers <= 0 || c.TimeAverage < 0 {
		return fmt.Errorf("%w: cluster width %d, workers %d, time average %d", ErrConfig, c.ClusterWidth, c.Workers, c.TimeAverage)
	}
	if !slices.Contains(FaultPolicies, c.FaultPolicy) {
		return fmt.Errorf("%w: fault policy %q, expected one of %v", ErrConfig, c.FaultPolicy, FaultPolicies)
	}
	for name, v := range map[string][]float64{"ExternalE": c.ExternalE, "ExternalB": c.ExternalB} {
		if len(v) != 0 && len(v) != 3 {
			return fmt.Errorf("%w: %s needs 3 components, got %d", ErrConfig, name, len(v))
		}
	}
	if len(c.Species) == 0 {
		return fmt.Errorf("%w: no species provided", ErrConfig)
	}
	for _, name := range c.SpeciesNames() {
		if err := c.validateSpecies(name); err != nil {
			return err
		}
	}
	if c.Diagnostics.Every < 0 || c.Diagnostics.FieldsEvery < 0 {
		return fmt.Errorf("%w: negative diagnostics cadence", ErrConfig)
	}
	if c.Checkpoint.DumpStep < 0 || c.Checkpoint.DumpFileSequence < 1 {
		return fmt.Errorf("%w: dump step %d, dump file sequence %d", ErrConfig, c.Checkpoint.DumpStep, c.Checkpoint.DumpFileSequence)
	}
	return nil
}

func (c *Config) validateSpecies(name string) error {
	sp := c.Species[name]
	if !(sp.Mass > 0) {
		return fmt.Errorf("%w: species %s: mass %g", ErrConfig, name, sp.Mass)
	}
	if sp.Charge != math.Trunc(sp.Charge) || math.Abs(sp.Charge) > math.MaxInt16 {
		return fmt.Errorf("%w: species %s: charge %g is not a charge state", ErrConfig, name, sp.Charge)
	}
	if sp.AtomicNumber < 0 || (sp.AtomicNumber > 0 && (sp.Charge < 0 || int(sp.Charge) > sp.AtomicNumber)) {
		return fmt.Errorf("%w: species %s: charge %g with atomic number %d", ErrConfig, name, sp.Charge, sp.AtomicNumber)
	}
	switch sp.IonizationModel {
	case "":
	case "tunnel":
		target, ok := c.Species[sp.IonizationElectrons]
		if !ok {
			return fmt.Errorf("%w: species %s: ionization electrons %q not defined", ErrConfig, name, sp.IonizationElectrons)
		}
		if target.Charge != -1 {
			return fmt.Errorf("%w: species %s: ionization electrons %q have charge %g", ErrConfig, name, sp.IonizationElectrons, target.Charge)
		}
	default:
		return fmt.Errorf("%w: species %s: unknown ionization model %q", ErrConfig, name, sp.IonizationModel)
	}
	if !slices.Contains(Positions, sp.Position) {
		return fmt.Errorf("%w: species %s: position initialisation %q", ErrConfig, name, sp.Position)
	}
	if sp.ParticlesPerCell < 0 || sp.Density < 0 || sp.TimeFrozen < 0 {
		return fmt.Errorf("%w: species %s: negative particles per cell, density or frozen time", ErrConfig, name)
	}
	if len(sp.MeanVelocity) != 0 && len(sp.MeanVelocity) != 3 {
		return fmt.Errorf("%w: species %s: mean velocity needs 3 components", ErrConfig, name)
	}
	var v2 float64
	for _, v := range sp.MeanVelocity {
		v2 += v * v
	}
	if v2 >= 1 {
		return fmt.Errorf("%w: species %s: mean velocity %v is not below c", ErrConfig, name, sp.MeanVelocity)
	}
	return nil
}

// GridGeometry returns the grid layout of the configuration.
func (c *Config) GridGeometry() (grid.Geometry, error) {
	nDim, err := grid.ParseGeometry(c.Geometry)
	if err != nil {
		return grid.Geometry{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if len(c.Cells) < nDim || len(c.CellLength) < nDim {
		return grid.Geometry{}, fmt.Errorf("%w: %s needs %d cell counts and lengths", ErrConfig, c.Geometry, nDim)
	}
	g := grid.Geometry{NDim: nDim}
	for d := range nDim {
		g.Cells[d] = c.Cells[d]
		g.CellLength[d] = c.CellLength[d]
	}
	if err := g.Validate(); err != nil {
		return grid.Geometry{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return g, nil
}

// SpeciesNames lists the species in natural order, the order they are
// processed in.
func (c *Config) SpeciesNames() []string {
	names := make([]string, 0, len(c.Species))
	for name := range c.Species {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return natsort.Compare(names[i], names[j])
	})
	return names
}

// Steps is the number of timesteps covering SimulationTime.
func (c *Config) Steps() int {
	return int(math.Round(c.SimulationTime / c.Timestep))
}

// WriteYAML writes the resolved configuration, in code units, to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
