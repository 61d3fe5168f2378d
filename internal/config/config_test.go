package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const omega = 1.8836515673088532e15

const baseConfig = `
InputUnits = ["um", "fs"]
Cells = [100]
CellLength = [0.1]
Timestep = 0.05
SimulationTime = 10
Workers = 2

[Species.electron]
Charge = -1

[Species.hydrogen]
Mass = 1836
AtomicNumber = 1
IonizationModel = "tunnel"
IonizationElectrons = "electron"
ParticlesPerCell = 8
TimeFrozen = 1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, baseConfig))
	require.NoError(t, err)

	assert.Equal(t, "1d3v", cfg.Geometry)
	assert.Equal(t, 2, cfg.InterpolationOrder)
	assert.Equal(t, 4, cfg.ClusterWidth)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, uint64(1), cfg.Seed)
	assert.Equal(t, "drop", cfg.FaultPolicy)
	assert.Equal(t, omega, cfg.ReferenceAngularFrequency)
	assert.Equal(t, 10, cfg.Diagnostics.Every)
	assert.Equal(t, 2, cfg.Checkpoint.DumpFileSequence)

	// 1 um is one reference wavelength, 2 pi c / omega
	assert.InDelta(t, 0.2*math.Pi, cfg.CellLength[0], 1e-12)
	assert.InDelta(t, 0.05e-15*omega, cfg.Timestep, 1e-15)
	assert.InDelta(t, 1e-15*omega, cfg.Species["hydrogen"].TimeFrozen, 1e-15)
	assert.Equal(t, 200, cfg.Steps())

	e := cfg.Species["electron"]
	assert.Equal(t, 1., e.Mass)
	assert.Equal(t, "regular", e.Position)
	assert.Equal(t, 1., e.Density)
	assert.Equal(t, 1836., cfg.Species["hydrogen"].Mass)
	assert.Equal(t, []string{"electron", "hydrogen"}, cfg.SpeciesNames())

	geom, err := cfg.GridGeometry()
	require.NoError(t, err)
	assert.Equal(t, 1, geom.NDim)
	assert.Equal(t, 100, geom.Cells[0])
}

func TestLoadConfigWithoutExtension(t *testing.T) {
	path := writeConfig(t, baseConfig)
	_, err := LoadConfig(path[:len(path)-len(".toml")])
	assert.NoError(t, err)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":    baseConfig + "\nColour = 1\n",
		"units conflict": "InputUnits = [\"um\", \"mm\"]\n" + baseConfig[len("\nInputUnits = [\"um\", \"fs\"]\n"):],
		"unknown unit":   "InputUnits = [\"furlong\"]\n" + baseConfig[len("\nInputUnits = [\"um\", \"fs\"]\n"):],
		"fault policy":   "FaultPolicy = \"ignore\"\n" + baseConfig,
		"geometry":       "Geometry = \"2d3v\"\n" + baseConfig,
		"order":          "InterpolationOrder = 5\n" + baseConfig,
		"electrons":      baseConfig + "\n[Species.argon]\nAtomicNumber = 18\nIonizationModel = \"tunnel\"\nIonizationElectrons = \"muon\"\n",
		"model":          baseConfig + "\n[Species.argon]\nAtomicNumber = 18\nIonizationModel = \"bsi\"\n",
		"charge":         baseConfig + "\n[Species.argon]\nAtomicNumber = 18\nCharge = 19\n",
		"velocity":       baseConfig + "\n[Species.argon]\nMeanVelocity = [0.6, 0.8, 0]\n",
		"position":       baseConfig + "\n[Species.argon]\nPosition = \"gaussian\"\n",
		"syntax":         baseConfig + "\n[Species\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestWriteYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, baseConfig))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, "1d3v", back["geometry"])
	assert.Contains(t, back, "species")
	assert.NotContains(t, back, "simulationparameters")
}

func TestNaturalSpeciesOrder(t *testing.T) {
	cfg := Config{Species: map[string]SpeciesParameters{"ion10": {}, "ion2": {}, "electron": {}}}
	assert.Equal(t, []string{"electron", "ion2", "ion10"}, cfg.SpeciesNames())
}

func TestUnits(t *testing.T) {
	units, conflicts := checkUnits([]string{"cm"})
	assert.Empty(t, conflicts)
	assert.Equal(t, []string{"cm", "fs"}, units)

	_, conflicts = checkUnits([]string{"ns", "fs", "parsec"})
	assert.Equal(t, []string{"fs", "parsec"}, conflicts)

	length := []UnitElement{{Class: Length, Power: 1}}
	assert.InDelta(t, 0.03, SI(3, length, []string{"cm", "s"}, true), 1e-15)
	assert.InDelta(t, 300, SI(3, length, []string{"cm", "s"}, false), 1e-12)

	rate := []UnitElement{{Class: Time, Power: -1}}
	assert.InDelta(t, 2e15/omega, Normalize(2, rate, []string{"fs"}, omega), 1e-15)
}
