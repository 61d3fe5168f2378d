package model

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"

	"github.com/wildstyl3r/ionpic/internal/config"
	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/utils"
)

// ScalarRecord is one line of scalars.csv: the state of one species after a
// step together with the grid totals.
type ScalarRecord struct {
	Step          int     `csv:"step"`
	Time          float64 `csv:"time"`
	Species       string  `csv:"species"`
	Particles     int     `csv:"particles"`
	KineticEnergy float64 `csv:"kinetic_energy"` // [m_e c^2]
	Charge        float64 `csv:"charge"`
	MeanCharge    float64 `csv:"mean_charge"`
	ChargeSpread  float64 `csv:"charge_variance"` // of the charge states, unweighted
	GridCharge    float64 `csv:"grid_charge"`
	FieldEnergy   float64 `csv:"field_energy"`
	Ionizations   int     `csv:"ionizations"`
	Faults        int     `csv:"faults"`
}

func (r ScalarRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", r.Step),
		slog.Float64("time", r.Time),
		slog.String("species", r.Species),
		slog.Int("particles", r.Particles),
		slog.Float64("kinetic_energy", r.KineticEnergy),
		slog.Float64("charge", r.Charge),
		slog.Float64("mean_charge", r.MeanCharge),
		slog.Float64("charge_variance", r.ChargeSpread),
		slog.Float64("grid_charge", r.GridCharge),
		slog.Float64("field_energy", r.FieldEnergy),
		slog.Int("ionizations", r.Ionizations),
		slog.Int("faults", r.Faults),
	)
}

// DataExtractor writes diagnostics of a model. It only reads model state.
type DataExtractor struct {
	outputPath  string
	makeDir     bool
	every       int
	fieldsEvery int
	fields      []string
	scalars     bool
	averaged    bool

	scalarsFile   *os.File
	headerWritten bool
}

func NewDataExtractor(outputPath string, makeDir bool, p config.DiagnosticsParameters, df DataFlags) (*DataExtractor, error) {
	de := &DataExtractor{
		outputPath:  outputPath,
		makeDir:     makeDir,
		every:       p.Every,
		fieldsEvery: p.FieldsEvery,
		fields:      df.Fields(p.Fields),
		scalars:     df.Scalars() && p.Every > 0,
		averaged:    df.Averaged() && p.AveragedFields,
	}
	if de.scalars {
		if err := os.MkdirAll(outputPath, 0750); err != nil {
			return nil, err
		}
		f, err := os.Create(filepath.Join(outputPath, "scalars.csv"))
		if err != nil {
			return nil, fmt.Errorf("creating scalars.csv: %w", err)
		}
		de.scalarsFile = f
	}
	return de, nil
}

func (de *DataExtractor) Close() error {
	if de.scalarsFile == nil {
		return nil
	}
	return de.scalarsFile.Close()
}

func (de *DataExtractor) Observe(m *Model) error {
	step := m.CurrentStep()
	if de.scalars && step%de.every == 0 {
		records := Scalars(m)
		for _, r := range records {
			m.Logger().Info("scalars", "record", r)
		}
		if err := de.writeScalars(records); err != nil {
			return err
		}
	}
	if de.fieldsEvery > 0 && step%de.fieldsEvery == 0 && len(de.fields) > 0 {
		for _, name := range de.fields {
			if err := de.writeField(m.Grid, m.Grid.Field(name), step); err != nil {
				return err
			}
		}
	}
	if de.averaged && m.TimeAverage() > 0 && m.Grid.AverageCount() == m.TimeAverage() {
		for _, f := range m.Grid.Averaged() {
			if len(de.fields) > 0 && !isSelectedAverage(de.fields, f.Name) {
				continue
			}
			if err := de.writeField(m.Grid, f, step); err != nil {
				return err
			}
		}
	}
	return nil
}

func isSelectedAverage(names []string, avgName string) bool {
	for _, n := range names {
		if n+"_avg" == avgName {
			return true
		}
	}
	return false
}

func (de *DataExtractor) writeScalars(records []ScalarRecord) error {
	if !de.headerWritten {
		if err := gocsv.Marshal(records, de.scalarsFile); err != nil {
			return fmt.Errorf("writing scalars: %w", err)
		}
		de.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, de.scalarsFile); err != nil {
		return fmt.Errorf("writing scalars: %w", err)
	}
	return nil
}

// Scalars computes the scalar records of every species.
func Scalars(m *Model) []ScalarRecord {
	gridCharge := floats.Sum(m.Grid.Rho.Data)
	fieldEnergy := FieldEnergy(m.Grid)
	var records []ScalarRecord
	for _, s := range m.Species {
		r := ScalarRecord{
			Step:        m.CurrentStep(),
			Time:        m.Time(),
			Species:     s.Params.Name,
			Particles:   s.Store.Len(),
			GridCharge:  gridCharge,
			FieldEnergy: fieldEnergy,
			Ionizations: m.Ionizations(),
			Faults:      len(m.Faults()),
		}
		weights := 0.
		states := make([]int16, s.Store.Len())
		for i := range s.Store.Particles {
			p := &s.Store.Particles[i]
			r.KineticEnergy += s.Params.Mass * p.KineticEnergy()
			r.Charge += float64(p.Charge) * p.Weight
			weights += p.Weight
			states[i] = p.Charge
		}
		_, r.ChargeSpread = utils.MeanAndVariance(states, false)
		if weights > 0 {
			r.MeanCharge = r.Charge / weights
		}
		records = append(records, r)
	}
	return records
}

// FieldEnergy is (E^2 + B^2) / 2 summed over the physical nodes times the cell
// volume.
func FieldEnergy(g *grid.Grid) float64 {
	var hi [3]int
	for d := range 3 {
		hi[d] = 1
		if d < g.NDim {
			hi[d] = g.Cells[d]
		}
	}
	var sum float64
	for _, f := range append(g.E[:], g.B[:]...) {
		for i := range hi[0] {
			for j := range hi[1] {
				for k := range hi[2] {
					v := f.At(i, j, k)
					sum += v * v
				}
			}
		}
	}
	return 0.5 * sum * g.CellVolume()
}

// writeField saves the physical nodes of f as <name>_<step>.csv with one row
// per node: the node index, the node coordinates and the value.
func (de *DataExtractor) writeField(g *grid.Grid, f *grid.Field, step int) error {
	var hi [3]int
	for d := range 3 {
		hi[d] = 1
		if d < g.NDim {
			hi[d] = g.Cells[d] + 1
		}
	}
	columns := []string{"node"}
	for d := range g.NDim {
		columns = append(columns, componentLabel(d))
	}
	columns = append(columns, f.Name)

	var data utils.CSV
	for i := range hi[0] {
		for j := range hi[1] {
			for k := range hi[2] {
				idx := [3]int{i, j, k}
				node := make([]string, g.NDim)
				row := []string{""}
				for d := range g.NDim {
					node[d] = strconv.Itoa(idx[d])
					x := float64(idx[d]) * g.CellLength[d]
					if f.Dual[d] {
						x += 0.5 * g.CellLength[d]
					}
					row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
				}
				row[0] = strings.Join(node, ":")
				row = append(row, strconv.FormatFloat(f.At(i, j, k), 'g', -1, 64))
				data = append(data, row)
			}
		}
	}
	return utils.WriteAsCSV(data, de.makeDir, de.outputPath, "fields", fmt.Sprintf("%s_%06d", f.Name, step), columns)
}

func componentLabel(d int) string {
	return [3]string{"x", "y", "z"}[d]
}
