package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/wildstyl3r/ionpic/internal/checkpoint"
	"github.com/wildstyl3r/ionpic/internal/config"
	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/interp"
	"github.com/wildstyl3r/ionpic/internal/ionization"
	"github.com/wildstyl3r/ionpic/internal/particles"
	"github.com/wildstyl3r/ionpic/internal/projector"
	"github.com/wildstyl3r/ionpic/internal/shape"
	"github.com/wildstyl3r/ionpic/internal/utils"
)

var (
	ErrOutOfDomain = errors.New("particle left the domain")
	ErrFatalFault  = errors.New("fatal particle fault")
	// ErrStop is returned by an Observer to end Run early without error.
	ErrStop = errors.New("stop requested")
)

type FaultPolicy string

const (
	FaultDrop  FaultPolicy = "drop"
	FaultClamp FaultPolicy = "clamp"
	FaultFatal FaultPolicy = "fatal"
)

// Fault is a per-particle numerical problem met during a step.
type Fault struct {
	Step     int
	Species  string
	Index    int
	Position [3]float64
	Err      error
}

func (f Fault) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", f.Step),
		slog.String("species", f.Species),
		slog.Int("index", f.Index),
		slog.Any("position", f.Position),
		slog.String("error", f.Err.Error()),
	)
}

// Observer is called after every completed step, and once before the first
// step of a fresh run.
type Observer interface {
	Observe(m *Model) error
}

type worker struct {
	id      int
	full    *grid.Buffer
	bin     *grid.Buffer
	pending [][]particles.Particle // per target species
	drop    [][]int                // per species
	faults  []Fault
	events  int
}

func (w *worker) reset() {
	w.full.Zero()
	for s := range w.pending {
		w.pending[s] = w.pending[s][:0]
		w.drop[s] = w.drop[s][:0]
	}
	w.faults = w.faults[:0]
	w.events = 0
}

// Model advances all species and the grid through time steps. Bins are handed
// to workers statically (bin b to worker b mod workers) and worker buffers
// are reduced in worker order, so results are bitwise reproducible for a
// given number of workers.
type Model struct {
	Grid    *grid.Grid
	Species []*Species

	sampler   *interp.Sampler
	projector *projector.Esirkepov
	solver    FieldSolver
	logger    *slog.Logger
	stream    ionization.Stream
	policy    FaultPolicy

	dt           float64
	step         int
	time         float64
	timeAverage  int
	clusterWidth int
	nBins        int
	workers      []*worker

	faults      []Fault
	ionizations int
}

// NewModel builds the grid and the species of cfg and loads their particles.
// Every configuration problem is reported here.
func NewModel(cfg config.Config, solver FieldSolver, logger *slog.Logger) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	geom, err := cfg.GridGeometry()
	if err != nil {
		return nil, err
	}
	g, err := grid.New(geom)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	sh, err := shape.New(cfg.InterpolationOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	m := &Model{
		Grid:         g,
		sampler:      interp.New(sh, geom),
		projector:    projector.New(sh, geom, cfg.Timestep),
		solver:       solver,
		logger:       logger,
		stream:       ionization.NewStream(cfg.Seed),
		policy:       FaultPolicy(cfg.FaultPolicy),
		dt:           cfg.Timestep,
		timeAverage:  cfg.TimeAverage,
		clusterWidth: min(cfg.ClusterWidth, geom.Cells[0]),
	}
	m.nBins = (geom.Cells[0] + m.clusterWidth - 1) / m.clusterWidth

	names := cfg.SpeciesNames()
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	loader := ionization.NewRNG(cfg.Seed)
	for i, name := range names {
		sp := cfg.Species[name]
		s, err := newSpecies(i, name, sp, &cfg, geom.NDim, logger)
		if err != nil {
			return nil, err
		}
		if s.Ionizing() {
			s.target = index[sp.IonizationElectrons]
		}
		s.load(sp, geom, loader)
		m.Species = append(m.Species, s)
	}

	for w := range min(cfg.Workers, m.nBins) {
		m.workers = append(m.workers, &worker{
			id:      w,
			full:    g.NewBuffer(),
			bin:     g.NewBinBuffer(0, m.clusterWidth),
			pending: make([][]particles.Particle, len(m.Species)),
			drop:    make([][]int, len(m.Species)),
		})
	}

	m.rebin()
	if err := solver.Solve(g, 0); err != nil {
		return nil, err
	}
	logger.Info("model ready",
		"geometry", cfg.Geometry,
		"cells", geom.Cells[:geom.NDim],
		"bins", m.nBins,
		"workers", len(m.workers),
		"particles", m.ParticleCount())
	return m, nil
}

func (m *Model) CurrentStep() int {
	return m.step
}

func (m *Model) Time() float64 {
	return m.time
}

func (m *Model) Timestep() float64 {
	return m.dt
}

func (m *Model) Logger() *slog.Logger {
	return m.logger
}

// TimeAverage is the number of steps per averaging window, 0 when disabled.
func (m *Model) TimeAverage() int {
	return m.timeAverage
}

// Faults returns the faults of the last step.
func (m *Model) Faults() []Fault {
	return m.faults
}

// Ionizations is the number of ionization events of the last step.
func (m *Model) Ionizations() int {
	return m.ionizations
}

func (m *Model) ParticleCount() (n int) {
	for _, s := range m.Species {
		n += s.Store.Len()
	}
	return n
}

func (m *Model) binOf(p *particles.Particle) int {
	return int(math.Floor(p.Position[0] / (float64(m.clusterWidth) * m.Grid.CellLength[0])))
}

// Rebin sorts every store into bins. Call it after adding particles to a
// store by hand.
func (m *Model) Rebin() {
	m.rebin()
}

func (m *Model) rebin() {
	for _, s := range m.Species {
		s.Store.SortBins(m.nBins, m.binOf)
	}
}

// binOrigin is the first cell of the buffer used for bin b. The last bin is
// shifted left so that its buffer stays inside the grid.
func (m *Model) binOrigin(b int) int {
	return min(b*m.clusterWidth, m.Grid.Cells[0]-m.clusterWidth)
}

// InitRho deposits the charge of every particle on a freshly zeroed grid.
func (m *Model) InitRho() {
	m.Grid.RestartRhoJ()
	target := &grid.Buffer{J: m.Grid.J, Rho: m.Grid.Rho}
	for _, s := range m.Species {
		for i := range s.Store.Particles {
			m.projector.Charge(target, &s.Store.Particles[i])
		}
	}
}

// parallel runs job on every worker and waits for all of them.
func (m *Model) parallel(job func(w *worker) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(m.workers))
	for _, w := range m.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w.id] = job(w)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Step advances the simulation by one timestep: per species and bin it
// samples the fields, ionizes, pushes and deposits; then it reduces the
// worker buffers, merges freed electrons and calls the field solver.
func (m *Model) Step() error {
	m.Grid.RestartRhoJ()
	for _, w := range m.workers {
		w.reset()
	}

	for _, s := range m.Species {
		err := m.parallel(func(w *worker) error {
			for b := w.id; b < m.nBins; b += len(m.workers) {
				if err := m.processBin(w, s, b); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("step %d, species %s: %w", m.step, s.Params.Name, err)
		}
	}

	buffers := make([]*grid.Buffer, len(m.workers))
	m.faults = m.faults[:0]
	m.ionizations = 0
	for i, w := range m.workers {
		buffers[i] = w.full
		m.faults = append(m.faults, w.faults...)
		m.ionizations += w.events
	}
	if err := m.Grid.Reduce(buffers...); err != nil {
		return err
	}

	for _, s := range m.Species {
		var drop []int
		for _, w := range m.workers {
			drop = append(drop, w.drop[s.Index]...)
		}
		s.Store.Remove(drop)
	}
	for _, s := range m.Species {
		pending := make([][]particles.Particle, len(m.workers))
		for i, w := range m.workers {
			pending[i] = w.pending[s.Index]
		}
		s.Store.MergePending(pending...)
	}
	m.rebin()

	if len(m.faults) > 0 {
		m.logger.Warn("particle faults", "step", m.step, "count", len(m.faults), "first", m.faults[0])
		if m.policy == FaultFatal {
			return fmt.Errorf("%w: %d faults at step %d, first: %v", ErrFatalFault, len(m.faults), m.step, m.faults[0].Err)
		}
	}

	m.step++
	m.time += m.dt
	if err := m.solver.Solve(m.Grid, m.step); err != nil {
		return fmt.Errorf("field solver at step %d: %w", m.step, err)
	}

	if m.timeAverage > 0 {
		if m.Grid.AverageCount() >= m.timeAverage {
			m.Grid.ResetAverage()
		}
		m.Grid.IncrementAverage()
	}

	m.logger.Debug("step",
		"step", m.step,
		"time", m.time,
		"particles", m.ParticleCount(),
		"ionizations", m.ionizations)
	return nil
}

func (m *Model) processBin(w *worker, s *Species, b int) error {
	start, end := s.Store.Bin(b)
	if start == end {
		return nil
	}
	w.bin.Rebase(m.binOrigin(b))
	frozen := m.time < s.TimeFrozen

	for i := start; i < end; i++ {
		p := &s.Store.Particles[i]
		if frozen {
			m.projector.Charge(w.bin, p)
			continue
		}
		e, bf := m.sampler.Fields(m.Grid, p.Position)

		if s.tunnel != nil {
			if ev, ok := s.tunnel.Ionize(p, e, m.stream.Draw(m.step, s.Index, i)); ok {
				m.freeElectron(w, s, i, p.Position, &ev.Electron)
				w.pending[s.target] = append(w.pending[s.target], ev.Electron)
				w.events++
			}
		}

		old := p.Position
		gamma := s.pusher.Push(p, e, bf)

		if !m.Grid.Inside(p.Position) {
			if !m.fault(w, s, i, ErrOutOfDomain) {
				continue
			}
			m.reflect(p)
		}
		if err := m.projector.CurrentAndCharge(w.bin, p, old, 1./gamma); err != nil {
			p.Position = old
			m.fault(w, s, i, err)
			if m.policy == FaultClamp {
				w.drop[s.Index] = append(w.drop[s.Index], i)
			}
		}
	}
	return w.bin.AddTo(w.full)
}

// fault records a fault and applies the policy. It reports whether the
// particle is to be reflected back into the domain.
func (m *Model) fault(w *worker, s *Species, i int, err error) (clamp bool) {
	m.record(w, s, i, err)
	switch m.policy {
	case FaultClamp:
		return errors.Is(err, ErrOutOfDomain)
	case FaultDrop:
		w.drop[s.Index] = append(w.drop[s.Index], i)
	}
	return false
}

func (m *Model) record(w *worker, s *Species, i int, err error) {
	p := &s.Store.Particles[i]
	w.faults = append(w.faults, Fault{Step: m.step, Species: s.Params.Name, Index: i, Position: p.Position, Err: err})
}

// freeElectron deposits the electron freed from the ion at from. Its move to
// the displaced position carries the ionization energy current; when that
// move cannot be deposited the electron stays at the ion and the fault is
// recorded. The charge of the electron always balances the ion's new charge.
func (m *Model) freeElectron(w *worker, s *Species, i int, from [3]float64, e *particles.Particle) {
	err := ErrOutOfDomain
	if m.Grid.Inside(e.Position) {
		err = m.projector.IonizationCurrent(w.bin, from, e)
	}
	if err != nil {
		e.Position = from
		m.record(w, s, i, fmt.Errorf("ionization current: %w", err))
	}
	m.projector.Charge(w.bin, e)
}

// reflect mirrors the position at the domain walls and reverses the normal
// momentum.
func (m *Model) reflect(p *particles.Particle) {
	for d := range m.Grid.NDim {
		length := m.Grid.Length(d)
		switch {
		case p.Position[d] < 0:
			p.Position[d] = -p.Position[d]
			p.Momentum[d] = -p.Momentum[d]
		case p.Position[d] >= length:
			p.Position[d] = 2*length - p.Position[d]
			p.Momentum[d] = -p.Momentum[d]
		}
		if p.Position[d] >= length {
			p.Position[d] = math.Nextafter(length, 0)
		}
	}
}

// Run steps until the step counter reaches steps, calling the observers after
// every step. A fresh run deposits the initial charge first and observes
// step 0.
func (m *Model) Run(steps int, observers ...Observer) error {
	notify := func() (bool, error) {
		for _, o := range observers {
			if err := o.Observe(m); errors.Is(err, ErrStop) {
				return true, nil
			} else if err != nil {
				return true, err
			}
		}
		return false, nil
	}
	if m.step == 0 {
		m.InitRho()
		if m.timeAverage > 0 {
			m.Grid.ResetAverage()
		}
		if stop, err := notify(); stop {
			return err
		}
	}
	for m.step < steps {
		if err := m.Step(); err != nil {
			return err
		}
		if stop, err := notify(); stop {
			return err
		}
	}
	return nil
}

// Snapshot captures the full state for a checkpoint.
func (m *Model) Snapshot() checkpoint.State {
	state := checkpoint.State{
		Step:         m.step,
		Time:         m.time,
		AverageCount: m.Grid.AverageCount(),
		Fields:       append(m.Grid.All(), m.Grid.AllAverages()...),
	}
	for _, s := range m.Species {
		ps, bmin, bmax := s.Store.Snapshot()
		state.Species = append(state.Species, checkpoint.Species{Name: s.Params.Name, Particles: ps, Bmin: bmin, Bmax: bmax})
	}
	return state
}

// Restore loads a checkpoint taken from a model with the same configuration.
func (m *Model) Restore(state checkpoint.State) error {
	for _, f := range state.Fields {
		target := m.Grid.Field(f.Name)
		if target == nil || len(target.Data) != len(f.Data) {
			return fmt.Errorf("%w: field %s does not match the grid", checkpoint.ErrCorrupt, f.Name)
		}
	}
	if len(state.Species) != len(m.Species) {
		return fmt.Errorf("%w: %d species, model has %d", checkpoint.ErrCorrupt, len(state.Species), len(m.Species))
	}
	// nothing is touched until the whole state checks out
	for i, s := range state.Species {
		if s.Name != m.Species[i].Params.Name {
			return fmt.Errorf("%w: species %s in place of %s", checkpoint.ErrCorrupt, s.Name, m.Species[i].Params.Name)
		}
		if err := particles.ValidateBinBounds(len(s.Particles), s.Bmin, s.Bmax); err != nil {
			return fmt.Errorf("%w: species %s: %w", checkpoint.ErrCorrupt, s.Name, err)
		}
	}
	for i, s := range state.Species {
		if err := m.Species[i].Store.Restore(s.Particles, s.Bmin, s.Bmax); err != nil {
			return fmt.Errorf("%w: species %s: %w", checkpoint.ErrCorrupt, s.Name, err)
		}
	}
	for _, f := range state.Fields {
		copy(m.Grid.Field(f.Name).Data, f.Data)
	}
	m.Grid.SetAverageState(state.AverageCount)
	m.step = state.Step
	m.time = state.Time
	m.logger.Info("restored", "step", m.step, "time", m.time, "particles", m.ParticleCount())
	return nil
}

// ChargeBalance is the total charge carried by the particles, to compare with
// the grid charge.
func (m *Model) ChargeBalance() float64 {
	var charges []float64
	for _, s := range m.Species {
		for i := range s.Store.Particles {
			p := &s.Store.Particles[i]
			charges = append(charges, float64(p.Charge)*p.Weight)
		}
	}
	return utils.SumSlice(charges)
}
