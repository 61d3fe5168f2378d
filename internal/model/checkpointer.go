package model

import (
	"github.com/wildstyl3r/ionpic/internal/checkpoint"
	"github.com/wildstyl3r/ionpic/internal/config"
)

// Checkpointer dumps the model every DumpStep steps, keeping the last
// DumpFileSequence dumps.
type Checkpointer struct {
	dir  string
	p    config.CheckpointParameters
	last string
}

func NewCheckpointer(dir string, p config.CheckpointParameters) *Checkpointer {
	return &Checkpointer{dir: dir, p: p}
}

// Last is the path of the most recent dump written, if any.
func (c *Checkpointer) Last() string {
	return c.last
}

func (c *Checkpointer) Observe(m *Model) error {
	step := m.CurrentStep()
	if c.p.DumpStep == 0 || step == 0 || step%c.p.DumpStep != 0 {
		return nil
	}
	path, err := checkpoint.Save(c.dir, m.Snapshot())
	if err != nil {
		return err
	}
	c.last = path
	if err := checkpoint.Prune(c.dir, c.p.DumpFileSequence); err != nil {
		return err
	}
	m.Logger().Info("checkpoint", "step", step, "path", path)
	if c.p.ExitAfterDump {
		return ErrStop
	}
	return nil
}

// RestoreLatest restores m from the most recent dump in dir.
func RestoreLatest(m *Model, dir string) (string, error) {
	path, err := checkpoint.Latest(dir)
	if err != nil {
		return "", err
	}
	state, err := checkpoint.Load(path)
	if err != nil {
		return "", err
	}
	return path, m.Restore(state)
}
