/*
Package checkpoint writes and reads bit-exact snapshots of a simulation: every
grid field (including the time-average accumulators) and every species store
with its bin bounds.

A dump is a little-endian stream:

	magic "IONPIC\x00\x01"
	int64 step, float64 time, int64 average count
	sections: int64 kind, int64 name length, name, int64 raw length,
	          int64 compressed length, zstd payload

Field payloads are float64 arrays, species payloads an int64 bin count, the
bin bounds as int64 and then the particle records.
*/
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/facette/natsort"

	"github.com/wildstyl3r/ionpic/internal/grid"
	"github.com/wildstyl3r/ionpic/internal/particles"
)

var (
	ErrCorrupt = errors.New("corrupt checkpoint")
	ErrNoDump  = errors.New("no checkpoint found")
)

const (
	prefix = "dump-"
	magic  = "IONPIC\x00\x01"

	kindField   int64 = 1
	kindSpecies int64 = 2

	compressionLevel = 3
)

type Species struct {
	Name       string
	Particles  []particles.Particle
	Bmin, Bmax []int
}

type State struct {
	Step         int
	Time         float64
	AverageCount int
	Fields       []*grid.Field
	Species      []Species
}

// Filename is the name of the dump written at step.
func Filename(step int) string {
	return fmt.Sprintf("%s%06d", prefix, step)
}

// Save writes state into dir and returns the path of the dump.
func Save(dir string, state State) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(state.Step))
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(file)
	err = write(w, state)
	if err == nil {
		err = w.Flush()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, os.Rename(tmp, path)
}

func write(w io.Writer, state State) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	header := []any{int64(state.Step), state.Time, int64(state.AverageCount)}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	var raw bytes.Buffer
	var buf []byte
	for _, f := range state.Fields {
		raw.Reset()
		if err := binary.Write(&raw, binary.LittleEndian, f.Data); err != nil {
			return err
		}
		var err error
		if buf, err = writeSection(w, kindField, f.Name, raw.Bytes(), buf); err != nil {
			return err
		}
	}
	for _, s := range state.Species {
		if len(s.Bmin) != len(s.Bmax) {
			return fmt.Errorf("species %s: %d bin starts and %d bin ends", s.Name, len(s.Bmin), len(s.Bmax))
		}
		raw.Reset()
		values := []any{int64(len(s.Bmin)), toInt64(s.Bmin), toInt64(s.Bmax), int64(len(s.Particles)), s.Particles}
		for _, v := range values {
			if err := binary.Write(&raw, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		var err error
		if buf, err = writeSection(w, kindSpecies, s.Name, raw.Bytes(), buf); err != nil {
			return err
		}
	}
	return nil
}

func writeSection(w io.Writer, kind int64, name string, raw, buf []byte) ([]byte, error) {
	buf, err := zstd.CompressLevel(buf, raw, compressionLevel)
	if err != nil {
		return nil, err
	}
	for _, v := range []int64{kind, int64(len(name))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if _, err := io.WriteString(w, name); err != nil {
		return nil, err
	}
	for _, v := range []int64{int64(len(raw)), int64(len(buf))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if _, err := w.Write(buf); err != nil {
		return nil, err
	}
	return buf[:0], nil
}

// Load reads a dump. Fields come back with their names and data only; Restore
// copies them into a grid of the right geometry.
func Load(path string) (State, error) {
	file, err := os.Open(path)
	if err != nil {
		return State{}, err
	}
	defer file.Close()
	state, err := read(bufio.NewReader(file))
	if err != nil {
		return State{}, fmt.Errorf("%s: %w", path, err)
	}
	return state, nil
}

func read(r io.Reader) (state State, err error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil || string(head) != magic {
		return state, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	var step, count int64
	if err := readValues(r, &step, &state.Time, &count); err != nil {
		return state, err
	}
	state.Step, state.AverageCount = int(step), int(count)

	var raw, buf []byte
	for {
		var kind, nameLen int64
		if err := binary.Read(r, binary.LittleEndian, &kind); err == io.EOF {
			return state, nil
		} else if err != nil {
			return state, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if err := readValues(r, &nameLen); err != nil {
			return state, err
		}
		if nameLen < 0 || nameLen > 1<<16 {
			return state, fmt.Errorf("%w: section name length %d", ErrCorrupt, nameLen)
		}
		name := make([]byte, nameLen)
		var rawLen, compLen int64
		if _, err := io.ReadFull(r, name); err != nil {
			return state, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if err := readValues(r, &rawLen, &compLen); err != nil {
			return state, err
		}
		if compLen < 0 || rawLen < 0 {
			return state, fmt.Errorf("%w: section %s sizes %d/%d", ErrCorrupt, name, rawLen, compLen)
		}
		buf = resize(buf, int(compLen))
		if _, err := io.ReadFull(r, buf); err != nil {
			return state, fmt.Errorf("%w: section %s: %v", ErrCorrupt, name, err)
		}
		if raw, err = zstd.Decompress(raw, buf); err != nil {
			return state, fmt.Errorf("%w: section %s: %v", ErrCorrupt, name, err)
		}
		if int64(len(raw)) != rawLen {
			return state, fmt.Errorf("%w: section %s holds %d bytes, want %d", ErrCorrupt, name, len(raw), rawLen)
		}
		switch kind {
		case kindField:
			f, err := decodeField(string(name), raw)
			if err != nil {
				return state, err
			}
			state.Fields = append(state.Fields, f)
		case kindSpecies:
			s, err := decodeSpecies(string(name), raw)
			if err != nil {
				return state, err
			}
			state.Species = append(state.Species, s)
		default:
			return state, fmt.Errorf("%w: section kind %d", ErrCorrupt, kind)
		}
	}
}

func decodeField(name string, raw []byte) (*grid.Field, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("%w: field %s has %d bytes", ErrCorrupt, name, len(raw))
	}
	f := &grid.Field{Name: name, Data: make([]float64, len(raw)/8)}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, f.Data); err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", ErrCorrupt, name, err)
	}
	return f, nil
}

func decodeSpecies(name string, raw []byte) (Species, error) {
	s := Species{Name: name}
	r := bytes.NewReader(raw)
	var nBins, nParticles int64
	if err := readValues(r, &nBins); err != nil {
		return s, err
	}
	if nBins < 0 || nBins*16 > int64(len(raw)) {
		return s, fmt.Errorf("%w: species %s: %d bins", ErrCorrupt, name, nBins)
	}
	bmin, bmax := make([]int64, nBins), make([]int64, nBins)
	if err := readValues(r, bmin, bmax, &nParticles); err != nil {
		return s, err
	}
	if nParticles < 0 || nParticles*int64(binary.Size(particles.Particle{})) != int64(r.Len()) {
		return s, fmt.Errorf("%w: species %s: %d particles in %d bytes", ErrCorrupt, name, nParticles, r.Len())
	}
	s.Particles = make([]particles.Particle, nParticles)
	if err := readValues(r, s.Particles); err != nil {
		return s, err
	}
	s.Bmin, s.Bmax = toInt(bmin), toInt(bmax)
	return s, nil
}

func readValues(r io.Reader, values ...any) error {
	for _, v := range values {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return nil
}

// Latest returns the path of the most recent dump in dir.
func Latest(dir string) (string, error) {
	dumps, err := list(dir)
	if err != nil {
		return "", err
	}
	if len(dumps) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoDump, dir)
	}
	return filepath.Join(dir, dumps[len(dumps)-1]), nil
}

// Prune removes all but the keep most recent dumps in dir.
func Prune(dir string, keep int) error {
	dumps, err := list(dir)
	if err != nil {
		return err
	}
	for len(dumps) > keep {
		if err := os.Remove(filepath.Join(dir, dumps[0])); err != nil {
			return err
		}
		dumps = dumps[1:]
	}
	return nil
}

// list returns dump names in natural order.
func list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dumps []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && !strings.HasSuffix(name, ".tmp") {
			dumps = append(dumps, name)
		}
	}
	sort.Slice(dumps, func(i, j int) bool {
		return natsort.Compare(dumps[i], dumps[j])
	})
	return dumps, nil
}

func toInt64(s []int) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[i] = int64(v)
	}
	return out
}

func toInt(s []int64) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}

func resize(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
