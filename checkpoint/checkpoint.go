// Package checkpoint snapshots the trainable parameters of a run to disk.
// Snapshots are named {run}-{epoch}; a file named {run} points at the latest
// one and only that one is kept.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/CoNLL-UD-2017/UnstableParser/nn"
)

// ErrNoCheckpoint is returned when resuming a run that never saved.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// Param is the saved form of one nn.Param.
type Param struct {
	Name     string
	Shape    []int
	Raw      []float64
	Smoothed []float64
}

// State is everything a snapshot restores.
type State struct {
	GlobalStep  int
	GlobalEpoch int
	Params      []Param
}

// Capture copies the saveable parameters of ps. Frozen tables are excluded.
func Capture(ps *nn.ParamSet, step, epoch int) *State {
	st := &State{GlobalStep: step, GlobalEpoch: epoch}
	for _, p := range ps.Saveable() {
		st.Params = append(st.Params, Param{
			Name:     p.Name,
			Shape:    append([]int(nil), p.Shape...),
			Raw:      append([]float64(nil), p.Raw()...),
			Smoothed: append([]float64(nil), p.Smoothed()...),
		})
	}
	return st
}

// Apply writes the snapshot into ps. Every saveable parameter of ps must be
// present in the snapshot.
func (st *State) Apply(ps *nn.ParamSet) error {
	saved := make(map[string]Param, len(st.Params))
	for _, p := range st.Params {
		saved[p.Name] = p
	}
	for _, p := range ps.Saveable() {
		sp, ok := saved[p.Name]
		if !ok {
			return errors.Errorf("checkpoint has no parameter %s", p.Name)
		}
		if err := p.Set(sp.Raw, sp.Smoothed); err != nil {
			return errors.Wrap(err, "restore")
		}
	}
	return nil
}

// Manager names, writes and finds the snapshots of one run in a directory.
type Manager struct {
	dir  string
	name string
}

// NewManager keeps the snapshots of run in dir. The run name is lowercased.
func NewManager(dir, run string) *Manager {
	return &Manager{dir: dir, name: strings.ToLower(run)}
}

// Path is the snapshot file for an epoch.
func (m *Manager) Path(epoch int) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s-%d", m.name, epoch))
}

func (m *Manager) pointer() string {
	return filepath.Join(m.dir, m.name)
}

// Save writes the snapshot for epoch, points the run at it and removes the
// snapshot it replaces.
func (m *Manager) Save(epoch int, st *State) (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", errors.Wrap(err, "create save dir")
	}
	path := m.Path(epoch)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create checkpoint")
	}
	if err := gob.NewEncoder(f).Encode(st); err != nil {
		f.Close()
		return "", errors.Wrap(err, "encode checkpoint")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "close checkpoint")
	}

	previous, err := m.Latest()
	if err != nil && errors.Cause(err) != ErrNoCheckpoint {
		return "", err
	}
	if err := os.WriteFile(m.pointer(), []byte(filepath.Base(path)+"\n"), 0644); err != nil {
		return "", errors.Wrap(err, "write checkpoint pointer")
	}
	if previous != "" && previous != path {
		if err := os.Remove(previous); err != nil && !os.IsNotExist(err) {
			log.Printf("Checkpoint: could not remove %s: %v", previous, err)
		}
	}
	return path, nil
}

// Latest returns the snapshot the run points at.
func (m *Manager) Latest() (string, error) {
	data, err := os.ReadFile(m.pointer())
	if os.IsNotExist(err) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", errors.Wrap(err, "read checkpoint pointer")
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", ErrNoCheckpoint
	}
	return filepath.Join(m.dir, name), nil
}

// Restore reads the snapshot at path.
func Restore(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()
	var st State
	if err := gob.NewDecoder(f).Decode(&st); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	return &st, nil
}
