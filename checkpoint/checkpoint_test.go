package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"

	"github.com/CoNLL-UD-2017/UnstableParser/nn"
)

func newParams(t *testing.T) *nn.ParamSet {
	t.Helper()
	ps := nn.NewParamSet()
	s := nn.NewScope(gorgonia.NewGraph(), ps, false)
	if _, _, err := s.Param("Linear/Weights", gorgonia.Zeroes(), 2, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Frozen("Pretrained/Embeddings", 1, 2, []float64{7, 7}); err != nil {
		t.Fatal(err)
	}
	return ps
}

func TestLatestWithoutCheckpoint(t *testing.T) {
	m := NewManager(t.TempDir(), "Parser")
	if _, err := m.Latest(); errors.Cause(err) != ErrNoCheckpoint {
		t.Errorf("Expected ErrNoCheckpoint, got %v", err)
	}
}

func TestSaveRestore(t *testing.T) {
	ps := newParams(t)
	p, _ := ps.Get("Linear/Weights")
	if err := p.Set([]float64{1, 2, 3, 4}, []float64{0.5, 1, 1.5, 2}); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	m := NewManager(dir, "Parser")
	path, err := m.Save(3, Capture(ps, 42, 3))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "parser-3" {
		t.Errorf("Expected parser-3, got %s", path)
	}
	latest, err := m.Latest()
	if err != nil {
		t.Fatal(err)
	}
	st, err := Restore(latest)
	if err != nil {
		t.Fatal(err)
	}
	if st.GlobalStep != 42 || st.GlobalEpoch != 3 {
		t.Errorf("Expected step 42 epoch 3, got %d %d", st.GlobalStep, st.GlobalEpoch)
	}
	if len(st.Params) != 1 {
		t.Fatalf("Expected frozen params to be skipped, got %d params", len(st.Params))
	}

	fresh := newParams(t)
	if err := st.Apply(fresh); err != nil {
		t.Fatal(err)
	}
	q, _ := fresh.Get("Linear/Weights")
	if q.Raw()[3] != 4 || q.Smoothed()[1] != 1 {
		t.Errorf("Expected restored values, got %v %v", q.Raw(), q.Smoothed())
	}
}

func TestKeepsLastSnapshot(t *testing.T) {
	ps := newParams(t)
	dir := t.TempDir()
	m := NewManager(dir, "Run")
	for epoch := 1; epoch <= 3; epoch++ {
		if _, err := m.Save(epoch, Capture(ps, epoch*10, epoch)); err != nil {
			t.Fatal(err)
		}
	}
	for epoch := 1; epoch <= 2; epoch++ {
		if _, err := os.Stat(m.Path(epoch)); !os.IsNotExist(err) {
			t.Errorf("Expected snapshot %d to be removed", epoch)
		}
	}
	latest, err := m.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest != m.Path(3) {
		t.Errorf("Expected %s, got %s", m.Path(3), latest)
	}
	// saving the same epoch twice keeps the file
	if _, err := m.Save(3, Capture(ps, 31, 3)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(m.Path(3)); err != nil {
		t.Errorf("Expected snapshot 3 to survive a re-save: %v", err)
	}
}

func TestApplyMissingParam(t *testing.T) {
	st := &State{}
	if err := st.Apply(newParams(t)); err == nil {
		t.Error("Expected an error for a snapshot without the parameter")
	}
}
