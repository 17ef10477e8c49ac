package network

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/CoNLL-UD-2017/UnstableParser/checkpoint"
	"github.com/CoNLL-UD-2017/UnstableParser/config"
	"github.com/CoNLL-UD-2017/UnstableParser/history"
	"github.com/CoNLL-UD-2017/UnstableParser/parser"
)

type fakeIterator struct {
	left int
}

func (it *fakeIterator) Next() (*parser.Batch, bool) {
	if it.left == 0 {
		return nil, false
	}
	it.left--
	return &parser.Batch{}, true
}

type fakeDataset struct {
	batches int
	runs    int
	passes  int
	plots   int
	events  *[]string
}

func (d *fakeDataset) IterBatches() parser.Iterator {
	d.passes++
	return &fakeIterator{left: d.batches}
}

func (d *fakeDataset) TrainKeys() []string { return []string{"n_tokens", "loss"} }

func (d *fakeDataset) Run(b *parser.Batch) ([]float64, error) {
	d.runs++
	return []float64{10, 5}, nil
}

func (d *fakeDataset) UpdateHistory(s history.Series, acc []float64) {
	s.Append("loss", acc[1]/acc[0])
}

func (d *fakeDataset) PrintAccuracy(w io.Writer, acc []float64, elapsed time.Duration) {
	io.WriteString(w, "acc\n")
}

func (d *fakeDataset) Plot(s history.Series) error {
	d.plots++
	*d.events = append(*d.events, "plot")
	return nil
}

type fakeSaver struct {
	epochs []int
	steps  []int
	events *[]string
}

func (s *fakeSaver) SaveCheckpoint(step, epoch int) error {
	s.epochs = append(s.epochs, epoch)
	s.steps = append(s.steps, step)
	*s.events = append(*s.events, "checkpoint")
	return nil
}

func (s *fakeSaver) SaveHistory(h *history.History) error {
	*s.events = append(*s.events, "history")
	return nil
}

func newTrainer(maxIters, validateEvery, saveEvery int) (*Trainer, *fakeDataset, *fakeDataset, *fakeSaver) {
	events := new([]string)
	train := &fakeDataset{batches: 2, events: events}
	valid := &fakeDataset{batches: 3, events: events}
	saver := &fakeSaver{events: events}
	return &Trainer{
		MaxTrainIters: maxIters,
		ValidateEvery: validateEvery,
		SaveEvery:     saveEvery,
		Out:           io.Discard,
		Trainset:      train,
		Validset:      valid,
		History:       history.New(),
		Saver:         saver,
	}, train, valid, saver
}

func TestTrainerSchedule(t *testing.T) {
	tr, train, valid, saver := newTrainer(10, 5, 1)
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}
	if tr.Step != 10 || tr.Epoch != 5 {
		t.Errorf("Expected step 10 epoch 5, got %d %d", tr.Step, tr.Epoch)
	}
	if train.passes != 5 || train.runs != 10 {
		t.Errorf("Expected 5 passes of 2 batches, got %d passes %d runs", train.passes, train.runs)
	}
	// validation at steps 1, 5 and 10
	if valid.passes != 3 || valid.runs != 9 {
		t.Errorf("Expected 3 validation passes, got %d passes %d runs", valid.passes, valid.runs)
	}
	if len(tr.History.Train["loss"]) != 3 || len(tr.History.Valid["loss"]) != 3 {
		t.Errorf("Expected 3 history entries per split, got %v", tr.History)
	}
	// the step 1 entry covers one batch, the next ones cover the batches since
	if tr.History.Valid["loss"][0] != 0.5 {
		t.Errorf("Expected valid loss 0.5, got %v", tr.History.Valid["loss"])
	}
	want := []int{1, 2, 3, 4, 5, 5}
	if len(saver.epochs) != len(want) {
		t.Fatalf("Expected saves at epochs %v, got %v", want, saver.epochs)
	}
	for i := range want {
		if saver.epochs[i] != want[i] {
			t.Errorf("Expected saves at epochs %v, got %v", want, saver.epochs)
			break
		}
	}
	if train.plots != len(want) || valid.plots != len(want) {
		t.Errorf("Expected a plot per save, got %d and %d", train.plots, valid.plots)
	}
}

func TestTrainerFinishesEpoch(t *testing.T) {
	tr, train, _, saver := newTrainer(3, 100, 0)
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}
	if tr.Step != 4 || train.runs != 4 {
		t.Errorf("Expected the second epoch to run to completion, got step %d", tr.Step)
	}
	if len(saver.epochs) != 1 || saver.epochs[0] != 2 {
		t.Errorf("Expected only the final save, got %v", saver.epochs)
	}
}

func TestTrainerResumedAtBound(t *testing.T) {
	tr, train, valid, saver := newTrainer(10, 5, 1)
	tr.Step, tr.Epoch = 10, 5
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}
	if train.runs != 0 || valid.runs != 0 {
		t.Errorf("Expected no work, got %d train and %d valid runs", train.runs, valid.runs)
	}
	if tr.Step != 10 || len(saver.steps) != 1 || saver.steps[0] != 10 {
		t.Errorf("Expected a single final save at step 10, got %v", saver.steps)
	}
}

func TestTrainerVerbose(t *testing.T) {
	tr, _, _, _ := newTrainer(2, 5, 0)
	var buf bytes.Buffer
	tr.Out = &buf
	tr.Verbose = true
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "     1)\nacc\nacc\n" {
		t.Errorf("Unexpected summary %q", buf.String())
	}
}

func TestTrainerSaveOrder(t *testing.T) {
	tr, _, _, saver := newTrainer(2, 5, 0)
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}
	want := "checkpoint plot plot history"
	if got := strings.Join(*saver.events, " "); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestTrainerEmptyTrainset(t *testing.T) {
	tr, train, _, _ := newTrainer(2, 5, 0)
	train.batches = 0
	if err := tr.Run(); err == nil {
		t.Error("Expected an error for an empty training set")
	}
}

const treebank = `1	The	the	DET	DT	_	2	det	_	_
2	cats	cat	NOUN	NNS	_	3	nsubj	_	_
3	sleep	sleep	VERB	VBP	_	0	root	_	_
4	.	.	PUNCT	.	_	3	punct	_	_

1	Do	do	AUX	VB	_	3	aux	_	_
2	n't	not	PART	RB	_	3	advmod	_	_
3	go	go	VERB	VB	_	0	root	_	_
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "train.conllu")
	if err := os.WriteFile(corpus, []byte(treebank), 0644); err != nil {
		t.Fatal(err)
	}
	// the third line is malformed and lies beyond max_rank
	vectors := filepath.Join(dir, "vectors.txt")
	if err := os.WriteFile(vectors, []byte("cats 0.1 0.2 0.3\ngo 0.4 0.5 0.6\nsleep 0.7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.SaveDir = filepath.Join(dir, "saves")
	cfg.TrainFiles = []string{corpus}
	cfg.ValidFiles = []string{corpus}
	cfg.PretrainedFile = vectors
	cfg.MaxRank = 2
	cfg.MinOccurCount = 1
	cfg.MaxTrainIters = 2
	cfg.ValidateEvery = 1
	cfg.SaveEvery = 1
	cfg.Verbose = false
	cfg.EmbedSize = 4
	cfg.TagEmbedSize = 2
	cfg.SubtokenEmbedSize = 2
	cfg.HiddenSize = 3
	cfg.BatchSize = 1
	cfg.MaxSentLen = 6
	return cfg
}

func TestTrainAndResume(t *testing.T) {
	cfg := testConfig(t)
	net, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if net.Vocabs.Pretrained.Len() != 2 {
		t.Errorf("Expected 2 pretrained entries, got %d", net.Vocabs.Pretrained.Len())
	}
	net.Out = io.Discard
	if err := net.Train(false); err != nil {
		t.Fatal(err)
	}
	latest, err := net.Checkpoints.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != "parser-1" {
		t.Errorf("Expected parser-1, got %s", latest)
	}
	st, err := checkpoint.Restore(latest)
	if err != nil {
		t.Fatal(err)
	}
	if st.GlobalStep != 2 || st.GlobalEpoch != 1 {
		t.Errorf("Expected step 2 epoch 1, got %d %d", st.GlobalStep, st.GlobalEpoch)
	}
	for _, p := range st.Params {
		if strings.HasPrefix(p.Name, "Pretrained/Embeddings") {
			t.Error("Expected the pretrained table to be left out of checkpoints")
		}
		// the moving average lags behind any parameter that was updated
		if equalValues(p.Raw, p.Smoothed) {
			t.Errorf("Expected %s to have been trained", p.Name)
		}
	}
	h, err := history.Load(filepath.Join(cfg.SaveDir, history.FILENAME))
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Valid["UAS"]) != 2 {
		t.Errorf("Expected 2 validations, got %v", h.Valid)
	}
	for _, name := range []string{"train.plot.json", "valid.plot.json"} {
		if _, err := os.Stat(filepath.Join(cfg.SaveDir, name)); err != nil {
			t.Errorf("Expected %s: %v", name, err)
		}
	}

	// resuming at the bound trains nothing and saves the restored values back
	restored, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	restored.Out = io.Discard
	if err := restored.Train(true); err != nil {
		t.Fatal(err)
	}
	for _, saved := range st.Params {
		p, ok := restored.Params.Get(saved.Name)
		if !ok {
			t.Fatalf("Expected %s after restore", saved.Name)
		}
		if !equalValues(p.Raw(), saved.Raw) || !equalValues(p.Smoothed(), saved.Smoothed) {
			t.Errorf("Expected %s restored exactly", saved.Name)
		}
	}
	again, err := checkpoint.Restore(latest)
	if err != nil {
		t.Fatal(err)
	}
	if again.GlobalStep != st.GlobalStep || again.GlobalEpoch != st.GlobalEpoch {
		t.Errorf("Expected step %d epoch %d, got %d %d", st.GlobalStep, st.GlobalEpoch, again.GlobalStep, again.GlobalEpoch)
	}

	cfg.MaxTrainIters = 4
	resumed, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	resumed.Out = io.Discard
	if err := resumed.Train(true); err != nil {
		t.Fatal(err)
	}
	if latest, _ = resumed.Checkpoints.Latest(); filepath.Base(latest) != "parser-2" {
		t.Errorf("Expected parser-2, got %s", latest)
	}
	if _, err := os.Stat(filepath.Join(cfg.SaveDir, "parser-1")); !os.IsNotExist(err) {
		t.Error("Expected the previous snapshot to be removed")
	}
	if st, err = checkpoint.Restore(latest); err != nil {
		t.Fatal(err)
	}
	if st.GlobalStep != 4 {
		t.Errorf("Expected the step to continue from 2 to 4, got %d", st.GlobalStep)
	}
	if h, err = history.Load(filepath.Join(cfg.SaveDir, history.FILENAME)); err != nil {
		t.Fatal(err)
	}
	if len(h.Valid["UAS"]) != 4 {
		t.Errorf("Expected the restored history to grow to 4 entries, got %d", len(h.Valid["UAS"]))
	}
}

func equalValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	net, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	net.Out = io.Discard
	if err := net.Train(true); errors.Cause(err) != checkpoint.ErrNoCheckpoint {
		t.Errorf("Expected ErrNoCheckpoint, got %v", err)
	}
}
