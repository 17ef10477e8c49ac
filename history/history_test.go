package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoad(t *testing.T) {
	h := New()
	h.Train.Append("loss", 2.5)
	h.Train.Append("loss", 1.25)
	h.Train.Append("UAS", 40)
	h.Valid.Append("LAS", 33.5)

	path := filepath.Join(t.TempDir(), FILENAME)
	if err := h.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Train["loss"]) != 2 || got.Train["loss"][1] != 1.25 {
		t.Errorf("Expected train loss [2.5 1.25], got %v", got.Train["loss"])
	}
	if v, ok := got.Valid.Last("LAS"); !ok || v != 33.5 {
		t.Errorf("Expected valid LAS 33.5, got %v", got.Valid["LAS"])
	}
	if _, ok := got.Valid.Last("loss"); ok {
		t.Error("Expected no valid loss")
	}
}

func TestLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), FILENAME)
	if err := New().Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Train == nil || got.Valid == nil || len(got.Train) != 0 {
		t.Errorf("Expected empty splits, got %+v", got)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected an error for a missing blob")
	}
}

func TestPlot(t *testing.T) {
	s := make(Series)
	s.Append("loss", 3)
	s.Append("loss", 2)
	s.Append("UAS", 50)

	path := filepath.Join(t.TempDir(), "train.plot.json")
	if err := Plot(s, "Parser", "Train", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var plot PlotData
	if err := json.Unmarshal(data, &plot); err != nil {
		t.Fatal(err)
	}
	if len(plot.Series) != 2 || plot.Series[0].Name != "UAS" {
		t.Fatalf("Expected sorted series UAS, loss; got %+v", plot.Series)
	}
	if len(plot.Series[1].Data) != 2 || plot.Series[1].Data[1].Y != 2.0 {
		t.Errorf("Expected loss points, got %+v", plot.Series[1].Data)
	}
}
