// Package history records per-split metric sequences across a training run
// and persists them as a single protobuf blob.
package history

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FILENAME is the blob written next to the checkpoints.
const FILENAME = "history"

// Series maps a metric name to one value per validation event.
type Series map[string][]float64

// Append adds one value to the named sequence.
func (s Series) Append(name string, value float64) {
	s[name] = append(s[name], value)
}

// Last returns the latest value of a sequence.
func (s Series) Last(name string) (float64, bool) {
	vals := s[name]
	if len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}

// Names returns the metric names in sorted order.
func (s Series) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History is the metric record of a run, one Series per split.
type History struct {
	Train Series
	Valid Series
}

// New returns an empty history.
func New() *History {
	return &History{Train: make(Series), Valid: make(Series)}
}

func (s Series) toValue() map[string]interface{} {
	out := make(map[string]interface{}, len(s))
	for name, vals := range s {
		list := make([]interface{}, len(vals))
		for i, v := range vals {
			list[i] = v
		}
		out[name] = list
	}
	return out
}

func seriesFrom(v interface{}) (Series, error) {
	out := make(Series)
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("expected a metric map, got %T", v)
	}
	for name, raw := range m {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Errorf("metric %s: expected a list, got %T", name, raw)
		}
		vals := make([]float64, len(list))
		for i, x := range list {
			f, ok := x.(float64)
			if !ok {
				return nil, errors.Errorf("metric %s: expected a number, got %T", name, x)
			}
			vals[i] = f
		}
		out[name] = vals
	}
	return out, nil
}

// Marshal encodes both splits as a protobuf Struct.
func (h *History) Marshal() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"train": h.Train.toValue(),
		"valid": h.Valid.toValue(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode history")
	}
	return proto.Marshal(s)
}

// Unmarshal decodes a history written by Marshal.
func Unmarshal(data []byte) (*History, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	m := s.AsMap()
	train, err := seriesFrom(m["train"])
	if err != nil {
		return nil, errors.Wrap(err, "train history")
	}
	valid, err := seriesFrom(m["valid"])
	if err != nil {
		return nil, errors.Wrap(err, "valid history")
	}
	return &History{Train: train, Valid: valid}, nil
}

func (h *History) Save(path string) error {
	data, err := h.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "write history")
	}
	return nil
}

// Load reads the history saved at path.
func Load(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read history")
	}
	return Unmarshal(data)
}
