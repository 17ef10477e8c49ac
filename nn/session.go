package nn

import (
	"log"

	"gorgonia.org/gorgonia"
)

// Session owns the machines executing the training and validation graphs for
// the duration of a run.
type Session struct {
	Train gorgonia.VM
	Valid gorgonia.VM
}

// DeviceOptions describe how much device memory a session may claim. The CPU
// engine has nothing to reserve, so they are only reported.
type DeviceOptions struct {
	AllowGrowth    bool
	MemoryFraction float64
}

// NewSession compiles both graphs. Gradients must already have been added to
// the training graph for the learnables.
func NewSession(train, valid *gorgonia.ExprGraph, learnables gorgonia.Nodes, dev DeviceOptions) *Session {
	if dev.AllowGrowth {
		log.Println("Session: device memory grows dynamically")
	} else {
		log.Printf("Session: device memory fraction %.2f", dev.MemoryFraction)
	}
	return &Session{
		Train: gorgonia.NewTapeMachine(train, gorgonia.BindDualValues(learnables...)),
		Valid: gorgonia.NewTapeMachine(valid),
	}
}

// Close releases both machines.
func (s *Session) Close() error {
	errT := s.Train.Close()
	errV := s.Valid.Close()
	if errT != nil {
		return errT
	}
	return errV
}
