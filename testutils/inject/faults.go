package inject

import (
	"go.viam.com/cutterdrive/faults"
)

// FaultSink is an injected faults.Sink.
type FaultSink struct {
	faults.Sink
	SetFaultFunc    func(code faults.Code)
	ClearFaultFunc  func(code faults.Code)
	ClearFaultsFunc func()
	FaultedFunc     func(mask faults.Code) bool
}

// SetFault calls the injected SetFault or the real version.
func (s *FaultSink) SetFault(code faults.Code) {
	if s.SetFaultFunc == nil {
		s.Sink.SetFault(code)
		return
	}
	s.SetFaultFunc(code)
}

// ClearFault calls the injected ClearFault or the real version.
func (s *FaultSink) ClearFault(code faults.Code) {
	if s.ClearFaultFunc == nil {
		s.Sink.ClearFault(code)
		return
	}
	s.ClearFaultFunc(code)
}

// ClearFaults calls the injected ClearFaults or the real version.
func (s *FaultSink) ClearFaults() {
	if s.ClearFaultsFunc == nil {
		s.Sink.ClearFaults()
		return
	}
	s.ClearFaultsFunc()
}

// Faulted calls the injected Faulted or the real version.
func (s *FaultSink) Faulted(mask faults.Code) bool {
	if s.FaultedFunc == nil {
		return s.Sink.Faulted(mask)
	}
	return s.FaultedFunc(mask)
}
