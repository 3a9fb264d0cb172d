// Package coordinator implements the Transcription Coordinator (C13):
// the top-level façade selecting one of four recording strategies and
// enforcing the session's Idle -> Recording -> Processing -> Idle
// state machine. Adapted from ai.AudioPipeline, which plays the
// equivalent top-level orchestration role over transcription and
// diarization.
package coordinator

import (
	"fmt"
	"sync"
)

// State is one of the three legal recording states (§4.13).
type State int

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// stateMachine enforces the total, explicit transition set: no direct
// Idle -> Processing or Recording -> Idle is legal (§4.13).
type stateMachine struct {
	mu    sync.Mutex
	state State
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) toRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return fmt.Errorf("coordinator: cannot start recording from state %s", m.state)
	}
	m.state = Recording
	return nil
}

func (m *stateMachine) toProcessing() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Recording {
		return fmt.Errorf("coordinator: cannot enter processing from state %s", m.state)
	}
	m.state = Processing
	return nil
}

// toIdle always succeeds: stop-time errors must still end in Idle so
// the state machine stays total (§7 "Propagation policy").
func (m *stateMachine) toIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
}
