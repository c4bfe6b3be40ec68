// Package lifecycle provides the one-directional state machines used by the
// preview and encode pipelines.
package lifecycle

import "sync"

// State is the lifecycle state of a pipeline.
type State string

// Pipeline states.
const (
	StateCreated  State = "created"  // Constructed, not yet delivering frames
	StateStarted  State = "started"  // Delivering frames
	StateStopping State = "stopping" // Teardown in progress
	StateClosed   State = "closed"   // Terminal
)

// PipelineTransitions is the transition table shared by pipelines.
var PipelineTransitions = map[State][]State{
	StateCreated:  {StateStarted, StateStopping, StateClosed},
	StateStarted:  {StateStopping, StateClosed},
	StateStopping: {StateClosed},
}

// ChangeFunc is called after every successful transition, outside the lock.
type ChangeFunc[S comparable] func(from, to S)

// Machine is a finite-state machine guarded by one mutex. States without an
// entry in the transition table are terminal.
type Machine[S comparable] struct {
	mu       sync.Mutex
	state    S
	allowed  map[S][]S
	onChange ChangeFunc[S]
}

// New creates a machine in the initial state.
func New[S comparable](initial S, allowed map[S][]S) *Machine[S] {
	return &Machine[S]{state: initial, allowed: allowed}
}

// NewPipeline creates a machine with the pipeline transition table.
func NewPipeline() *Machine[State] {
	return New(StateCreated, PipelineTransitions)
}

// OnChange registers the transition callback.
func (m *Machine[S]) OnChange(fn ChangeFunc[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Is reports whether the machine is in state s.
func (m *Machine[S]) Is(s S) bool {
	return m.Current() == s
}

// terminal reports whether no transition leaves the current state.
func (m *Machine[S]) terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.allowed[m.state]) == 0
}

// Transition moves to the target state if the table allows it.
// It returns false, leaving the state untouched, otherwise.
func (m *Machine[S]) Transition(to S) bool {
	m.mu.Lock()
	from := m.state
	if !m.canLocked(to) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return true
}

// TransitionFrom moves to the target state only when the current state is from.
func (m *Machine[S]) TransitionFrom(from, to S) bool {
	m.mu.Lock()
	if m.state != from || !m.canLocked(to) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return true
}

func (m *Machine[S]) canLocked(to S) bool {
	for _, s := range m.allowed[m.state] {
		if s == to {
			return true
		}
	}
	return false
}
