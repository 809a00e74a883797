package pipeline

import (
	"fmt"
	"sync/atomic"
)

// State is a step in the life of one download request.
type State string

const (
	StateRequested         State = "requested"
	StateGating            State = "gating"
	StateAcquiring         State = "acquiring"
	StateProcessing        State = "processing"
	StateDelivered         State = "delivered"
	StateFallbackDelivered State = "fallback_delivered"
	StateFailed            State = "failed"
	StateAborted           State = "aborted"
	StateRejected          State = "rejected"
)

var transitions = map[State][]State{
	StateRequested:  {StateGating, StateFailed, StateAborted},
	StateGating:     {StateAcquiring, StateRejected, StateFailed, StateAborted},
	StateAcquiring:  {StateProcessing, StateFallbackDelivered, StateFailed, StateAborted},
	StateProcessing: {StateDelivered, StateFailed, StateAborted},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type stateMachine struct {
	state State
	trace []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateRequested, trace: []State{StateRequested}}
}

func (m *stateMachine) to(next State) error {
	if !canTransition(m.state, next) {
		return fmt.Errorf("invalid transition %s -> %s", m.state, next)
	}
	m.state = next
	m.trace = append(m.trace, next)
	return nil
}

// PaymentsFlag reports whether plan limits are enforced.
type PaymentsFlag interface {
	Enabled() bool
}

// AtomicFlag is a PaymentsFlag that can be flipped at runtime.
type AtomicFlag struct {
	v atomic.Bool
}

func NewAtomicFlag(enabled bool) *AtomicFlag {
	f := &AtomicFlag{}
	f.v.Store(enabled)
	return f
}

func (f *AtomicFlag) Enabled() bool { return f.v.Load() }

func (f *AtomicFlag) Set(enabled bool) { f.v.Store(enabled) }
