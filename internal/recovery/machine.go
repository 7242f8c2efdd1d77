// Package recovery is the graduated operating-mode state machine that
// gates platform resumption after an incident. The platform boots in
// LOCKDOWN and earns its way out; entering FULL_OPERATIONAL is dual
// controlled: two distinct actors, never one actor twice.
package recovery

import (
	"fmt"
	"sync"
	"time"
)

// Mode is an operating mode.
type Mode string

const (
	Lockdown        Mode = "LOCKDOWN"
	ReadOnly        Mode = "READ_ONLY"
	ControlOnly     Mode = "CONTROL_ONLY"
	FullOperational Mode = "FULL_OPERATIONAL"
)

// allowedTransitions is the fixed adjacency table. Any transition not
// listed fails and leaves state unchanged.
var allowedTransitions = map[Mode][]Mode{
	Lockdown:        {ReadOnly, ControlOnly},
	ReadOnly:        {ControlOnly, Lockdown},
	ControlOnly:     {FullOperational, Lockdown},
	FullOperational: {Lockdown},
}

// quorum is the number of distinct actors required to enter FULL_OPERATIONAL.
const quorum = 2

// State is a snapshot of the machine.
type State struct {
	Mode         Mode      `json:"mode"`
	IncidentID   string    `json:"incidentId,omitempty"`
	AuthorizedBy []string  `json:"authorizedBy"`
	Timestamp    time.Time `json:"timestamp"`
}

// InvalidTransitionError reports a transition outside the adjacency table.
type InvalidTransitionError struct {
	From Mode
	To   Mode
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("recovery: invalid transition %s -> %s", e.From, e.To)
}

// Machine owns the process-wide recovery state. Constructed once at
// process start; callers never build State directly and only mutate
// through Transition. All methods are safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	mode         Mode
	incidentID   string
	authorizedBy []string
	timestamp    time.Time

	// pendingTarget tracks which transition the recorded authorizations
	// belong to. Approvals never carry over: a new pending target resets
	// the set, so a stale vote cannot help commit a different transition.
	pendingTarget Mode
	pendingVotes  []string
}

// NewMachine creates a Machine in LOCKDOWN, the fail-closed default.
func NewMachine() *Machine {
	return &Machine{
		mode:      Lockdown,
		timestamp: time.Now().UTC(),
	}
}

// Transition attempts to move to newMode, authorized by actorID for
// incidentID. Adjacency is validated first; an invalid transition fails
// with InvalidTransitionError and changes nothing.
//
// Entering FULL_OPERATIONAL requires quorum from distinct actors: the
// first vote records actorID and returns committed=false with the mode
// unchanged; a repeat vote by the same actor also returns false. Once a
// second distinct actor votes, the transition commits.
func (m *Machine) Transition(newMode Mode, actorID, incidentID string) (bool, error) {
	if actorID == "" {
		return false, fmt.Errorf("recovery: actor id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !adjacent(m.mode, newMode) {
		return false, &InvalidTransitionError{From: m.mode, To: newMode}
	}

	if newMode == FullOperational {
		if m.pendingTarget != FullOperational {
			m.pendingTarget = FullOperational
			m.pendingVotes = nil
		}
		if !hasVote(m.pendingVotes, actorID) {
			m.pendingVotes = append(m.pendingVotes, actorID)
		}
		if len(m.pendingVotes) < quorum {
			return false, nil
		}
		m.commit(newMode, incidentID, m.pendingVotes)
		return true, nil
	}

	// Leaving the pending path abandons any collected votes.
	m.pendingTarget = ""
	m.pendingVotes = nil
	m.commit(newMode, incidentID, []string{actorID})
	return true, nil
}

func (m *Machine) commit(newMode Mode, incidentID string, actors []string) {
	m.mode = newMode
	m.incidentID = incidentID
	m.authorizedBy = append([]string(nil), actors...)
	m.timestamp = time.Now().UTC()
	m.pendingTarget = ""
	m.pendingVotes = nil
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Mode:         m.mode,
		IncidentID:   m.incidentID,
		AuthorizedBy: append([]string(nil), m.authorizedBy...),
		Timestamp:    m.timestamp,
	}
}

// Mode returns the current operating mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func adjacent(from, to Mode) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func hasVote(votes []string, actorID string) bool {
	for _, v := range votes {
		if v == actorID {
			return true
		}
	}
	return false
}
