package recovery

import (
	"fmt"

	"github.com/symphony-fin/trustplane/internal/audit"
)

// IntegrityError reports that the audit chain failed verification.
// A corrupted chain is fatal to resumption and is never downgraded to a
// warning: the platform stays pinned in LOCKDOWN.
type IntegrityError struct {
	ViolationIndex int
	Reason         string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("recovery: audit chain invalid at record %d: %s", e.ViolationIndex, e.Reason)
}

// Gate wraps a Machine with the chain-integrity precondition: any
// transition out of LOCKDOWN first verifies the active audit log.
type Gate struct {
	machine *Machine
	logPath string
}

// NewGate creates a Gate over the machine and the active audit log path.
func NewGate(machine *Machine, logPath string) *Gate {
	return &Gate{machine: machine, logPath: logPath}
}

// Transition verifies the audit chain whenever newMode is beyond LOCKDOWN,
// then delegates to the machine. Authorization votes are not recorded when
// the chain is invalid; integrity comes before quorum.
func (g *Gate) Transition(newMode Mode, actorID, incidentID string) (bool, error) {
	if newMode != Lockdown {
		result := audit.Verify(g.logPath)
		if !result.Valid {
			return false, &IntegrityError{
				ViolationIndex: result.ViolationIndex,
				Reason:         result.Reason,
			}
		}
	}
	return g.machine.Transition(newMode, actorID, incidentID)
}

// State returns the underlying machine state.
func (g *Gate) State() State {
	return g.machine.State()
}
