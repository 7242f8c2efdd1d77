package incident

import (
	"fmt"

	"github.com/symphony-fin/trustplane/internal/audit"
	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/recovery"
)

// Action is one automated containment measure.
type Action string

const (
	ActionGlobalKillSwitch        Action = "ACTIVATE_GLOBAL_KILL_SWITCH"
	ActionFreezeActorCapabilities Action = "FREEZE_ACTOR_CAPABILITIES"
)

// actionsFor maps a signal to its automated responses. Only CRITICAL
// signals trigger containment: an integrity breach freezes the whole
// platform, an authorization-control failure freezes the acting subject.
func actionsFor(sig Signal) []Action {
	if sig.Severity != SeverityCritical {
		return nil
	}
	var actions []Action
	if sig.Class == ClassIntegrityBreach {
		actions = append(actions, ActionGlobalKillSwitch)
	}
	if sig.Class == ClassSecurityControl {
		actions = append(actions, ActionFreezeActorCapabilities)
	}
	return actions
}

// Responder records incident signals and runs automated containment.
// The global kill switch drives the recovery machine into LOCKDOWN.
type Responder struct {
	log     *audit.Log
	machine *recovery.Machine
}

// NewResponder creates a Responder over the audit chain and the recovery
// machine. machine may be nil when no state machine is in reach; the
// kill-switch action is then audit-only.
func NewResponder(log *audit.Log, machine *recovery.Machine) *Responder {
	return &Responder{log: log, machine: machine}
}

// Report commits the signal to the chain, executes containment for
// critical signals, and returns the actions taken. Every action lands on
// the chain as CONTAINMENT_ACTIVATE before Report returns.
func (r *Responder) Report(sig Signal) ([]Action, error) {
	if _, err := Record(r.log, sig); err != nil {
		return nil, err
	}
	actions := actionsFor(sig)
	for _, action := range actions {
		if err := r.run(action, sig); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

func (r *Responder) run(action Action, sig Signal) error {
	if action == ActionGlobalKillSwitch && r.machine != nil && r.machine.Mode() != recovery.Lockdown {
		if _, err := r.machine.Transition(recovery.Lockdown, "incident-containment", sig.ID); err != nil {
			return fmt.Errorf("incident: engage kill switch: %w", err)
		}
	}
	_, err := r.log.Append(audit.Event{
		Type:      audit.EventContainmentActivate,
		RequestID: "containment-" + sig.ID,
		TenantID:  "platform",
		Subject: audit.Subject{
			Type: model.SubjectService,
			ID:   "incident-responder",
			OU:   "incident-containment",
		},
		Action:        &audit.Action{Resource: string(action)},
		Decision:      model.DecisionExecuted,
		PolicyVersion: "n/a",
		Reason:        fmt.Sprintf("automated response to %s [%s]", sig.Class, sig.Severity),
	})
	return err
}
