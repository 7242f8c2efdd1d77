// Package guard is the fail-closed authorization pipeline. Four guards run
// in fixed order (Identity, Authorization, Policy, Ledger) and the first
// deny short-circuits. Deny is a normal return value, never an error; every
// decision is committed to the audit chain before the caller proceeds.
package guard

import "github.com/symphony-fin/trustplane/internal/model"

// Result is the outcome of a single guard or of the whole pipeline.
type Result struct {
	Allowed bool
	Guard   string // which guard produced the deny
	Reason  model.DenyReason
	Details string
}

func allow() Result {
	return Result{Allowed: true}
}

func deny(guard string, reason model.DenyReason, details string) Result {
	return Result{Guard: guard, Reason: reason, Details: details}
}

// Guard names as they appear in results and logs.
const (
	GuardIdentity      = "identity"
	GuardAuthorization = "authorization"
	GuardPolicy        = "policy"
	GuardLedger        = "ledger"
)
