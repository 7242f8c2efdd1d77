// Package capability is the closed catalog of authorization verbs and the
// organizational units that own them. Capabilities are verbs, not roles:
// holding a role never implies a verb, and the catalog is additive-only
// once locked.
package capability

import (
	"fmt"
	"strings"
)

// Capability is an authorization verb, e.g. "execution:attempt".
type Capability string

// The closed capability set.
const (
	// Instruction lifecycle (ingest-api)
	InstructionSubmit Capability = "instruction:submit"
	InstructionRead   Capability = "instruction:read"
	InstructionCancel Capability = "instruction:cancel"

	// Execution lifecycle (executor-worker)
	ExecutionAttempt Capability = "execution:attempt"
	ExecutionRetry   Capability = "execution:retry"
	ExecutionAbort   Capability = "execution:abort"

	// Routing control (control-plane)
	RouteConfigure  Capability = "route:configure"
	RouteActivate   Capability = "route:activate"
	RouteDeactivate Capability = "route:deactivate"

	// Provider control (control-plane)
	ProviderEnable      Capability = "provider:enable"
	ProviderDisable     Capability = "provider:disable"
	ProviderHealthWrite Capability = "provider:health:write"

	// Audit & reporting (read-api)
	AuditRead  Capability = "audit:read"
	StatusRead Capability = "status:read"

	// Policy & platform control (control-plane)
	PolicyRead           Capability = "policy:read"
	PolicyActivate       Capability = "policy:activate"
	KillswitchActivate   Capability = "killswitch:activate"
	KillswitchDeactivate Capability = "killswitch:deactivate"

	// Tenant-scoped user capabilities (enter through ingest-api)
	TransactionExecute Capability = "transaction:execute"
	AccountRead        Capability = "account:read"
	LedgerWrite        Capability = "ledger:write"
)

// ouMap assigns each capability to its owning organizational unit.
// Adding a verb here without updating the lock file fails the lock check.
var ouMap = map[Capability]string{
	InstructionSubmit:    "ingest-api",
	InstructionCancel:    "ingest-api",
	InstructionRead:      "read-api",
	ExecutionAttempt:     "executor-worker",
	ExecutionRetry:       "executor-worker",
	ExecutionAbort:       "executor-worker",
	RouteConfigure:       "control-plane",
	RouteActivate:        "control-plane",
	RouteDeactivate:      "control-plane",
	ProviderEnable:       "control-plane",
	ProviderDisable:      "control-plane",
	ProviderHealthWrite:  "control-plane",
	AuditRead:            "read-api",
	StatusRead:           "read-api",
	PolicyRead:           "control-plane",
	PolicyActivate:       "control-plane",
	KillswitchActivate:   "control-plane",
	KillswitchDeactivate: "control-plane",
	TransactionExecute:   "ingest-api",
	AccountRead:          "ingest-api",
	LedgerWrite:          "ingest-api",
}

// restrictedClientPrefixes are capability classes clients may never hold
// directly, regardless of any role claim on their envelope.
var restrictedClientPrefixes = []string{
	"execution:",
	"route:",
	"provider:",
	"policy:",
	"killswitch:",
}

// Known reports whether c is in the closed capability set.
func Known(c Capability) bool {
	_, ok := ouMap[c]
	return ok
}

// OwnerOf returns the organizational unit that owns c.
// Looking up a capability outside the closed set is a programming error
// upstream (input validation runs before the core), so this panics rather
// than returning a runtime deny.
func OwnerOf(c Capability) string {
	ou, ok := ouMap[c]
	if !ok {
		panic(fmt.Sprintf("capability: unknown capability %q", c))
	}
	return ou
}

// IsClientRestricted reports whether c belongs to a capability class that
// clients may never exercise directly.
func IsClientRestricted(c Capability) bool {
	for _, prefix := range restrictedClientPrefixes {
		if strings.HasPrefix(string(c), prefix) {
			return true
		}
	}
	return false
}

// IsExecutionIntent reports whether c expresses execution intent.
// Execution-intent capabilities require an ingress attestation before any
// guard may evaluate them.
func IsExecutionIntent(c Capability) bool {
	return strings.HasPrefix(string(c), "execution:")
}

// All returns every capability in the catalog. Order is not specified.
func All() []Capability {
	out := make([]Capability, 0, len(ouMap))
	for c := range ouMap {
		out = append(out, c)
	}
	return out
}
