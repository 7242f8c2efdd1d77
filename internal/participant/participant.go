// Package participant models regulated actors anchored to a tenant.
package participant

import "github.com/symphony-fin/trustplane/internal/capability"

// Role is a participant's regulated role.
type Role string

const (
	RoleBank       Role = "BANK"
	RolePSP        Role = "PSP"
	RoleOperator   Role = "OPERATOR"
	RoleSupervisor Role = "SUPERVISOR"
)

// Status is a participant's lifecycle status. Only ACTIVE participants
// may pass the identity guard.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRevoked   Status = "REVOKED"
)

// Resolved is a participant resolved from provisioned identity data.
type Resolved struct {
	ParticipantID string `json:"participantId"`
	Role          Role   `json:"role"`
	Status        Status `json:"status"`
}

// supervisorAllowed is the read-only, evidence-access capability set for
// SUPERVISOR. Supervisors are non-executing: everything else is denied.
var supervisorAllowed = map[capability.Capability]bool{
	capability.InstructionRead: true,
	capability.AuditRead:       true,
	capability.StatusRead:      true,
	capability.PolicyRead:      true,
}

// SupervisorMayHold reports whether a SUPERVISOR participant may exercise c.
func SupervisorMayHold(c capability.Capability) bool {
	return supervisorAllowed[c]
}
