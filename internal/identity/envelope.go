// Package identity defines the verified identity envelope, its per-flow
// context binding, and envelope signature verification.
//
// One envelope is bound per logical request flow. The envelope is immutable
// after creation; the only legal way to bind one is WithEnvelope at the
// request boundary, and everything downstream reads it with FromContext.
package identity

import (
	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/participant"
)

// Envelope is the verified claim about a caller, established exactly once
// per request flow.
type Envelope struct {
	Version       string            `json:"version"`
	RequestID     string            `json:"requestId"`
	IssuedAt      string            `json:"issuedAt"` // RFC 3339
	IssuerService string            `json:"issuerService"`
	SubjectType   model.SubjectType `json:"subjectType"`
	SubjectID     string            `json:"subjectId"`
	TenantID      string            `json:"tenantId"`
	PolicyVersion string            `json:"policyVersion"`
	Roles         []string          `json:"roles"`
	Signature     string            `json:"signature"` // HMAC-SHA256 hex
	TrustTier     model.TrustTier   `json:"trustTier"`

	// Mandatory when SubjectType is service: the mTLS proof.
	CertFingerprint string `json:"certFingerprint,omitempty"`

	// Present only when SubjectType is user (tenant-anchored actor).
	ParticipantID     string             `json:"participantId,omitempty"`
	ParticipantRole   participant.Role   `json:"participantRole,omitempty"`
	ParticipantStatus participant.Status `json:"participantStatus,omitempty"`
}

// clone returns a deep copy so no caller can mutate a bound envelope
// through a shared slice.
func (e Envelope) clone() Envelope {
	out := e
	if e.Roles != nil {
		out.Roles = make([]string, len(e.Roles))
		copy(out.Roles, e.Roles)
	}
	return out
}
