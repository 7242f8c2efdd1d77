// Package audit is the hash-chained, append-only decision ledger.
// Every authorization decision lands here before the caller proceeds;
// mutating or deleting any record invalidates the hash of every record
// after it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/symphony-fin/trustplane/internal/model"
)

// GenesisHash is the prevHash of the first record in a new chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EventType is the closed set of auditable lifecycle events.
type EventType string

const (
	EventIdentityVerify      EventType = "IDENTITY_VERIFY"
	EventAuthzAllow          EventType = "AUTHZ_ALLOW"
	EventAuthzDeny           EventType = "AUTHZ_DENY"
	EventInstructionSubmit   EventType = "INSTRUCTION_SUBMIT"
	EventInstructionCancel   EventType = "INSTRUCTION_CANCEL"
	EventExecutionAttempt    EventType = "EXECUTION_ATTEMPT"
	EventExecutionAbort      EventType = "EXECUTION_ABORT"
	EventPolicyActivate      EventType = "POLICY_ACTIVATE"
	EventKillswitchEngage    EventType = "KILLSWITCH_ENGAGE"
	EventEvidenceExport      EventType = "EVIDENCE_EXPORT"
	EventIncidentSignal      EventType = "INCIDENT_SIGNAL"
	EventContainmentActivate EventType = "CONTAINMENT_ACTIVATE"

	// Guard pipeline denials
	EventGuardIdentityDeny      EventType = "GUARD_IDENTITY_DENY"
	EventGuardAuthorizationDeny EventType = "GUARD_AUTHORIZATION_DENY"
	EventGuardPolicyDeny        EventType = "GUARD_POLICY_DENY"
	EventGuardLedgerScopeDeny   EventType = "GUARD_LEDGER_SCOPE_DENY"
	EventParticipantStatusDeny  EventType = "PARTICIPANT_STATUS_DENY"
)

// Subject identifies who a record is about.
type Subject struct {
	Type            model.SubjectType `json:"type"`
	ID              string            `json:"id"`
	OU              string            `json:"ou"`
	CertFingerprint string            `json:"certFingerprint,omitempty"`
}

// Action identifies what the subject attempted.
type Action struct {
	Capability string `json:"capability,omitempty"`
	Resource   string `json:"resource,omitempty"`
}

// Integrity links a record into the chain.
type Integrity struct {
	PrevHash string `json:"prevHash"`
	Hash     string `json:"hash"`
}

// Record is one line in the NDJSON audit log. All fields are structs so
// json.Marshal field order is deterministic and hashing is reproducible.
type Record struct {
	EventID       string         `json:"eventId"`
	EventType     EventType      `json:"eventType"`
	Timestamp     string         `json:"timestamp"` // RFC 3339
	RequestID     string         `json:"requestId"`
	TenantID      string         `json:"tenantId"`
	Subject       Subject        `json:"subject"`
	Action        *Action        `json:"action,omitempty"`
	Decision      model.Decision `json:"decision"`
	PolicyVersion string         `json:"policyVersion"`
	Reason        string         `json:"reason,omitempty"`
	Integrity     *Integrity     `json:"integrity,omitempty"`
}

// canonicalBytes serializes the record with the integrity field excluded.
// This is the exact byte stream the hash covers.
func canonicalBytes(r Record) ([]byte, error) {
	r.Integrity = nil
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal record: %w", err)
	}
	return data, nil
}

// chainHash computes the lowercase hex SHA-256 over the canonical record
// bytes concatenated with prevHash.
func chainHash(canonical []byte, prevHash string) string {
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// validHex64 reports whether s is a 64-character lowercase hex digest.
func validHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
