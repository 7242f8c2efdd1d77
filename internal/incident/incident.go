// Package incident classifies incident signals and sanitizes internal
// errors before they cross the trust boundary.
package incident

import (
	"time"

	"github.com/google/uuid"

	"github.com/symphony-fin/trustplane/internal/audit"
	"github.com/symphony-fin/trustplane/internal/model"
)

// Class is the supervisory incident class.
type Class string

const (
	ClassSecurityControl Class = "SEC-1" // security control failure
	ClassIntegrityBreach Class = "SEC-2" // audit chain integrity breach
	ClassExecution       Class = "OPS-1" // execution failure
	ClassAvailability    Class = "OPS-2" // availability outage
	ClassRegulatory      Class = "REG-1" // regulatory impact or disclosure failure
)

// Severity orders incident response.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL" // immediate automated containment
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Signal is one incident observation emitted by a component.
type Signal struct {
	ID        string    `json:"id"`
	Class     Class     `json:"class"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// NewSignal creates a Signal with a generated ID and current timestamp.
func NewSignal(class Class, severity Severity, source, details string) Signal {
	return Signal{
		ID:        "inc-" + uuid.NewString(),
		Class:     class,
		Severity:  severity,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

// Record commits the signal to the audit chain as an INCIDENT_SIGNAL event.
func Record(log *audit.Log, sig Signal) (audit.Record, error) {
	return log.Append(audit.Event{
		Type:      audit.EventIncidentSignal,
		RequestID: sig.ID,
		TenantID:  "platform",
		Subject: audit.Subject{
			Type: model.SubjectService,
			ID:   sig.Source,
			OU:   sig.Source,
		},
		Action:        &audit.Action{Resource: string(sig.Class)},
		Decision:      model.DecisionExecuted,
		PolicyVersion: "n/a",
		Reason:        sig.Details,
	})
}
