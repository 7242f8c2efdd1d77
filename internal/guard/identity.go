package guard

import (
	"fmt"

	"github.com/symphony-fin/trustplane/internal/attestation"
	"github.com/symphony-fin/trustplane/internal/capability"
	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/participant"
	"github.com/symphony-fin/trustplane/internal/trust"
)

// checkIdentity is the first guard: a pre-flight filter, not a decision
// engine. It rejects flows with no bound envelope, service subjects whose
// certificate does not resolve in the trust registry, and user subjects
// whose participant is not ACTIVE.
//
// Execution-intent capabilities carry an additional precondition: an
// ingress attestation with a valid sequence identifier must exist for the
// originating request. No ingress, no execution; checked here, before
// authorization ever runs.
func checkIdentity(env identity.Envelope, cap capability.Capability, registry *trust.Registry, attestations *attestation.Store) Result {
	if capability.IsExecutionIntent(cap) {
		if attestations == nil {
			return deny(GuardIdentity, model.DenyMissingIngressSequence, "no attestation store configured")
		}
		if _, ok := attestations.Lookup(env.RequestID); !ok {
			return deny(GuardIdentity, model.DenyMissingIngressSequence,
				fmt.Sprintf("no ingress attestation for request %s", env.RequestID))
		}
	}

	if env.SubjectType == model.SubjectService {
		if env.CertFingerprint == "" {
			return deny(GuardIdentity, model.DenyCertUnknown, "service subject presented no certificate fingerprint")
		}
		if _, ok := registry.Resolve(env.CertFingerprint); !ok {
			return deny(GuardIdentity, model.DenyCertUnknown,
				fmt.Sprintf("fingerprint %s not resolvable", trust.NormalizeFingerprint(env.CertFingerprint)))
		}
	}

	if env.SubjectType == model.SubjectUser && env.ParticipantStatus != participant.StatusActive {
		return deny(GuardIdentity, model.DenyParticipantInactive,
			fmt.Sprintf("participant %s has status %s", env.ParticipantID, env.ParticipantStatus))
	}

	return allow()
}
