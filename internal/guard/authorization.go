package guard

import (
	"fmt"

	"github.com/symphony-fin/trustplane/internal/capability"
	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/participant"
)

// checkAuthorization is the second guard: capability scope, not balances.
// The caller's resolved OU must own the requested capability, clients may
// never hold a restricted-class capability regardless of claimed roles,
// and SUPERVISOR participants are non-executing.
func checkAuthorization(env identity.Envelope, cap capability.Capability, callerOU string) Result {
	owningOU := capability.OwnerOf(cap)
	if owningOU != callerOU {
		return deny(GuardAuthorization, model.DenyOUMismatch,
			fmt.Sprintf("capability %s is owned by %s, caller resolved to %s", cap, owningOU, callerOU))
	}

	if env.SubjectType == model.SubjectClient && capability.IsClientRestricted(cap) {
		return deny(GuardAuthorization, model.DenyClientRestricted,
			fmt.Sprintf("clients may never hold %s", cap))
	}

	if env.SubjectType == model.SubjectUser && env.ParticipantRole == participant.RoleSupervisor {
		if !participant.SupervisorMayHold(cap) {
			return deny(GuardAuthorization, model.DenySupervisorNonExec,
				fmt.Sprintf("supervisor access is read-only, %s is not evidence access", cap))
		}
	}

	return allow()
}
