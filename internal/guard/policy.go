package guard

import (
	"fmt"
	"time"

	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/policy"
)

// checkPolicy is the third guard: transaction limits and message-type
// whitelist from the active policy profile. This guard only ever narrows
// capability, never grants it.
func checkPolicy(env identity.Envelope, req Request, profiles *policy.Store, tracker *policy.Tracker, now time.Time) Result {
	profile, ok := profiles.Resolve(env.PolicyVersion)
	if !ok {
		return deny(GuardPolicy, model.DenyProfileInactive,
			fmt.Sprintf("no profile for policy version %s", env.PolicyVersion))
	}
	if !profile.IsActive {
		return deny(GuardPolicy, model.DenyProfileInactive,
			fmt.Sprintf("profile for policy version %s is inactive", env.PolicyVersion))
	}

	if req.MessageType != "" && !profile.AllowsMessageType(req.MessageType) {
		return deny(GuardPolicy, model.DenyMessageTypeBlocked,
			fmt.Sprintf("message type %s not in whitelist", req.MessageType))
	}

	if req.TransactionAmount == "" {
		return allow()
	}

	if profile.MaxTransactionAmount != "" {
		cmp, err := policy.CompareAmounts(req.TransactionAmount, profile.MaxTransactionAmount)
		if err != nil {
			// Unparseable declared amount: fail closed.
			return deny(GuardPolicy, model.DenyAmountExceedsLimit, err.Error())
		}
		if cmp > 0 {
			return deny(GuardPolicy, model.DenyAmountExceedsLimit,
				fmt.Sprintf("amount %s exceeds limit %s", req.TransactionAmount, profile.MaxTransactionAmount))
		}
	}

	check, err := tracker.Reserve(env.TenantID, req.TransactionAmount, profile, now)
	if err != nil {
		return deny(GuardPolicy, model.DenyAmountExceedsLimit, err.Error())
	}
	if check.Exceeded {
		switch check.Dimension {
		case "rate":
			return deny(GuardPolicy, model.DenyRateLimitExceeded, check.Details)
		default:
			return deny(GuardPolicy, model.DenyDailyAggregate, check.Details)
		}
	}

	return allow()
}
