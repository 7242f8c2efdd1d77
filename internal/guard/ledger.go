package guard

import (
	"fmt"

	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/ledger"
	"github.com/symphony-fin/trustplane/internal/model"
)

// checkLedger is the fourth guard: structural scope validation only.
// It confirms the referenced accounts and wallets sit inside the caller's
// tenant-declared ledger scope. It never computes balances and grants no
// execution authority.
func checkLedger(env identity.Envelope, req Request, scopes ledger.ScopeResolver) Result {
	if req.ResourceTenantID != "" && req.ResourceTenantID != env.TenantID {
		return deny(GuardLedger, model.DenyTenantMismatch,
			fmt.Sprintf("resource belongs to tenant %s, caller is %s", req.ResourceTenantID, env.TenantID))
	}

	if len(req.AccountIDs) == 0 && len(req.WalletIDs) == 0 {
		return allow()
	}

	scope, ok := scopes.ScopeFor(env.TenantID)
	if !ok {
		// No declared scope blocks everything.
		return deny(GuardLedger, model.DenyAccountOutOfScope,
			fmt.Sprintf("tenant %s has no declared ledger scope", env.TenantID))
	}

	for _, acct := range req.AccountIDs {
		if !scope.AccountInScope(acct) {
			return deny(GuardLedger, model.DenyAccountOutOfScope,
				fmt.Sprintf("account %s not in tenant ledger scope", acct))
		}
	}
	for _, wallet := range req.WalletIDs {
		if !scope.WalletInScope(wallet) {
			return deny(GuardLedger, model.DenyWalletOutOfScope,
				fmt.Sprintf("wallet %s not in tenant ledger scope", wallet))
		}
	}

	return allow()
}
