// Package ledger holds the structural scope checks the ledger guard runs
// and the interface through which ledger-derived state is queried.
//
// Scope validation here is advisory and preventative only. It never
// computes balances and cannot override enforcement inside the financial
// core; this is defense-in-depth, not dual authority.
package ledger

// Scope is a tenant's declared ledger scope: the accounts and wallets its
// instructions may reference.
type Scope struct {
	TenantID          string   `yaml:"tenant_id" json:"tenantId"`
	AllowedAccountIDs []string `yaml:"allowed_account_ids" json:"allowedAccountIds"`
	AllowedWalletIDs  []string `yaml:"allowed_wallet_ids" json:"allowedWalletIds"`
}

// AccountInScope reports whether accountID is inside the scope.
// Fail-closed: an empty allowed set blocks everything.
func (s Scope) AccountInScope(accountID string) bool {
	return contains(s.AllowedAccountIDs, accountID)
}

// WalletInScope reports whether walletID is inside the scope.
// Fail-closed: an empty allowed set blocks everything.
func (s Scope) WalletInScope(walletID string) bool {
	return contains(s.AllowedWalletIDs, walletID)
}

func contains(set []string, v string) bool {
	if len(set) == 0 {
		return false
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ScopeResolver resolves the declared scope for a tenant.
// Provisioned identity data, external to the core.
type ScopeResolver interface {
	ScopeFor(tenantID string) (Scope, bool)
}

// StaticScopes is a ScopeResolver over a fixed tenant -> scope map.
type StaticScopes map[string]Scope

// ScopeFor implements ScopeResolver.
func (m StaticScopes) ScopeFor(tenantID string) (Scope, bool) {
	s, ok := m[tenantID]
	return s, ok
}
