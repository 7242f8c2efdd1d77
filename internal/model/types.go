package model

// SubjectType classifies the caller behind a request.
type SubjectType string

const (
	SubjectClient  SubjectType = "client"
	SubjectService SubjectType = "service"
	SubjectUser    SubjectType = "user"
)

// Valid reports whether s is one of the closed subject types.
func (s SubjectType) Valid() bool {
	switch s {
	case SubjectClient, SubjectService, SubjectUser:
		return true
	}
	return false
}

// TrustTier classifies how a caller entered the platform.
type TrustTier string

const (
	TierExternal TrustTier = "external"
	TierInternal TrustTier = "internal"
	TierUser     TrustTier = "user"
)

// Decision is the recorded outcome of an authorization or execution event.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionDeny     Decision = "DENY"
	DecisionExecuted Decision = "EXECUTED"
)

// DenyReason is a machine-readable code for a guard denial.
// The set is closed; guards never invent free-form codes.
type DenyReason string

const (
	// Identity guard
	DenyNoContext              DenyReason = "NO_CONTEXT"
	DenyCertUnknown            DenyReason = "CERT_UNKNOWN"
	DenyParticipantInactive    DenyReason = "PARTICIPANT_INACTIVE"
	DenyMissingIngressSequence DenyReason = "MISSING_INGRESS_SEQUENCE"

	// Authorization guard
	DenyOUMismatch        DenyReason = "OU_MISMATCH"
	DenyClientRestricted  DenyReason = "CLIENT_RESTRICTED_CAPABILITY"
	DenySupervisorNonExec DenyReason = "SUPERVISOR_CANNOT_EXECUTE"

	// Policy guard
	DenyAmountExceedsLimit DenyReason = "AMOUNT_EXCEEDS_LIMIT"
	DenyRateLimitExceeded  DenyReason = "RATE_LIMIT_EXCEEDED"
	DenyDailyAggregate     DenyReason = "DAILY_AGGREGATE_EXCEEDED"
	DenyMessageTypeBlocked DenyReason = "MESSAGE_TYPE_NOT_ALLOWED"
	DenyProfileInactive    DenyReason = "PROFILE_INACTIVE"

	// Ledger guard
	DenyAccountOutOfScope DenyReason = "ACCOUNT_OUT_OF_SCOPE"
	DenyWalletOutOfScope  DenyReason = "WALLET_OUT_OF_SCOPE"
	DenyTenantMismatch    DenyReason = "TENANT_MISMATCH"
)
