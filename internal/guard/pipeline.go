package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/symphony-fin/trustplane/internal/attestation"
	"github.com/symphony-fin/trustplane/internal/audit"
	"github.com/symphony-fin/trustplane/internal/capability"
	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/ledger"
	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/policy"
	"github.com/symphony-fin/trustplane/internal/trust"
)

// Request describes one capability invocation to evaluate.
type Request struct {
	Capability capability.Capability

	// Resource is the instruction/provider/account the action touches.
	Resource string

	// Declared transaction metadata, consumed by the policy guard.
	TransactionAmount string // decimal string, empty when not a transaction
	MessageType       string

	// Ledger references, consumed by the ledger guard.
	AccountIDs       []string
	WalletIDs        []string
	ResourceTenantID string
}

// Pipeline evaluates requests for one service boundary. All dependencies
// are read-mostly shared state; per-request state lives on the context.
type Pipeline struct {
	service      string
	registry     *trust.Registry
	profiles     *policy.Store
	tracker      *policy.Tracker
	attestations *attestation.Store
	scopes       ledger.ScopeResolver
	log          *audit.Log
}

// Config wires a Pipeline. Every field is required except Scopes, which
// defaults to an empty resolver (everything out of scope, fail closed).
type Config struct {
	Service      string
	Registry     *trust.Registry
	Profiles     *policy.Store
	Tracker      *policy.Tracker
	Attestations *attestation.Store
	Scopes       ledger.ScopeResolver
	Log          *audit.Log
}

// NewPipeline creates a Pipeline for the given service boundary.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Service == "" {
		return nil, errors.New("guard: service name is required")
	}
	if cfg.Registry == nil || cfg.Profiles == nil || cfg.Log == nil {
		return nil, errors.New("guard: registry, profiles, and audit log are required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = policy.NewTracker()
	}
	if cfg.Scopes == nil {
		cfg.Scopes = ledger.StaticScopes{}
	}
	return &Pipeline{
		service:      cfg.Service,
		registry:     cfg.Registry,
		profiles:     cfg.Profiles,
		tracker:      cfg.Tracker,
		attestations: cfg.Attestations,
		scopes:       cfg.Scopes,
		log:          cfg.Log,
	}, nil
}

// denyEvents maps the guard that produced a deny to its audit event type.
var denyEvents = map[string]audit.EventType{
	GuardIdentity:      audit.EventGuardIdentityDeny,
	GuardAuthorization: audit.EventGuardAuthorizationDeny,
	GuardPolicy:        audit.EventGuardPolicyDeny,
	GuardLedger:        audit.EventGuardLedgerScopeDeny,
}

// Evaluate runs the full pipeline for the request in the identity scope
// bound to ctx. The returned Result is the decision; err is reserved for
// invariant violations (unknown capability, audit substrate failure) that
// indicate a programming or platform error, not an ordinary deny.
//
// Every outcome, allow or deny, is committed to the audit chain before
// Evaluate returns. On deny the caller must not perform the side effect.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (Result, error) {
	if !capability.Known(req.Capability) {
		return Result{}, fmt.Errorf("guard: unknown capability %q", req.Capability)
	}

	env, err := identity.FromContext(ctx)
	if err != nil {
		// No envelope: nothing verified about the caller. Audit what we
		// know and deny at the identity guard.
		res := deny(GuardIdentity, model.DenyNoContext, "no identity scope established")
		if aerr := p.record(identity.Envelope{}, req, res); aerr != nil {
			return Result{}, aerr
		}
		return res, nil
	}

	if res := checkIdentity(env, req.Capability, p.registry, p.attestations); !res.Allowed {
		return p.finish(env, req, res)
	}

	if res := checkAuthorization(env, req.Capability, p.callerOU(env)); !res.Allowed {
		return p.finish(env, req, res)
	}

	if res := checkPolicy(env, req, p.profiles, p.tracker, time.Now().UTC()); !res.Allowed {
		return p.finish(env, req, res)
	}

	if res := checkLedger(env, req, p.scopes); !res.Allowed {
		return p.finish(env, req, res)
	}

	return p.finish(env, req, allow())
}

// callerOU resolves the caller's organizational unit. Service subjects
// resolve through the trust registry; clients and users act at the service
// boundary they entered.
func (p *Pipeline) callerOU(env identity.Envelope) string {
	if env.SubjectType == model.SubjectService {
		if claims, ok := p.registry.Resolve(env.CertFingerprint); ok {
			return claims.OU
		}
	}
	return p.service
}

func (p *Pipeline) finish(env identity.Envelope, req Request, res Result) (Result, error) {
	if err := p.record(env, req, res); err != nil {
		// Audit substrate failure: fail closed, the action must not run
		// without its record.
		return Result{}, err
	}
	return res, nil
}

func (p *Pipeline) record(env identity.Envelope, req Request, res Result) error {
	ev := audit.Event{
		RequestID: env.RequestID,
		TenantID:  env.TenantID,
		Subject: audit.Subject{
			Type:            env.SubjectType,
			ID:              env.SubjectID,
			OU:              p.service,
			CertFingerprint: env.CertFingerprint,
		},
		Action: &audit.Action{
			Capability: string(req.Capability),
			Resource:   req.Resource,
		},
		PolicyVersion: env.PolicyVersion,
	}

	if res.Allowed {
		ev.Type = audit.EventAuthzAllow
		ev.Decision = model.DecisionAllow
	} else {
		ev.Type = denyEvents[res.Guard]
		if res.Reason == model.DenyParticipantInactive {
			ev.Type = audit.EventParticipantStatusDeny
		}
		ev.Decision = model.DecisionDeny
		ev.Reason = string(res.Reason)
		if res.Details != "" {
			ev.Reason = fmt.Sprintf("%s: %s", res.Reason, res.Details)
		}
	}

	if _, err := p.log.Append(ev); err != nil {
		return fmt.Errorf("guard: audit append failed, operation aborted: %w", err)
	}
	return nil
}
