package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/symphony-fin/trustplane/internal/model"
	"github.com/symphony-fin/trustplane/internal/participant"
	"github.com/symphony-fin/trustplane/internal/trust"
)

const (
	// ClockSkew is the tolerated clock drift between issuer and verifier.
	ClockSkew = 30 * time.Second
	// MaxEnvelopeAge is the maximum accepted age of an envelope before
	// re-authentication is required.
	MaxEnvelopeAge = 5 * time.Minute
)

// defaultAllowedIssuers is the OU interaction graph: which issuer services
// each receiving service accepts envelopes from. Default deny: a service
// not listed here accepts no issuers.
var defaultAllowedIssuers = map[string][]string{
	"control-plane":   {"client", "ingest-api"},
	"ingest-api":      {"client", "ingest-api"},
	"executor-worker": {"control-plane"},
	"read-api":        {"executor-worker"},
}

// userEntrypoints are the only services at which a user-subject envelope is
// valid; user envelopes are wrapped by the ingest boundary.
var userEntrypoints = map[string]bool{"ingest-api": true}

// EnvelopeKeyVar names the environment variable holding the shared
// envelope HMAC secret.
const EnvelopeKeyVar = "TRUSTPLANE_ENVELOPE_KEY"

// KeyFromEnv reads the envelope HMAC secret from the environment.
// A missing or empty secret is a startup error, never a degraded mode.
func KeyFromEnv() ([]byte, error) {
	key := os.Getenv(EnvelopeKeyVar)
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("identity: %s is not set", EnvelopeKeyVar)
	}
	return []byte(key), nil
}

// Verifier validates identity envelopes for one receiving service.
// Replay state is per-verifier; verifiers are safe for concurrent use.
type Verifier struct {
	service        string
	key            []byte
	registry       *trust.Registry
	allowedIssuers map[string][]string

	mu   sync.Mutex
	seen map[string]time.Time // requestId -> expiry
}

// NewVerifier creates a Verifier for the given receiving service.
// key is the shared envelope HMAC secret; registry backs the mTLS
// fingerprint cross-check for service subjects.
func NewVerifier(service string, key []byte, registry *trust.Registry) *Verifier {
	return &Verifier{
		service:        service,
		key:            key,
		registry:       registry,
		allowedIssuers: defaultAllowedIssuers,
		seen:           make(map[string]time.Time),
	}
}

// signedPayload is the canonical byte layout the signature covers.
// Field order is fixed; roles are sorted. Participant fields are bound for
// user subjects only.
type signedPayload struct {
	CertFingerprint   *string            `json:"certFingerprint"`
	IssuedAt          string             `json:"issuedAt"`
	IssuerService     string             `json:"issuerService"`
	ParticipantID     string             `json:"participantId,omitempty"`
	ParticipantRole   participant.Role   `json:"participantRole,omitempty"`
	ParticipantStatus participant.Status `json:"participantStatus,omitempty"`
	PolicyVersion     string             `json:"policyVersion"`
	RequestID         string             `json:"requestId"`
	Roles             []string           `json:"roles"`
	SubjectID         string             `json:"subjectId"`
	SubjectType       model.SubjectType  `json:"subjectType"`
	TenantID          string             `json:"tenantId"`
	TrustTier         model.TrustTier    `json:"trustTier"`
	Version           string             `json:"version"`
}

func canonicalPayload(env Envelope) ([]byte, error) {
	roles := make([]string, 0, len(env.Roles))
	for _, r := range env.Roles {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, r)
		}
	}
	sort.Strings(roles)

	p := signedPayload{
		IssuedAt:      strings.TrimSpace(env.IssuedAt),
		IssuerService: strings.TrimSpace(env.IssuerService),
		PolicyVersion: strings.TrimSpace(env.PolicyVersion),
		RequestID:     strings.TrimSpace(env.RequestID),
		Roles:         roles,
		SubjectID:     strings.TrimSpace(env.SubjectID),
		SubjectType:   env.SubjectType,
		TenantID:      strings.TrimSpace(env.TenantID),
		TrustTier:     env.TrustTier,
		Version:       env.Version,
	}

	// Null canonicalization: only service subjects bind a fingerprint.
	if env.SubjectType == model.SubjectService {
		fp := trust.NormalizeFingerprint(env.CertFingerprint)
		p.CertFingerprint = &fp
	}

	if env.SubjectType == model.SubjectUser {
		p.ParticipantID = strings.TrimSpace(env.ParticipantID)
		p.ParticipantRole = env.ParticipantRole
		p.ParticipantStatus = env.ParticipantStatus
	}

	return json.Marshal(p)
}

// Sign computes the envelope signature with the given key. Used by issuers
// and by tests; verification uses the same canonical payload.
func Sign(env Envelope, key []byte) (string, error) {
	payload, err := canonicalPayload(env)
	if err != nil {
		return "", fmt.Errorf("identity: canonical payload: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify validates an envelope presented to this service along with the
// transport-layer certificate fingerprint (empty when the caller presented
// no client certificate). It returns the validated envelope, ready for
// WithEnvelope, or an error on any violation. Fail-closed throughout.
//
// Order: structural checks, freshness and replay, OU topology, mTLS
// binding, signature (the expensive step, last), registry cross-check.
func (v *Verifier) Verify(env Envelope, transportFingerprint string) (Envelope, error) {
	if env.Version != "v1" {
		return Envelope{}, fmt.Errorf("identity: unsupported envelope version %q", env.Version)
	}
	if !env.SubjectType.Valid() {
		return Envelope{}, fmt.Errorf("identity: invalid subject type %q", env.SubjectType)
	}
	if env.RequestID == "" || env.SubjectID == "" || env.TenantID == "" {
		return Envelope{}, fmt.Errorf("identity: envelope missing required fields")
	}

	issuedAt, err := time.Parse(time.RFC3339, env.IssuedAt)
	if err != nil {
		return Envelope{}, fmt.Errorf("identity: invalid issuedAt: %w", err)
	}
	now := time.Now().UTC()
	if now.Sub(issuedAt) > MaxEnvelopeAge+ClockSkew {
		return Envelope{}, fmt.Errorf("identity: envelope too old - re-authentication required")
	}
	if issuedAt.After(now.Add(ClockSkew)) {
		return Envelope{}, fmt.Errorf("identity: envelope issued in the future")
	}
	if err := v.checkReplay(env.RequestID, now); err != nil {
		return Envelope{}, err
	}

	if env.SubjectType == model.SubjectUser {
		if !userEntrypoints[v.service] {
			return Envelope{}, fmt.Errorf("identity: user identity not permitted at %s", v.service)
		}
		if env.TrustTier != model.TierUser {
			return Envelope{}, fmt.Errorf("identity: user identity has non-user trust tier %q", env.TrustTier)
		}
		if transportFingerprint != "" {
			return Envelope{}, fmt.Errorf("identity: user identity must not present mTLS proof")
		}
		if strings.TrimSpace(env.ParticipantID) == "" {
			return Envelope{}, fmt.Errorf("identity: user identity missing participantId anchor")
		}
	}

	allowed, ok := v.allowedIssuers[v.service]
	if !ok {
		return Envelope{}, fmt.Errorf("identity: %s has no allowed issuers configured (default deny)", v.service)
	}
	if !issuerAllowed(allowed, env) {
		return Envelope{}, fmt.Errorf("identity: issuer not allowed at %s", v.service)
	}

	if env.SubjectType == model.SubjectService {
		if transportFingerprint == "" {
			return Envelope{}, fmt.Errorf("identity: service calls require mTLS proof")
		}
		if env.CertFingerprint == "" {
			return Envelope{}, fmt.Errorf("identity: service envelope missing certFingerprint binding")
		}
		if trust.NormalizeFingerprint(env.CertFingerprint) != trust.NormalizeFingerprint(transportFingerprint) {
			return Envelope{}, fmt.Errorf("identity: certFingerprint mismatch between transport and envelope")
		}
	}

	expected, err := Sign(env, v.key)
	if err != nil {
		return Envelope{}, err
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return Envelope{}, fmt.Errorf("identity: invalid signature encoding")
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(sig, want) {
		return Envelope{}, fmt.Errorf("identity: invalid envelope signature")
	}

	if env.SubjectType == model.SubjectService && v.registry != nil {
		claims, ok := v.registry.Resolve(env.CertFingerprint)
		if !ok {
			return Envelope{}, fmt.Errorf("identity: certificate not resolvable in trust registry")
		}
		if claims.ServiceName != env.IssuerService {
			return Envelope{}, fmt.Errorf("identity: certificate identity (%s) mismatch with claim (%s)", claims.ServiceName, env.IssuerService)
		}
	}

	return env.clone(), nil
}

func issuerAllowed(allowed []string, env Envelope) bool {
	for _, a := range allowed {
		if a == env.IssuerService {
			return true
		}
		// Initial client requests enter where "client" is listed.
		if a == "client" && env.SubjectType == model.SubjectClient {
			return true
		}
	}
	return false
}

// checkReplay rejects a requestId seen inside the validity window.
func (v *Verifier) checkReplay(requestID string, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for id, expiry := range v.seen {
		if now.After(expiry) {
			delete(v.seen, id)
		}
	}
	if _, dup := v.seen[requestID]; dup {
		return fmt.Errorf("identity: replay detected for requestId %s", requestID)
	}
	v.seen[requestID] = now.Add(MaxEnvelopeAge + ClockSkew)
	return nil
}
