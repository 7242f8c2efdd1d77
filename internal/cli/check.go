package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/attestation"
	"github.com/symphony-fin/trustplane/internal/audit"
	"github.com/symphony-fin/trustplane/internal/capability"
	"github.com/symphony-fin/trustplane/internal/guard"
	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/incident"
	"github.com/symphony-fin/trustplane/internal/model"
)

var (
	checkService     string
	checkSubjectType string
	checkSubjectID   string
	checkTenant      string
	checkPolicyVer   string
	checkFingerprint string
	checkCapability  string
	checkResource    string
	checkAmount      string
	checkMsgType     string
	checkAccounts    []string
	checkWallets     []string
	checkResTenant   string
	checkRequestID   string
	checkProfiles    string
	checkManifest    string
	checkAuditLog    string
	checkAttestDir   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	f := checkCmd.Flags()
	f.StringVar(&checkService, "service", "control-plane", "Service boundary the request arrives at")
	f.StringVar(&checkSubjectType, "subject-type", "service", "Caller type (client|service|user)")
	f.StringVar(&checkSubjectID, "subject", "", "Caller identifier (required)")
	f.StringVar(&checkTenant, "tenant", "", "Caller tenant (required)")
	f.StringVar(&checkPolicyVer, "policy-version", "", "Policy profile version pinned to the caller")
	f.StringVar(&checkFingerprint, "fingerprint", "", "Certificate fingerprint for service callers")
	f.StringVar(&checkCapability, "capability", "", "Capability verb to evaluate (required)")
	f.StringVar(&checkResource, "resource", "", "Resource the action touches")
	f.StringVar(&checkAmount, "amount", "", "Transaction amount, decimal string")
	f.StringVar(&checkMsgType, "message-type", "", "Payment message type")
	f.StringSliceVar(&checkAccounts, "account", nil, "Account the action references (repeatable)")
	f.StringSliceVar(&checkWallets, "wallet", nil, "Wallet the action references (repeatable)")
	f.StringVar(&checkResTenant, "resource-tenant", "", "Tenant owning the referenced resource")
	f.StringVar(&checkRequestID, "request-id", "", "Request ID (defaults to a fresh UUID)")
	f.StringVar(&checkProfiles, "profiles", "", "Path to policy profiles YAML (default ~/.trustplane/profiles.yaml)")
	f.StringVar(&checkManifest, "policy-manifest", "", "Path to the policy-hash manifest (default ~/.trustplane/policy-hashes.json when present)")
	f.StringVar(&checkAuditLog, "audit-log", "", "Path to the audit log (default ~/.trustplane/audit.jsonl)")
	f.StringVar(&checkAttestDir, "attest-dir", "", "Attestation store directory (default ~/.trustplane/attest)")
	checkCmd.MarkFlagRequired("subject")
	checkCmd.MarkFlagRequired("tenant")
	checkCmd.MarkFlagRequired("capability")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one request through the guard pipeline",
	Long: "Builds an identity envelope from flags, runs it through the four-stage\n" +
		"guard pipeline against the local registry, profiles, and attestation\n" +
		"store, and prints the decision. The outcome is committed to the audit\n" +
		"chain exactly as a live decision would be.\n\n" +
		"Exit code 0 on ALLOW, 1 on DENY.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	subjectType := model.SubjectType(checkSubjectType)
	if !subjectType.Valid() {
		return fmt.Errorf("unknown subject type %q", checkSubjectType)
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	profiles, err := loadProfiles(checkProfiles, checkManifest)
	if err != nil {
		return err
	}
	attestDir := checkAttestDir
	if attestDir == "" {
		attestDir = attestation.DefaultDir()
	}
	attestations, err := attestation.NewStore(attestDir)
	if err != nil {
		return err
	}
	logPath := checkAuditLog
	if logPath == "" {
		logPath = configPath("audit.jsonl")
	}
	log, err := audit.Open(logPath)
	if err != nil {
		return err
	}
	defer log.Close()

	pipeline, err := guard.NewPipeline(guard.Config{
		Service:      checkService,
		Registry:     reg,
		Profiles:     profiles,
		Attestations: attestations,
		Log:          log,
	})
	if err != nil {
		return err
	}

	requestID := checkRequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	// The envelope is built directly from flags: check is an operator
	// dry-run against local state, not a transport endpoint, so there is
	// no wire signature to verify here.
	env := identity.Envelope{
		Version:         "v1",
		RequestID:       requestID,
		IssuedAt:        time.Now().UTC().Format(time.RFC3339),
		IssuerService:   checkService,
		SubjectType:     subjectType,
		SubjectID:       checkSubjectID,
		TenantID:        checkTenant,
		PolicyVersion:   checkPolicyVer,
		TrustTier:       tierFor(subjectType),
		CertFingerprint: checkFingerprint,
	}

	ctx := identity.WithEnvelope(context.Background(), env)
	result, err := pipeline.Evaluate(ctx, guard.Request{
		Capability:        capability.Capability(checkCapability),
		Resource:          checkResource,
		TransactionAmount: checkAmount,
		MessageType:       checkMsgType,
		AccountIDs:        checkAccounts,
		WalletIDs:         checkWallets,
		ResourceTenantID:  checkResTenant,
	})
	if err != nil {
		// Pipeline failures carry internal detail (store paths, chain
		// state); only the sanitized form crosses the CLI boundary.
		return incident.Sanitize(err, "guard pipeline")
	}

	out, _ := json.MarshalIndent(map[string]any{
		"allowed": result.Allowed,
		"guard":   result.Guard,
		"reason":  result.Reason,
		"details": result.Details,
	}, "", "  ")
	fmt.Println(string(out))

	if !result.Allowed {
		os.Exit(1)
	}
	return nil
}

func tierFor(st model.SubjectType) model.TrustTier {
	switch st {
	case model.SubjectService:
		return model.TierInternal
	case model.SubjectUser:
		return model.TierUser
	default:
		return model.TierExternal
	}
}
