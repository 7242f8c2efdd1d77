package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/identity"
	"github.com/symphony-fin/trustplane/internal/trust"
)

var (
	envVerifyService     string
	envVerifyRegistry    string
	envVerifyEnv         string
	envVerifyFingerprint string
)

func init() {
	rootCmd.AddCommand(envelopeCmd)
	envelopeCmd.AddCommand(envelopeVerifyCmd)
	envelopeVerifyCmd.Flags().StringVar(&envVerifyService, "service", "ingest-api", "Receiving service to verify for")
	envelopeVerifyCmd.Flags().StringVar(&envVerifyRegistry, "registry", "", "Trust registry file (default ~/.trustplane/registry.yaml)")
	envelopeVerifyCmd.Flags().StringVar(&envVerifyEnv, "env", "production", "Deployment environment for registry resolution")
	envelopeVerifyCmd.Flags().StringVar(&envVerifyFingerprint, "fingerprint", "", "Transport-layer certificate fingerprint presented by the caller")
}

var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Identity envelope operations",
}

var envelopeVerifyCmd = &cobra.Command{
	Use:   "verify <envelope.json>",
	Short: "Verify a signed identity envelope",
	Long: "Runs the full envelope verification (structure, freshness, issuer\n" +
		"topology, mTLS binding, signature, registry cross-check) against an\n" +
		"envelope JSON file. The HMAC secret is read from " + identity.EnvelopeKeyVar + ".",
	Args: cobra.ExactArgs(1),
	RunE: runEnvelopeVerify,
}

func runEnvelopeVerify(cmd *cobra.Command, args []string) error {
	key, err := identity.KeyFromEnv()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}
	var env identity.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}

	regPath := envVerifyRegistry
	if regPath == "" {
		regPath = configPath("registry.yaml")
	}
	registry, err := trust.Load(regPath, envVerifyEnv)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	verifier := identity.NewVerifier(envVerifyService, key, registry)
	verified, err := verifier.Verify(env, envVerifyFingerprint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DENY: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(map[string]any{
		"verified":  true,
		"requestId": verified.RequestID,
		"subject":   verified.SubjectID,
		"tenant":    verified.TenantID,
		"tier":      verified.TrustTier,
	}, "", "  ")
	fmt.Println(string(out))
	return nil
}
