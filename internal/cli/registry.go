package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/trust"
)

var (
	registryPath string
	registryEnv  string
)

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "Path to registry YAML (default ~/.trustplane/registry.yaml)")
	registryCmd.PersistentFlags().StringVar(&registryEnv, "env", "production", "Environment the registry is scoped to")
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryResolveCmd)
	registryCmd.AddCommand(registryRevokeCmd)
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Trust registry operations",
	Long:  "Inspect and revoke certificate fingerprints in the provisioned trust\nregistry. Registration happens at certificate issuance, never here.",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered service certificates",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		claims := reg.List()
		sort.Slice(claims, func(i, j int) bool { return claims[i].Fingerprint < claims[j].Fingerprint })
		for _, c := range claims {
			marker := " "
			if reg.IsRevoked(c.Fingerprint) {
				marker = "R"
			}
			fmt.Printf("%s %s  %-18s ou=%s env=%s\n", marker, c.Fingerprint, c.ServiceName, c.OU, c.Env)
		}
		return nil
	},
}

var registryResolveCmd = &cobra.Command{
	Use:   "resolve <fingerprint>",
	Short: "Resolve a fingerprint to its service claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		claims, ok := reg.Resolve(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "DENY: fingerprint unknown or revoked\n")
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var registryRevokeCmd = &cobra.Command{
	Use:   "revoke <fingerprint>",
	Short: "Revoke a certificate fingerprint",
	Long:  "Adds the fingerprint to the registry's revoked list. Revocation is\npermanent: re-enabling a service requires issuing a new certificate.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := registryPath
		if path == "" {
			path = configPath("registry.yaml")
		}
		if err := trust.AppendRevocation(path, args[0]); err != nil {
			return err
		}
		fmt.Printf("revoked %s\n", trust.NormalizeFingerprint(args[0]))
		return nil
	},
}

func loadRegistry() (*trust.Registry, error) {
	return trust.Load(registryPath, registryEnv)
}
