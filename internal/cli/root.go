// Package cli wires the trustplane operator commands. Commands act on the
// same stores the guard pipeline reads: the trust registry, policy
// profiles, the attestation store, the audit chain, and the recovery
// state machine.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/integrity"
)

var rootCmd = &cobra.Command{
	Use:   "trustplane",
	Short: "Trust and authorization core for payment orchestration",
	Long:  "Decides which caller may perform which operation on which resource.\nEvery decision is committed to a hash-chained audit log; denial is the\ndefault for anything unrecognized.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := integrity.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath resolves a file under ~/.trustplane, falling back to the
// bare name when the home directory cannot be determined.
func configPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".trustplane", name)
}
