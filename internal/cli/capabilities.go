package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/capability"
)

var lockPath string

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
	capabilitiesCmd.AddCommand(capabilitiesLockCmd)
	capabilitiesCmd.AddCommand(capabilitiesCheckLockCmd)
	capabilitiesCmd.PersistentFlags().StringVar(&lockPath, "lock", "capabilities.lock.yaml", "Path to the capability lock file")
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Capability catalog operations",
	Long:  "Lists the capability catalog and manages the lock file that pins each\nverb to its owning organizational unit. The catalog itself is code; the\nlock file catches accidental removals or ownership changes at review time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range capability.All() {
			restricted := ""
			if capability.IsClientRestricted(c) {
				restricted = "  [client-restricted]"
			}
			fmt.Printf("%-28s ou=%s%s\n", c, capability.OwnerOf(c), restricted)
		}
		return nil
	},
}

var capabilitiesLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Write the capability lock file from the current catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := capability.WriteLock(lockPath, 1); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d capabilities)\n", lockPath, len(capability.All()))
		return nil
	},
}

var capabilitiesCheckLockCmd = &cobra.Command{
	Use:   "check-lock",
	Short: "Verify the catalog against the lock file",
	Long:  "Fails when a capability present in the lock file was removed from the\ncatalog or reassigned to a different OU. New capabilities are fine;\nregenerate the lock to include them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := capability.CheckLock(lockPath); err != nil {
			return err
		}
		fmt.Println("OK: catalog matches lock")
		return nil
	},
}
