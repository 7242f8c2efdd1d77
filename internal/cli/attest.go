package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/attestation"
)

var (
	attestDir    string
	attestCaller string
)

func init() {
	rootCmd.AddCommand(attestCmd)
	attestCmd.PersistentFlags().StringVar(&attestDir, "dir", "", "Attestation store directory (default ~/.trustplane/attest)")
	attestCmd.AddCommand(attestRecordCmd)
	attestCmd.AddCommand(attestLookupCmd)
	attestRecordCmd.Flags().StringVar(&attestCaller, "caller", "", "Caller recording the ingress")
	attestRecordCmd.MarkFlagRequired("caller")
}

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Ingress attestation store operations",
	Long:  "Records and looks up ingress sequence attestations. Execution verbs are\nrefused unless the request was attested at ingress first.",
}

var attestRecordCmd = &cobra.Command{
	Use:   "record <request-id>",
	Short: "Attest that a request entered through ingress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attestation.NewStore(resolveAttestDir())
		if err != nil {
			return err
		}
		rec, err := store.Attest(args[0], attestCaller)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var attestLookupCmd = &cobra.Command{
	Use:   "lookup <request-id>",
	Short: "Look up an ingress attestation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attestation.NewStore(resolveAttestDir())
		if err != nil {
			return err
		}
		rec, ok := store.Lookup(args[0])
		if !ok {
			fmt.Fprintln(os.Stderr, "no valid attestation for request")
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func resolveAttestDir() string {
	if attestDir != "" {
		return attestDir
	}
	return attestation.DefaultDir()
}
