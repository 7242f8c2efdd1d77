package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/audit"
)

var (
	tailLines int
	exportOut string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent records to show")
	auditExportCmd.Flags().StringVar(&exportOut, "out", "evidence-bundle.json", "Output path for the evidence bundle")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit chain operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and recomputes every record's hash over its\ncanonical form plus the previous hash. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit records",
	Long:  "Reads the last N records from the JSONL audit log and pretty-prints them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export an evidence bundle from the audit log",
	Long:  "Verifies the chain, copies every record into a hashed evidence bundle,\nand commits the export itself to the chain as EVIDENCE_EXPORT.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditExport,
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	log, err := audit.Open(args[0])
	if err != nil {
		return err
	}
	defer log.Close()

	meta, err := log.Export(exportOut)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(meta, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d records verified\n", result.Records)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at record %d: %s\n", result.ViolationIndex, result.Reason)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	start := len(lines) - tailLines
	if start < 0 {
		start = 0
	}

	for _, line := range lines[start:] {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			fmt.Println(line)
			continue
		}
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))
	}

	return nil
}
