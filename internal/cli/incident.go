package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/audit"
	"github.com/symphony-fin/trustplane/internal/incident"
	"github.com/symphony-fin/trustplane/internal/recovery"
)

var (
	incidentClass     string
	incidentSeverity  string
	incidentSource    string
	incidentLogPath   string
	incidentStatePath string
)

func init() {
	rootCmd.AddCommand(incidentCmd)
	incidentCmd.Flags().StringVar(&incidentClass, "class", "", "Incident class (SEC-1|SEC-2|OPS-1|OPS-2|REG-1)")
	incidentCmd.Flags().StringVar(&incidentSeverity, "severity", "HIGH", "Severity (CRITICAL|HIGH|MEDIUM|LOW)")
	incidentCmd.Flags().StringVar(&incidentSource, "source", "operator", "Component reporting the incident")
	incidentCmd.Flags().StringVar(&incidentLogPath, "audit-log", "", "Path to the audit log (default ~/.trustplane/audit.jsonl)")
	incidentCmd.Flags().StringVar(&incidentStatePath, "state", "", "Path to recovery state file (default ~/.trustplane/recovery.json)")
	incidentCmd.MarkFlagRequired("class")
}

var incidentCmd = &cobra.Command{
	Use:   "incident <details>",
	Short: "Record an incident signal on the audit chain",
	Long:  "Records the signal and runs automated containment for CRITICAL ones:\na SEC-2 integrity breach engages the global kill switch and drops the\nplatform into LOCKDOWN.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath := incidentLogPath
		if logPath == "" {
			logPath = configPath("audit.jsonl")
		}
		log, err := audit.Open(logPath)
		if err != nil {
			return err
		}
		defer log.Close()

		stateFile := incidentStatePath
		if stateFile == "" {
			stateFile = recovery.DefaultStatePath()
		}
		unlock, err := recovery.LockState(stateFile)
		if err != nil {
			return err
		}
		defer unlock()

		machine, err := recovery.LoadMachine(stateFile)
		if err != nil {
			return err
		}

		sig := incident.NewSignal(
			incident.Class(incidentClass),
			incident.Severity(incidentSeverity),
			incidentSource,
			args[0],
		)
		actions, err := incident.NewResponder(log, machine).Report(sig)
		if err != nil {
			return err
		}
		if len(actions) > 0 {
			if err := recovery.SaveMachine(stateFile, machine); err != nil {
				return err
			}
			for _, action := range actions {
				fmt.Fprintf(os.Stderr, "containment: %s\n", action)
			}
		}

		out, _ := json.MarshalIndent(sig, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}
