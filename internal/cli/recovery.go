package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/recovery"
)

var (
	recoveryStatePath  string
	recoveryLogPath    string
	transitionMode     string
	transitionActor    string
	transitionIncident string
)

func init() {
	rootCmd.AddCommand(recoveryCmd)
	recoveryCmd.PersistentFlags().StringVar(&recoveryStatePath, "state", "", "Path to recovery state file (default ~/.trustplane/recovery.json)")
	recoveryCmd.AddCommand(recoveryStatusCmd)
	recoveryCmd.AddCommand(recoveryTransitionCmd)
	recoveryTransitionCmd.Flags().StringVar(&recoveryLogPath, "audit-log", "", "Path to the active audit log (default ~/.trustplane/audit.jsonl)")
	recoveryTransitionCmd.Flags().StringVar(&transitionMode, "mode", "", "Target mode (LOCKDOWN|READ_ONLY|CONTROL_ONLY|FULL_OPERATIONAL)")
	recoveryTransitionCmd.Flags().StringVar(&transitionActor, "actor", "", "Actor authorizing the transition")
	recoveryTransitionCmd.Flags().StringVar(&transitionIncident, "incident", "", "Incident this transition responds to")
	recoveryTransitionCmd.MarkFlagRequired("mode")
	recoveryTransitionCmd.MarkFlagRequired("actor")
}

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Operating mode state machine",
	Long:  "Inspect and advance the platform operating mode. The platform boots in\nLOCKDOWN; entering FULL_OPERATIONAL requires two distinct actors, and any\ntransition out of LOCKDOWN first verifies the audit chain.",
}

var recoveryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current operating mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		machine, err := recovery.LoadMachine(statePath())
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(machine.State(), "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var recoveryTransitionCmd = &cobra.Command{
	Use:   "transition",
	Short: "Request an operating mode transition",
	RunE:  runRecoveryTransition,
}

func runRecoveryTransition(cmd *cobra.Command, args []string) error {
	// Each vote is its own process; the state lock serializes the whole
	// load-transition-save cycle so no vote overwrites another.
	unlock, err := recovery.LockState(statePath())
	if err != nil {
		return err
	}
	defer unlock()

	machine, err := recovery.LoadMachine(statePath())
	if err != nil {
		return err
	}

	logPath := recoveryLogPath
	if logPath == "" {
		logPath = configPath("audit.jsonl")
	}
	gate := recovery.NewGate(machine, logPath)

	committed, err := gate.Transition(recovery.Mode(transitionMode), transitionActor, transitionIncident)
	if err != nil {
		var integrityErr *recovery.IntegrityError
		if errors.As(err, &integrityErr) {
			fmt.Fprintf(os.Stderr, "REFUSED: %v\n", err)
			fmt.Fprintf(os.Stderr, "The platform stays in %s until the chain is repaired from backup.\n", machine.Mode())
			os.Exit(1)
		}
		return err
	}

	if err := recovery.SaveMachine(statePath(), machine); err != nil {
		return err
	}

	if committed {
		fmt.Printf("committed: now in %s\n", machine.Mode())
		return nil
	}
	fmt.Printf("pending: vote by %s recorded, a second distinct actor must confirm\n", transitionActor)
	return nil
}

func statePath() string {
	if recoveryStatePath != "" {
		return recoveryStatePath
	}
	return recovery.DefaultStatePath()
}
