package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/symphony-fin/trustplane/internal/policy"
)

var (
	watchProfiles string
	watchManifest string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchProfiles, "profiles", "", "Path to policy profiles YAML (default ~/.trustplane/profiles.yaml)")
	watchCmd.Flags().StringVar(&watchManifest, "manifest", "", "Path to the policy-hash manifest (default ~/.trustplane/policy-hashes.json when present)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch policy files and hot-reload the profile store",
	Long:  "Runs the profile hot-reload loop until interrupted. Changed files are\nre-verified against the policy-hash manifest before they replace the\nrunning profiles; an unpinned change keeps the previous profiles.",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := watchProfiles
	if path == "" {
		path = configPath("profiles.yaml")
	}

	manifestFile := watchManifest
	if manifestFile == "" {
		if def := configPath("policy-hashes.json"); fileExists(def) {
			manifestFile = def
		}
	}
	var manifest *policy.Manifest
	if manifestFile != "" {
		m, err := policy.LoadManifest(manifestFile)
		if err != nil {
			return err
		}
		manifest = m
	}

	store, err := loadProfiles(path, manifestFile)
	if err != nil {
		return err
	}

	reloader, err := policy.NewReloader(store, path, manifest)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping profile watcher...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "watching %s (hot-reload enabled)\n", path)
	if manifest != nil {
		fmt.Fprintf(os.Stderr, "manifest: %s (active version %s)\n", manifestFile, manifest.ActivePolicyVersion)
	}
	return reloader.Run(ctx)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
