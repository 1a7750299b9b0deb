package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/config"
)

// watchCmd live-reloads a policy file and reports every reload to stdout
// as it happens. Grounded on internal/config/watcher.go's fsnotify-backed
// hot reload (itself grounded on the teacher's MangleWatcher): this
// subcommand exists purely to exercise and observe that mechanism from
// the command line, since healctl run wraps its own Session per-invocation
// and never reloads an already-running one.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch a policy file and print its contents each time it reloads",
	Long: `watch keeps a config.Watcher running against --policy, printing the
resolved policy as JSON on startup and again after every debounced reload.
Exits on SIGINT/SIGTERM.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if policyPath == "" {
		return fmt.Errorf("watch requires --policy <file>")
	}

	out := cmd.OutOrStdout()
	print := func(p config.Policy) {
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to marshal policy: %v\n", err)
			return
		}
		fmt.Fprintf(out, "%s\n", b)
	}

	w, err := config.NewWatcher(policyPath, print)
	if err != nil {
		return fmt.Errorf("open watcher: %w", err)
	}
	print(w.Current())

	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}
