// Package main implements healctl, the command-line entry point around the
// self-healing retry loop.
//
// Grounded on the teacher's cmd/nerd/main.go: a cobra root command with
// persistent flags, a zap logger built in PersistentPreRunE and synced in
// PersistentPostRun, plus the internal categorized file logger initialized
// against the workspace directory.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/logging"
)

var (
	verbose      bool
	workspace    string
	policyPath   string
	policyPreset string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "healctl",
	Short: "healctl - self-healing patch retry control loop",
	Long: `healctl drives one patch through the full error-class circuit breaker,
confidence scorer, sandbox, and re-banker verification loop, producing a
tamper-evident patch envelope as its result.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "path to a policy YAML file (default: built-in preset)")
	rootCmd.PersistentFlags().StringVar(&policyPreset, "preset", "mid_tier", "policy preset when --policy is unset: sota | mid_tier | local_small")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() string {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
		return ws
	}
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}
