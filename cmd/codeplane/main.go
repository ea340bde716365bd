// Package main implements the codeplane CLI: an incremental code
// intelligence core exposing index/watch/query/diff/refactor subcommands
// over a repository-local store.
//
// Entry point & command registration live here; each subcommand's
// implementation lives in its own cmd_*.go file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeplane/internal/config"
)

var (
	verbose    bool
	workspace  string
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codeplane",
	Short: "codeplane - incremental code intelligence core",
	Long: `codeplane indexes a repository's structure incrementally and answers
bounded queries over it: fact lookups, semantic diff, import-graph reverse
queries, and refactor preview/apply.

It keeps a repository-local store under .codeplane/ and a watcher that
reindexes on change; run "codeplane watch" to keep it warm, or
"codeplane index" for a one-shot run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (default: <workspace>/.codeplane/config.yaml)")

	rootCmd.AddCommand(indexCmd, watchCmd, queryCmd, diffCmd, refactorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	ws := workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return "", err
		}
		return ws, nil
	}
	return filepath.Abs(ws)
}

func loadConfig(repoRoot string) (config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(repoRoot, ".codeplane", "config.yaml")
	}
	return config.Load(path)
}
