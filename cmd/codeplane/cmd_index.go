package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "run one reconcile -> index -> resolve -> publish cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoRoot)
		if err != nil {
			return err
		}
		a, err := newApp(repoRoot, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if rebuild, err := a.ep.RecoverAll(); err != nil {
			return fmt.Errorf("recover incomplete epochs: %w", err)
		} else if rebuild {
			logger.Sugar().Warn("lexical index desynced from a prior crash, reindex will rebuild it")
		}

		result, err := a.coord.RunCycle(context.Background(), repoRoot, args)
		if err != nil {
			return fmt.Errorf("index cycle failed: %w", err)
		}

		fmt.Printf("reconciled: %d checked, %d added, %d modified, %d removed\n",
			result.Reconcile.FilesChecked, result.Reconcile.FilesAdded,
			result.Reconcile.FilesModified, result.Reconcile.FilesRemoved)
		fmt.Printf("indexed: %d files, %d parse errors, %d skipped (no grammar)\n",
			result.Indexed.FilesIndexed, len(result.Indexed.ParseErrors), len(result.Indexed.Skipped))
		fmt.Printf("resolved: %d imports, %d type-traced, %d config-refs, %d shapes matched\n",
			result.Resolved.ImportsResolved, result.Resolved.TypeTraceResolved,
			result.Resolved.ConfigRefsResolved, result.Resolved.ShapeStats.ShapesMatched)
		fmt.Printf("published epoch %d (%d files)\n", result.Epoch.EpochID, result.Epoch.FilesIndexed)
		if len(result.Unrouted) > 0 {
			fmt.Printf("%d files could not be routed to a context\n", len(result.Unrouted))
		}
		return nil
	},
}
