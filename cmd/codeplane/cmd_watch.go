package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch the repository and keep the index warm",
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

		if _, err := a.ep.RecoverAll(); err != nil {
			return fmt.Errorf("recover incomplete epochs: %w", err)
		}

		if _, err := a.coord.RunCycle(context.Background(), repoRoot, nil); err != nil {
			return fmt.Errorf("initial index cycle failed: %w", err)
		}

		prunable := make(map[string]bool, len(prunableDirs))
		for _, d := range prunableDirs {
			prunable[d] = true
		}
		if err := a.watch.Start(prunable); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Println("watching for changes, press ctrl-c to stop")
		err = a.coord.RunWatchLoop(ctx, repoRoot)
		a.watch.Stop()
		if err == context.Canceled {
			return nil
		}
		return err
	},
}
