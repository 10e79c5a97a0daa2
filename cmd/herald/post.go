package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"herald/internal/cache"
)

func postCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:       "post [post|tag]",
		Short:     "Run one feed action now, ignoring the schedule",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{cache.ActionPost, cache.ActionTag},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := cache.ActionPost
			if len(args) == 1 {
				action = args[0]
			}
			if action != cache.ActionPost && action != cache.ActionTag {
				return fmt.Errorf("unknown action %q (want post or tag)", action)
			}

			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()
			if cfg.Channels.Feed.Username == "" {
				return fmt.Errorf("channels.feed.username is not set")
			}
			if dryRun {
				cfg.Channels.Feed.DryRun = true
			}
			// The tag loop is built only when enabled; a manual tag run implies it.
			if action == cache.ActionTag {
				cfg.Channels.Feed.Tag.Enabled = true
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, s := range a.schedulers(a.newFeed()) {
				if s.Name() != action {
					continue
				}
				res, _ := s.Tick(ctx, true)
				logger.Info("feed action finished", "action", action, "result", res, "dry_run", cfg.Channels.Feed.DryRun)
				return nil
			}
			return fmt.Errorf("no loop for action %q", action)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate without publishing")
	return cmd
}
