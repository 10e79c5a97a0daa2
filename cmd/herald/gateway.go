package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"herald/internal/channel"
	"herald/internal/metrics"
	"herald/internal/scheduler"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start chat channels and feed loops",
		Long:  "Starts every enabled channel (Telegram, Discord), the feed posting loops and the metrics endpoint. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.generator.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", a.generator.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", a.generator.Name())
	}

	sup := scheduler.NewSupervisor(logger)

	if cfg.Channels.Telegram.Enabled {
		tg := channel.NewTelegram(channel.TelegramConfig{Token: cfg.Channels.Telegram.Token, Logger: logger})
		h := a.handler(tg, tg, cfg.Telegram())
		sup.Add("telegram", scheduler.RunnerFunc(func(ctx context.Context) error {
			return tg.Start(ctx, h)
		}))
	}

	if cfg.Channels.Discord.Enabled {
		dc := channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		})
		h := a.handler(dc, dc, cfg.Discord())
		sup.Add("discord", scheduler.RunnerFunc(func(ctx context.Context) error {
			return dc.Start(ctx, h)
		}))
	}

	if cfg.Channels.Feed.Enabled {
		for _, s := range a.schedulers(a.newFeed()) {
			sup.Add("feed-"+s.Name(), s)
		}
	}

	if sup.Len() == 0 {
		return errors.New("nothing to run: enable at least one of channels.telegram, channels.discord, channels.feed")
	}

	if cfg.Metrics.Enabled {
		sup.Add("metrics", scheduler.RunnerFunc(func(ctx context.Context) error {
			return metrics.Serve(ctx, cfg.Metrics.Addr, logger)
		}))
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "loops", sup.Len(), "agent", a.character.Name)
	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
