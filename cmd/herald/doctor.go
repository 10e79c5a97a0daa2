package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/cache"
	"herald/internal/config"
	"herald/internal/memory"
	"herald/internal/persona"
	"herald/internal/provider"
)

// doctorReport tallies check outcomes.
type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on a Herald installation",
		Long: `Verifies that the configuration, persona, database, cache, providers
and channel credentials are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Herald Doctor v%s\n\n", version)

			var r doctorReport
			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'herald init' to create a default configuration.\n")
				return fmt.Errorf("config not found")
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return fmt.Errorf("config invalid")
			}
			r.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			runDoctorChecks(ctx, cfg, &r)

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

func runDoctorChecks(ctx context.Context, cfg *config.Config, r *doctorReport) {
	if cfg.Agent.PersonaFile != "" {
		if ch, err := persona.Load(cfg.Agent.PersonaFile, cfg.Agent.Name); err != nil {
			r.fail("Persona", err.Error())
		} else {
			r.pass("Persona", fmt.Sprintf("%s (@%s)", ch.Name, ch.Handle))
		}
	} else {
		r.warn("Persona", "no personaFile, using built-in default")
	}

	if store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logger); err != nil {
		r.fail("Database", err.Error())
	} else {
		if v, err := store.SchemaVersion(); err != nil {
			r.warn("Database", fmt.Sprintf("%s (schema version unknown: %v)", cfg.Memory.DBPath, err))
		} else {
			r.pass("Database", fmt.Sprintf("%s (schema v%d)", cfg.Memory.DBPath, v))
		}
		store.Close()
	}

	if cfg.Cache.Backend == "postgres" {
		if pg, err := cache.NewPostgresCache(ctx, cfg.Cache.PostgresURL); err != nil {
			r.fail("Cache", err.Error())
		} else {
			pg.Close()
			r.pass("Cache", "postgres reachable")
		}
	} else {
		r.pass("Cache", "sqlite")
	}

	factory := provider.NewFactory(cfg, logger)
	enabled := 0
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		enabled++
		p, err := factory.Get(ctx, name)
		if err != nil {
			r.fail("Provider: "+name, err.Error())
			continue
		}
		if err := p.Healthy(ctx); err != nil {
			r.warn("Provider: "+name, err.Error())
			continue
		}
		r.pass("Provider: "+name, "healthy")
	}
	if enabled == 0 {
		r.fail("Providers", "no providers enabled")
	}

	chans := cfg.Channels
	if !chans.Telegram.Enabled && !chans.Discord.Enabled && !chans.Feed.Enabled {
		r.fail("Channels", "no channel enabled")
	}
	if chans.Feed.Enabled {
		post := cfg.PostSchedule(nil)
		r.pass("Feed", fmt.Sprintf("@%s, posts every %d-%d min, dryRun=%v", chans.Feed.Username, post.MinMinutes, post.MaxMinutes, chans.Feed.DryRun))
	}

	if cfg.Metrics.Enabled {
		if err := checkAddr(cfg.Metrics.Addr); err != nil {
			r.warn("Metrics", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
		} else {
			r.pass("Metrics", cfg.Metrics.Addr+" available")
		}
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", cfg.General.LogFile)
		}
	}
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
