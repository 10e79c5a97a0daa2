package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived loop that returns when its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type namedRunner struct {
	name string
	r    Runner
}

// Supervisor runs loops side by side and stops them all when one fails or
// the parent context ends.
type Supervisor struct {
	runners []namedRunner
	logger  *slog.Logger
}

func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger}
}

// Add registers a loop. Call before Run.
func (s *Supervisor) Add(name string, r Runner) {
	s.runners = append(s.runners, namedRunner{name: name, r: r})
}

// Len returns the number of registered loops.
func (s *Supervisor) Len() int { return len(s.runners) }

// Run blocks until every loop has returned. It returns the first loop
// failure; cancellation is not a failure.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, nr := range s.runners {
		g.Go(func() error {
			s.logger.Debug("loop starting", "name", nr.name)
			err := nr.r.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("loop failed", "name", nr.name, "err", err)
				return fmt.Errorf("%s: %w", nr.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
