package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/notify"
	"github.com/xkilldash9x/advbot/internal/retry"
)

// Factory builds the orchestrator for a fresh session. Long-lived state such as the
// session machine and choice memory is shared between the sessions it builds.
type Factory func(ctx context.Context) (*Orchestrator, error)

// ErrRestartsExhausted is returned once a session has failed more than max_restarts times.
var ErrRestartsExhausted = errors.New("session restarts exhausted")

// Supervisor restarts failed sessions with exponential backoff.
type Supervisor struct {
	cfg      config.SupervisorConfig
	factory  Factory
	memory   Memory
	notifier notify.Notifier
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a supervisor. The notifier runs for the supervisor's whole life so
// restart notices are delivered while sessions are down.
func NewSupervisor(cfg config.SupervisorConfig, factory Factory, memory Memory, notifier notify.Notifier, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Supervisor{
		cfg:      cfg,
		factory:  factory,
		memory:   memory,
		notifier: notifier,
		logger:   logger.Named("supervisor"),
		sleep:    retry.Sleep,
	}
}

// Run starts sessions until one stops cleanly, ctx ends or the restart budget runs out.
func (s *Supervisor) Run(ctx context.Context) error {
	notifyCtx, stopNotifier := context.WithCancel(context.WithoutCancel(ctx))
	var g errgroup.Group
	g.Go(func() error { return s.notifier.Run(notifyCtx) })

	err := s.loop(ctx)

	stopNotifier()
	if werr := g.Wait(); werr != nil {
		s.logger.Warn("Notifier exited with error", zap.Error(werr))
	}
	return err
}

func (s *Supervisor) loop(ctx context.Context) error {
	failures := 0
	for {
		err := s.runOnce(ctx)
		switch {
		case errors.Is(err, ErrStopRequested):
			s.logger.Info("Stop requested, shutting down.")
			s.notifier.Notify("Stop requested, bot shut down")
			return nil
		case ctx.Err() != nil:
			return nil
		case err == nil:
			return nil
		}

		failures++
		s.flush(ctx)
		if failures > s.cfg.MaxRestarts {
			s.logger.Error("Giving up after repeated session failures",
				zap.Int("failures", failures), zap.Error(err))
			s.notifier.Notify(fmt.Sprintf("Bot crashed %d times, giving up: %v", failures, err))
			return fmt.Errorf("%w after %d failures: %w", ErrRestartsExhausted, failures, err)
		}

		delay := retry.Backoff(s.cfg.BaseBackoff, s.cfg.MaxBackoff, failures)
		s.logger.Warn("Session failed, restarting",
			zap.Int("attempt", failures),
			zap.Int("max_restarts", s.cfg.MaxRestarts),
			zap.Duration("backoff", delay),
			zap.Error(err))
		s.notifier.Notify(fmt.Sprintf("Bot error, restarting in %s (%d/%d)", delay.Round(time.Second), failures, s.cfg.MaxRestarts))

		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	orch, err := s.factory(ctx)
	if err != nil {
		return fmt.Errorf("failed to build session: %w", err)
	}
	return orch.RunSession(ctx)
}

func (s *Supervisor) flush(ctx context.Context) {
	if s.memory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.memory.Flush(ctx); err != nil {
		s.logger.Error("Failed to flush choice memory before restart", zap.Error(err))
	}
}
