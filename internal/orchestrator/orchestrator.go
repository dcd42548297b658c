// File: internal/orchestrator/orchestrator.go
// Description: Runs one bot session. It is injected with fully configured components via
// interfaces and drives them under a single errgroup.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/engine"
	"github.com/xkilldash9x/advbot/internal/notify"
	"github.com/xkilldash9x/advbot/internal/session"
)

// Gateway is the live event connection.
type Gateway interface {
	Run(ctx context.Context) error
	Watchdog(ctx context.Context) error
	WaitReady(ctx context.Context) error
}

// Runner is a component that works until its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler accepts trigger commands and reports how each one ended.
type Scheduler interface {
	Runner
	Submit(ctx context.Context, content, reason string) (<-chan engine.Result, error)
}

// Session exposes the timers of the session machine.
type Session interface {
	Tick(now time.Time) (string, bool)
	CooldownRemaining() time.Duration
	LastCooldown() time.Duration
}

// Memory is the persistence side of the choice memory.
type Memory interface {
	Flush(ctx context.Context) error
	Len() int
}

// Health serves the liveness endpoint.
type Health interface {
	ListenAndServe(ctx context.Context) error
}

var (
	_ Session   = (*session.Machine)(nil)
	_ Scheduler = (*engine.Scheduler)(nil)
)

// Components are the parts one session drives. Health and Stop are optional.
type Components struct {
	Gateway   Gateway
	Agent     Runner
	Scheduler Scheduler
	Session   Session
	Memory    Memory
	Notifier  notify.Notifier
	Health    Health
	Stop      StopSignal
}

// ReasonRound tags the commands the round loop submits.
const ReasonRound = "round"

const progressLogEvery = time.Minute

// Orchestrator manages the lifecycle of one session: connection, event handling, command
// worker, timers and the round loop.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger
	c      Components
	now    func() time.Time
}

// New creates an Orchestrator with its dependencies provided as interfaces.
func New(cfg *config.Config, logger *zap.Logger, c Components) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		c.Gateway == nil ||
		c.Agent == nil ||
		c.Scheduler == nil ||
		c.Session == nil ||
		c.Memory == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if c.Notifier == nil {
		c.Notifier = notify.Nop{}
	}
	if c.Stop == nil {
		c.Stop = Never{}
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
		c:      c,
		now:    time.Now,
	}, nil
}

// RunSession runs every component until one fails, a stop is requested or ctx ends. It
// returns ErrStopRequested for an orderly stop and nil when ctx was cancelled.
func (o *Orchestrator) RunSession(ctx context.Context) error {
	o.logger.Info("Session starting.", zap.String("channel_id", o.cfg.Discord.ChannelID))

	g, gctx := errgroup.WithContext(ctx)

	// 1. The connection and its watchdog.
	g.Go(o.guard("gateway", func() error { return o.c.Gateway.Run(gctx) }))
	g.Go(o.guard("watchdog", func() error { return o.c.Gateway.Watchdog(gctx) }))

	// 2. Event handling and the command worker.
	g.Go(o.guard("agent", func() error { return o.c.Agent.Run(gctx) }))
	g.Go(o.guard("scheduler", func() error { return o.c.Scheduler.Run(gctx) }))

	// 3. Session timers.
	g.Go(o.guard("ticker", func() error { return o.tick(gctx) }))

	// 4. Optional liveness endpoint.
	if o.c.Health != nil {
		g.Go(o.guard("health", func() error { return o.c.Health.ListenAndServe(gctx) }))
	}

	// 5. The round loop itself.
	g.Go(o.guard("rounds", func() error { return o.roundLoop(gctx) }))

	err := g.Wait()
	if flushErr := o.flush(context.WithoutCancel(ctx)); flushErr != nil {
		o.logger.Error("Failed to flush choice memory at session end", zap.Error(flushErr))
	}

	switch {
	case errors.Is(err, ErrStopRequested):
		o.logger.Info("Session stopped on request.")
		return ErrStopRequested
	case ctx.Err() != nil:
		o.logger.Info("Session cancelled.")
		return nil
	case err != nil:
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}

// guard turns a panic in fn into an error so the supervisor can restart the session.
func (o *Orchestrator) guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Recovered panic in session component",
					zap.String("component", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn()
	}
}

func (o *Orchestrator) tick(ctx context.Context) error {
	interval := o.cfg.Adventure.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if reason, fired := o.c.Session.Tick(o.now()); fired {
				o.logger.Warn("Session timer fired", zap.String("reason", reason))
				o.c.Notifier.Notify(reason + ", retrying trigger")
			}
		}
	}
}

func (o *Orchestrator) roundLoop(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, o.cfg.Gateway.ReadyTimeout)
	err := o.c.Gateway.WaitReady(readyCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("gateway never became ready: %w", err)
	}
	o.c.Notifier.Notify("Adventure bot online")

	for round := 1; ; round++ {
		if o.c.Stop.StopRequested() {
			return ErrStopRequested
		}

		res, err := o.playRound(ctx, round)
		if err != nil {
			return nil
		}
		if err := o.flush(ctx); err != nil {
			o.logger.Error("Failed to flush choice memory", zap.Error(err))
		}

		wait := o.nextDelay()
		o.logger.Info("Round ended",
			zap.Int("round", round),
			zap.String("status", string(res.Status)),
			zap.Duration("next_in", wait),
			zap.Int("memory_size", o.c.Memory.Len()))
		if res.Status == engine.StatusCompleted {
			o.c.Notifier.Notify(fmt.Sprintf("Round %d done, next in %s", round, wait.Round(time.Second)))
		}

		if err := o.wait(ctx, wait); err != nil {
			return err
		}
	}
}

// playRound submits the trigger and blocks until the worker reports on it.
func (o *Orchestrator) playRound(ctx context.Context, round int) (engine.Result, error) {
	o.logger.Info("Starting round", zap.Int("round", round))
	ch, err := o.c.Scheduler.Submit(ctx, o.cfg.Adventure.Trigger, ReasonRound)
	if err != nil {
		return engine.Result{}, err
	}
	select {
	case res := <-ch:
		if res.Err != nil && res.Status != engine.StatusSkipped {
			o.logger.Warn("Round did not complete", zap.String("status", string(res.Status)), zap.Error(res.Err))
		}
		return res, nil
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
}

// nextDelay is max(cooldown remaining, last cooldown + round slack). Before any cooldown was
// observed the configured round delay stands in for the last cooldown.
func (o *Orchestrator) nextDelay() time.Duration {
	base := o.c.Session.LastCooldown()
	if base <= 0 {
		base = o.cfg.Adventure.RoundDelay
	}
	return max(o.c.Session.CooldownRemaining(), base+o.cfg.Adventure.RoundSlack)
}

// wait sleeps d in progress_interval steps, checking for a stop request after each step.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	step := o.cfg.Adventure.ProgressInterval
	if step <= 0 {
		step = time.Second
	}
	deadline := o.now().Add(d)
	nextLog := o.now().Add(progressLogEvery)

	for {
		remaining := deadline.Sub(o.now())
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(min(step, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if o.c.Stop.StopRequested() {
			return ErrStopRequested
		}
		if now := o.now(); !now.Before(nextLog) {
			o.logger.Info("Waiting for next round", zap.Duration("remaining", deadline.Sub(now).Round(time.Second)))
			nextLog = now.Add(progressLogEvery)
		}
	}
}

func (o *Orchestrator) flush(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return o.c.Memory.Flush(ctx)
}
