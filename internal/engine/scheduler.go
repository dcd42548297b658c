// internal/engine/scheduler.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/discord"
	"github.com/xkilldash9x/advbot/internal/notify"
	"github.com/xkilldash9x/advbot/internal/retry"
	"github.com/xkilldash9x/advbot/internal/session"
)

// -- Interfaces for Dependency Inversion --

// Messenger posts and removes the trigger message.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) (*discord.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Session is the part of the session machine the worker drives.
type Session interface {
	CanTrigger() error
	TriggerIssued() error
	RoundFinished() bool
	ForceTimeout(reason string) bool
}

var _ Session = (*session.Machine)(nil)

// Status is the outcome of one command.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Command is one queued trigger.
type Command struct {
	ID         string
	Content    string
	Reason     string
	EnqueuedAt time.Time
}

// Result reports how a command ended.
type Result struct {
	Command Command
	Status  Status
	Waited  time.Duration
	Err     error
}

// ReasonWaitLimit is passed to ForceTimeout when the worker gives up on a round.
const ReasonWaitLimit = "command wait limit reached"

const progressLogEvery = time.Minute

type job struct {
	cmd    Command
	result chan Result
}

// Scheduler is the single consumer of the command queue. Each command is skipped while a
// cooldown is active, otherwise sent, and then joined until the round finishes or the
// wait limit forces a timeout.
type Scheduler struct {
	channelID    string
	pollInterval time.Duration
	waitLimit    time.Duration
	commandDelay time.Duration
	deleteDelay  time.Duration

	messenger Messenger
	session   Session
	notifier  notify.Notifier
	logger    *zap.Logger
	queue     chan job
	sleep     func(ctx context.Context, d time.Duration) error

	// timersMu guards the pending delete timers.
	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	stopped  bool
	deletes  sync.WaitGroup

	// stateLock protects the running state.
	stateLock sync.Mutex
	isRunning bool
}

// New creates a scheduler. notifier may be nil.
func New(cfg *config.Config, messenger Messenger, sess Session, notifier notify.Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	size := cfg.Adventure.QueueSize
	if size <= 0 {
		size = 16
	}
	poll := cfg.Adventure.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Scheduler{
		channelID:    cfg.Discord.ChannelID,
		pollInterval: poll,
		waitLimit:    cfg.Adventure.AdventureTimeout,
		commandDelay: cfg.Adventure.CommandDelay,
		deleteDelay:  cfg.Interaction.DeleteDelay,
		messenger:    messenger,
		session:      sess,
		notifier:     notifier,
		logger:       logger.With(zap.String("component", "scheduler")),
		queue:        make(chan job, size),
		sleep:        retry.Sleep,
		timers:       make(map[*time.Timer]struct{}),
	}
}

func newCommand(content, reason string) Command {
	return Command{ID: uuid.New().String(), Content: content, Reason: reason, EnqueuedAt: time.Now().UTC()}
}

// Submit queues a command and returns a channel that receives its result. It blocks while
// the queue is full.
func (s *Scheduler) Submit(ctx context.Context, content, reason string) (<-chan Result, error) {
	j := job{cmd: newCommand(content, reason), result: make(chan Result, 1)}
	select {
	case s.queue <- j:
		return j.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enqueue queues a command without waiting. It reports false when the queue is full.
func (s *Scheduler) Enqueue(content, reason string) bool {
	j := job{cmd: newCommand(content, reason), result: make(chan Result, 1)}
	select {
	case s.queue <- j:
		return true
	default:
		s.logger.Warn("Command queue full, dropping command", zap.String("reason", reason))
		return false
	}
}

// Pending is the number of queued commands.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Run consumes the queue until ctx ends, then cancels pending message deletions.
func (s *Scheduler) Run(ctx context.Context) error {
	s.stateLock.Lock()
	if s.isRunning {
		s.stateLock.Unlock()
		return errors.New("scheduler is already running")
	}
	s.isRunning = true
	s.stateLock.Unlock()

	defer func() {
		s.Stop()
		s.stateLock.Lock()
		s.isRunning = false
		s.stateLock.Unlock()
	}()

	s.logger.Info("Command worker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, command worker shutting down.", zap.Int("pending", len(s.queue)))
			return nil
		case j := <-s.queue:
			res := s.process(ctx, j.cmd)
			j.result <- res
			if res.Status == StatusCancelled {
				return nil
			}
			if err := s.sleep(ctx, s.commandDelay); err != nil {
				return nil
			}
		}
	}
}

// process handles the execution of a single command.
func (s *Scheduler) process(ctx context.Context, cmd Command) Result {
	logger := s.logger.With(zap.String("command_id", cmd.ID), zap.String("reason", cmd.Reason))
	res := Result{Command: cmd}

	if err := s.session.CanTrigger(); err != nil {
		logger.Info("Skipping command", zap.Error(err))
		res.Status, res.Err = StatusSkipped, err
		return res
	}

	msg, err := s.messenger.SendMessage(ctx, s.channelID, cmd.Content)
	if err != nil {
		if ctx.Err() != nil {
			res.Status, res.Err = StatusCancelled, ctx.Err()
			return res
		}
		logger.Error("Failed to send command", zap.Error(err))
		res.Status, res.Err = StatusFailed, fmt.Errorf("failed to send %q: %w", cmd.Content, err)
		return res
	}
	if msg != nil && msg.ID != "" {
		s.scheduleDelete(msg.ID)
	}
	if err := s.session.TriggerIssued(); err != nil {
		logger.Warn("Trigger sent but session refused it", zap.Error(err))
		res.Status, res.Err = StatusSkipped, err
		return res
	}
	logger.Info("Trigger sent", zap.String("content", cmd.Content))

	return s.join(ctx, logger, res)
}

// join polls the session until the round finishes or the wait limit passes.
func (s *Scheduler) join(ctx context.Context, logger *zap.Logger, res Result) Result {
	start := time.Now()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	nextProgress := progressLogEvery

	for {
		select {
		case <-ctx.Done():
			res.Status, res.Err, res.Waited = StatusCancelled, ctx.Err(), time.Since(start)
			return res
		case <-ticker.C:
		}

		res.Waited = time.Since(start)
		if s.session.RoundFinished() {
			logger.Info("Round finished", zap.Duration("waited", res.Waited))
			res.Status = StatusCompleted
			return res
		}
		if res.Waited >= nextProgress {
			logger.Info("Adventure running", zap.Duration("waited", res.Waited), zap.Duration("limit", s.waitLimit))
			nextProgress += progressLogEvery
		}
		if s.waitLimit > 0 && res.Waited >= s.waitLimit {
			logger.Warn("Round exceeded the wait limit, forcing a timeout", zap.Duration("limit", s.waitLimit))
			s.session.ForceTimeout(ReasonWaitLimit)
			s.notifier.Notify("Interaction timeout, retrying trigger")
			res.Status = StatusTimedOut
			return res
		}
	}
}

func (s *Scheduler) scheduleDelete(messageID string) {
	if s.deleteDelay <= 0 {
		return
	}
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if s.stopped {
		return
	}

	s.deletes.Add(1)
	var t *time.Timer
	t = time.AfterFunc(s.deleteDelay, func() {
		defer s.deletes.Done()
		s.timersMu.Lock()
		delete(s.timers, t)
		s.timersMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.messenger.DeleteMessage(ctx, s.channelID, messageID); err != nil {
			s.logger.Debug("Failed to delete trigger message", zap.String("message_id", messageID), zap.Error(err))
		}
	})
	s.timers[t] = struct{}{}
}

// Stop cancels pending deletions and waits for running ones. It is idempotent.
func (s *Scheduler) Stop() {
	s.timersMu.Lock()
	s.stopped = true
	for t := range s.timers {
		if t.Stop() {
			s.deletes.Done()
		}
		delete(s.timers, t)
	}
	s.timersMu.Unlock()
	s.deletes.Wait()
}
