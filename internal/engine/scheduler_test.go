// internal/engine/scheduler_test.go
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/discord"
	"github.com/xkilldash9x/advbot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Mock Implementations --

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	deleted []string
	sendErr error
	onSend  func()
	seq     atomic.Int64
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ string, content string) (*discord.Message, error) {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		onSend()
	}
	return &discord.Message{ID: "trigger-" + string(rune('0'+f.seq.Add(1)))}, nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ string, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), len(f.deleted)
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Discord.ChannelID = "chan"
	cfg.Adventure.PollInterval = 5 * time.Millisecond
	cfg.Adventure.AdventureTimeout = 200 * time.Millisecond
	cfg.Adventure.CommandDelay = 0
	cfg.Adventure.QueueSize = 4
	cfg.Interaction.DeleteDelay = 10 * time.Millisecond
	return cfg
}

type fixture struct {
	scheduler *Scheduler
	messenger *fakeMessenger
	machine   *session.Machine
	retries   atomic.Int32
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{messenger: &fakeMessenger{}}
	f.machine = session.New(session.Timeouts{Start: time.Hour, Adventure: time.Hour, Navigation: time.Hour},
		func(string) { f.retries.Add(1) }, zaptest.NewLogger(t))
	f.scheduler = New(cfg, f.messenger, f.machine, nil, zaptest.NewLogger(t))
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("command never completed")
		return Result{}
	}
}

// -- Test Suite --

func TestSubmitJoinsRound(t *testing.T) {
	f := newFixture(t, testConfig())
	f.messenger.onSend = func() {
		go func() {
			for f.machine.Phase() != session.PhaseAwaitingStart {
				time.Sleep(time.Millisecond)
			}
			f.machine.StartNotNeeded()
			f.machine.EnterCooldown(time.Minute)
		}()
	}
	f.start(t)

	ch, err := f.scheduler.Submit(context.Background(), "pls adv", "round")
	require.NoError(t, err)
	res := await(t, ch)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, "round", res.Command.Reason)
	assert.NotEmpty(t, res.Command.ID)
	assert.Equal(t, session.PhaseCoolingDown, f.machine.Phase())

	assert.Eventually(t, func() bool {
		_, deleted := f.messenger.counts()
		return deleted == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSkipDuringCooldown(t *testing.T) {
	f := newFixture(t, testConfig())
	f.machine.EnterCooldown(time.Minute)
	f.start(t)

	ch, err := f.scheduler.Submit(context.Background(), "pls adv", "round")
	require.NoError(t, err)
	res := await(t, ch)

	assert.Equal(t, StatusSkipped, res.Status)
	assert.ErrorIs(t, res.Err, session.ErrCooldownActive)
	sent, _ := f.messenger.counts()
	assert.Zero(t, sent)
}

func TestWaitLimitForcesTimeout(t *testing.T) {
	f := newFixture(t, testConfig())
	f.start(t)

	ch, err := f.scheduler.Submit(context.Background(), "pls adv", "round")
	require.NoError(t, err)
	res := await(t, ch)

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.GreaterOrEqual(t, res.Waited, 200*time.Millisecond)
	assert.Equal(t, session.PhaseIdle, f.machine.Phase())
	assert.Equal(t, int32(1), f.retries.Load())
}

func TestSendFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.messenger.sendErr = errors.New("403 missing access")
	f.start(t)

	ch, err := f.scheduler.Submit(context.Background(), "pls adv", "round")
	require.NoError(t, err)
	res := await(t, ch)

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorContains(t, res.Err, "missing access")
	assert.Equal(t, session.PhaseIdle, f.machine.Phase())
}

func TestStopCancelsPendingDeletes(t *testing.T) {
	cfg := testConfig()
	cfg.Interaction.DeleteDelay = time.Hour
	f := newFixture(t, cfg)
	f.messenger.onSend = func() {
		go func() {
			for f.machine.Phase() != session.PhaseAwaitingStart {
				time.Sleep(time.Millisecond)
			}
			f.machine.EnterCooldown(time.Minute)
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	ch, err := f.scheduler.Submit(ctx, "pls adv", "round")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, await(t, ch).Status)

	cancel()
	require.NoError(t, <-done)
	_, deleted := f.messenger.counts()
	assert.Zero(t, deleted)

	f.scheduler.scheduleDelete("late")
	assert.Empty(t, f.scheduler.timers, "no timers after stop")
}

func TestEnqueueWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.Adventure.QueueSize = 1
	f := newFixture(t, cfg)

	assert.True(t, f.scheduler.Enqueue("pls adv", "retry"))
	assert.False(t, f.scheduler.Enqueue("pls adv", "retry"))
	assert.Equal(t, 1, f.scheduler.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.scheduler.Submit(ctx, "pls adv", "round")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunTwiceFails(t *testing.T) {
	f := newFixture(t, testConfig())
	f.scheduler.isRunning = true
	assert.ErrorContains(t, f.scheduler.Run(context.Background()), "already running")
}
