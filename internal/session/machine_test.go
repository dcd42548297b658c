// File: internal/session/machine_test.go
package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

var testTimeouts = Timeouts{
	Start:      20 * time.Second,
	Adventure:  10 * time.Minute,
	Navigation: 12 * time.Second,
}

func newMachine(t *testing.T) (*Machine, *fakeClock, *[]string) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	var reasons []string
	m := New(testTimeouts, func(reason string) { reasons = append(reasons, reason) }, zaptest.NewLogger(t))
	m.SetClock(clock.Now)
	return m, clock, &reasons
}

func TestHappyRound(t *testing.T) {
	m, clock, reasons := newMachine(t)
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.True(t, m.RoundFinished())

	require.NoError(t, m.TriggerIssued())
	assert.Equal(t, PhaseAwaitingStart, m.Phase())
	assert.NotEmpty(t, m.Snapshot().RoundID)
	assert.True(t, m.InAdventure())

	assert.True(t, m.StartClicked())
	assert.Equal(t, PhaseAwaitingChoice, m.Phase())

	clock.Advance(5 * time.Second)
	assert.True(t, m.ChoiceClicked(true))
	assert.Equal(t, PhaseAwaitingNavigation, m.Phase())
	assert.False(t, m.ChoiceClicked(false), "no scenario choice while navigation is pending")

	assert.True(t, m.NavigationClicked())
	assert.Equal(t, PhaseAwaitingChoice, m.Phase())

	assert.True(t, m.ChoiceClicked(false))
	assert.Equal(t, PhaseAwaitingChoice, m.Phase())

	m.EnterCooldown(4 * time.Minute)
	assert.Equal(t, PhaseCoolingDown, m.Phase())
	assert.True(t, m.RoundFinished())
	assert.Equal(t, 4*time.Minute, m.CooldownRemaining())
	assert.Equal(t, 4*time.Minute, m.LastCooldown())
	assert.Empty(t, m.Snapshot().RoundID)
	assert.Empty(t, *reasons)
}

func TestTriggerDuringCooldown(t *testing.T) {
	m, clock, _ := newMachine(t)
	m.EnterCooldown(time.Minute)

	err := m.TriggerIssued()
	assert.ErrorIs(t, err, ErrCooldownActive)
	assert.ErrorIs(t, m.CanTrigger(), ErrCooldownActive)
	assert.Equal(t, PhaseCoolingDown, m.Phase())

	clock.Advance(time.Minute)
	assert.NoError(t, m.CanTrigger())
	require.NoError(t, m.TriggerIssued())
	assert.Equal(t, PhaseAwaitingStart, m.Phase())
}

func TestTriggerDuringRound(t *testing.T) {
	m, _, _ := newMachine(t)
	require.NoError(t, m.TriggerIssued())
	assert.ErrorIs(t, m.TriggerIssued(), ErrRoundInProgress)
}

func TestStartTimeoutRetriesOnce(t *testing.T) {
	m, clock, reasons := newMachine(t)
	require.NoError(t, m.TriggerIssued())

	_, fired := m.Tick(clock.Advance(19 * time.Second))
	assert.False(t, fired)
	assert.Equal(t, PhaseAwaitingStart, m.Phase())

	reason, fired := m.Tick(clock.Advance(2 * time.Second))
	assert.True(t, fired)
	assert.Equal(t, ReasonStartTimeout, reason)
	assert.Equal(t, PhaseIdle, m.Phase())

	_, fired = m.Tick(clock.Advance(time.Second))
	assert.False(t, fired)
	assert.Equal(t, []string{ReasonStartTimeout}, *reasons)
}

func TestStartNotNeeded(t *testing.T) {
	m, _, _ := newMachine(t)
	assert.False(t, m.StartNotNeeded(), "only valid in awaiting_start")
	require.NoError(t, m.TriggerIssued())
	assert.True(t, m.StartNotNeeded())
	assert.Equal(t, PhaseAwaitingChoice, m.Phase())
}

func TestAdventureTimeout(t *testing.T) {
	m, clock, reasons := newMachine(t)
	require.NoError(t, m.TriggerIssued())
	m.StartClicked()

	for range 9 {
		clock.Advance(time.Minute)
		m.ChoiceClicked(false)
		_, fired := m.Tick(clock.Now())
		require.False(t, fired)
	}
	reason, fired := m.Tick(clock.Advance(61 * time.Second))
	assert.True(t, fired)
	assert.Equal(t, ReasonAdventureTimeout, reason)
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Len(t, *reasons, 1)
}

func TestNavigationWaitExpires(t *testing.T) {
	m, clock, reasons := newMachine(t)
	require.NoError(t, m.TriggerIssued())
	m.StartClicked()
	m.ChoiceClicked(true)

	_, fired := m.Tick(clock.Advance(13 * time.Second))
	assert.False(t, fired)
	assert.Equal(t, PhaseAwaitingChoice, m.Phase())
	assert.Empty(t, *reasons)
}

func TestCooldownElapsesOnTick(t *testing.T) {
	m, clock, _ := newMachine(t)
	m.EnterCooldown(30 * time.Second)

	m.Tick(clock.Advance(29 * time.Second))
	assert.Equal(t, PhaseCoolingDown, m.Phase())
	assert.Equal(t, time.Second, m.CooldownRemaining())

	m.Tick(clock.Advance(time.Second))
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Zero(t, m.CooldownRemaining())
	assert.Equal(t, 30*time.Second, m.LastCooldown())
}

func TestCooldownDoesNotTimeOut(t *testing.T) {
	m, clock, reasons := newMachine(t)
	require.NoError(t, m.TriggerIssued())
	m.EnterCooldown(time.Hour)

	_, fired := m.Tick(clock.Advance(30 * time.Minute))
	assert.False(t, fired)
	assert.Equal(t, PhaseCoolingDown, m.Phase())
	assert.Empty(t, *reasons)
}

func TestForceTimeout(t *testing.T) {
	m, clock, reasons := newMachine(t)
	assert.False(t, m.ForceTimeout("worker wait limit"), "idle is a no-op")

	require.NoError(t, m.TriggerIssued())
	m.StartClicked()
	assert.True(t, m.ForceTimeout("worker wait limit"))
	assert.Equal(t, PhaseIdle, m.Phase())

	_, fired := m.Tick(clock.Advance(time.Hour))
	assert.False(t, fired, "the round is already over")
	assert.Equal(t, []string{"worker wait limit"}, *reasons)

	m.EnterCooldown(time.Minute)
	assert.False(t, m.ForceTimeout("again"))
}

func TestBeginAdventure(t *testing.T) {
	m, _, _ := newMachine(t)
	assert.True(t, m.BeginAdventure())
	assert.Equal(t, PhaseAwaitingChoice, m.Phase())
	assert.False(t, m.BeginAdventure())

	m.EnterCooldown(time.Minute)
	assert.False(t, m.BeginAdventure())
}

func TestSessionID(t *testing.T) {
	m, _, _ := newMachine(t)
	m.SetSessionID("abc")
	assert.Equal(t, "abc", m.SessionID())
	assert.Equal(t, "abc", m.Snapshot().SessionID)
}

func TestRetryRunsOutsideLock(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var m *Machine
	var observed atomic.Value
	m = New(testTimeouts, func(string) {
		// Re-entering the machine would deadlock if the lock were held.
		observed.Store(m.Phase())
	}, zaptest.NewLogger(t))
	m.SetClock(clock.Now)

	require.NoError(t, m.TriggerIssued())
	m.Tick(clock.Advance(time.Minute))
	assert.Equal(t, PhaseIdle, observed.Load())
}

func TestConcurrentAccess(t *testing.T) {
	m := New(testTimeouts, nil, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				switch i % 4 {
				case 0:
					_ = m.TriggerIssued()
				case 1:
					m.StartClicked()
					m.ChoiceClicked(i%2 == 0)
				case 2:
					m.Tick(time.Now())
					_ = m.Snapshot()
				case 3:
					m.NavigationClicked()
					_ = m.CooldownRemaining()
				}
			}
		}()
	}
	wg.Wait()
	assert.Contains(t, []Phase{PhaseIdle, PhaseAwaitingStart, PhaseAwaitingChoice, PhaseAwaitingNavigation}, m.Phase())
}
