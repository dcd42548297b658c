// File: internal/session/machine.go
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase is where the current adventure round stands.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingStart      Phase = "awaiting_start"
	PhaseAwaitingChoice     Phase = "awaiting_choice"
	PhaseAwaitingNavigation Phase = "awaiting_navigation"
	PhaseCoolingDown        Phase = "cooling_down"
)

var (
	// ErrCooldownActive is returned when a trigger is attempted before the cooldown ends.
	ErrCooldownActive = errors.New("cooldown is still active")
	// ErrRoundInProgress is returned when a trigger is attempted mid-round.
	ErrRoundInProgress = errors.New("a round is already in progress")
)

// Timeout reasons passed to the RetryFunc.
const (
	ReasonStartTimeout     = "no start control appeared"
	ReasonAdventureTimeout = "adventure timed out"
)

// RetryFunc is invoked once per timeout, outside the machine's lock, to re-queue the
// trigger command.
type RetryFunc func(reason string)

// Timeouts are the machine's timers.
type Timeouts struct {
	// Start bounds awaiting_start.
	Start time.Duration
	// Adventure bounds a whole round, measured from the trigger.
	Adventure time.Duration
	// Navigation bounds awaiting_navigation before falling back to awaiting_choice.
	Navigation time.Duration
}

// Snapshot is a consistent copy of the machine's fields.
type Snapshot struct {
	Phase          Phase         `json:"phase"`
	SessionID      string        `json:"session_id"`
	RoundID        string        `json:"round_id,omitempty"`
	RoundStartedAt time.Time     `json:"round_started_at"`
	PhaseEnteredAt time.Time     `json:"phase_entered_at"`
	LastChoiceAt   time.Time     `json:"last_choice_at"`
	StartDeadline  time.Time     `json:"start_deadline"`
	CooldownUntil  time.Time     `json:"cooldown_until"`
	LastCooldown   time.Duration `json:"last_cooldown"`
}

// Machine is the single session state shared by the gateway pipeline, the command worker
// and the round loop. All fields are guarded by mu.
type Machine struct {
	mu sync.Mutex

	phase          Phase
	sessionID      string
	roundID        string
	roundStartedAt time.Time
	phaseEnteredAt time.Time
	lastChoiceAt   time.Time
	startDeadline  time.Time
	cooldownUntil  time.Time
	lastCooldown   time.Duration

	timeouts Timeouts
	retry    RetryFunc
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a machine in the idle phase. retry may be nil.
func New(timeouts Timeouts, retry RetryFunc, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = func(string) {}
	}
	m := &Machine{
		phase:    PhaseIdle,
		timeouts: timeouts,
		retry:    retry,
		now:      time.Now,
		logger:   logger.Named("session"),
	}
	m.phaseEnteredAt = m.now()
	return m
}

// SetClock replaces the time source.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetRetry replaces the retry callback.
func (m *Machine) SetRetry(retry RetryFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if retry == nil {
		retry = func(string) {}
	}
	m.retry = retry
}

// transitionLocked moves to next. Callers hold mu.
func (m *Machine) transitionLocked(next Phase, why string) {
	prev := m.phase
	m.phase = next
	m.phaseEnteredAt = m.now()
	if next == PhaseIdle || next == PhaseCoolingDown {
		m.startDeadline = time.Time{}
	}
	m.logger.Info("Session phase changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("round_id", m.roundID),
		zap.String("reason", why))
}

// settleCooldownLocked leaves cooling_down once the cooldown has elapsed.
func (m *Machine) settleCooldownLocked(now time.Time) {
	if m.phase == PhaseCoolingDown && !now.Before(m.cooldownUntil) {
		m.transitionLocked(PhaseIdle, "cooldown elapsed")
	}
}

// TriggerIssued records a successfully sent trigger: idle to awaiting_start.
func (m *Machine) TriggerIssued() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.settleCooldownLocked(now)
	switch m.phase {
	case PhaseIdle:
	case PhaseCoolingDown:
		return fmt.Errorf("%w: %s remaining", ErrCooldownActive, m.cooldownUntil.Sub(now).Round(time.Second))
	default:
		return fmt.Errorf("%w: phase %s", ErrRoundInProgress, m.phase)
	}

	m.roundID = uuid.NewString()
	m.roundStartedAt = now
	m.lastChoiceAt = time.Time{}
	m.transitionLocked(PhaseAwaitingStart, "trigger issued")
	m.startDeadline = now.Add(m.timeouts.Start)
	return nil
}

// CanTrigger reports whether a trigger would be accepted now.
func (m *Machine) CanTrigger() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.settleCooldownLocked(now)
	switch m.phase {
	case PhaseIdle:
		return nil
	case PhaseCoolingDown:
		return fmt.Errorf("%w: %s remaining", ErrCooldownActive, m.cooldownUntil.Sub(now).Round(time.Second))
	default:
		return fmt.Errorf("%w: phase %s", ErrRoundInProgress, m.phase)
	}
}

// StartClicked records a pressed start control: awaiting_start to awaiting_choice.
func (m *Machine) StartClicked() bool {
	return m.leaveStart("start control clicked")
}

// StartNotNeeded moves on when the adventure message needs no start control.
func (m *Machine) StartNotNeeded() bool {
	return m.leaveStart("no start control needed")
}

func (m *Machine) leaveStart(why string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAwaitingStart {
		return false
	}
	m.transitionLocked(PhaseAwaitingChoice, why)
	return true
}

// BeginAdventure adopts an adventure that was started without a trigger from this
// process: idle to awaiting_choice.
func (m *Machine) BeginAdventure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.settleCooldownLocked(now)
	if m.phase != PhaseIdle {
		return false
	}
	m.roundID = uuid.NewString()
	m.roundStartedAt = now
	m.transitionLocked(PhaseAwaitingChoice, "adventure already running")
	return true
}

// ChoiceClicked records a pressed scenario choice. When the narration announced a
// continue button the machine waits for it in awaiting_navigation.
func (m *Machine) ChoiceClicked(needsNavigation bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAwaitingChoice {
		return false
	}
	m.lastChoiceAt = m.now()
	if needsNavigation {
		m.transitionLocked(PhaseAwaitingNavigation, "choice needs navigation")
	}
	return true
}

// NavigationClicked records a pressed navigation control. Both awaiting_choice and
// awaiting_navigation end up in awaiting_choice.
func (m *Machine) NavigationClicked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case PhaseAwaitingNavigation:
		m.lastChoiceAt = m.now()
		m.transitionLocked(PhaseAwaitingChoice, "navigation clicked")
		return true
	case PhaseAwaitingChoice:
		m.lastChoiceAt = m.now()
		return true
	default:
		return false
	}
}

// EnterCooldown starts a cooldown of d from any phase. The round is over.
func (m *Machine) EnterCooldown(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.cooldownUntil = now.Add(d)
	m.lastCooldown = d
	m.transitionLocked(PhaseCoolingDown, fmt.Sprintf("cooldown %s", d.Round(time.Second)))
	m.roundID = ""
}

// Tick applies the timers as of now. It returns the timeout reason when a retry was
// issued.
func (m *Machine) Tick(now time.Time) (string, bool) {
	m.mu.Lock()
	reason := ""
	switch {
	case m.phase == PhaseCoolingDown:
		m.settleCooldownLocked(now)
	case m.phase == PhaseIdle:
	case m.phase == PhaseAwaitingStart && !m.startDeadline.IsZero() && now.After(m.startDeadline):
		reason = ReasonStartTimeout
	case m.timeouts.Adventure > 0 && now.Sub(m.roundStartedAt) > m.timeouts.Adventure:
		reason = ReasonAdventureTimeout
	case m.phase == PhaseAwaitingNavigation && m.timeouts.Navigation > 0 && now.Sub(m.phaseEnteredAt) > m.timeouts.Navigation:
		m.transitionLocked(PhaseAwaitingChoice, "navigation wait expired")
	}
	if reason != "" {
		m.transitionLocked(PhaseIdle, reason)
		m.roundID = ""
	}
	retry := m.retry
	m.mu.Unlock()

	if reason == "" {
		return "", false
	}
	m.logger.Warn("Session timed out, re-queuing trigger", zap.String("reason", reason))
	retry(reason)
	return reason, true
}

// ForceTimeout ends the round from outside, as the command worker does when its own wait
// limit runs out. It is a no-op when no round is in progress.
func (m *Machine) ForceTimeout(reason string) bool {
	m.mu.Lock()
	if m.phase == PhaseIdle || m.phase == PhaseCoolingDown {
		m.mu.Unlock()
		return false
	}
	m.transitionLocked(PhaseIdle, reason)
	m.roundID = ""
	retry := m.retry
	m.mu.Unlock()

	m.logger.Warn("Session forcibly timed out, re-queuing trigger", zap.String("reason", reason))
	retry(reason)
	return true
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// InAdventure reports a round in progress.
func (m *Machine) InAdventure() bool {
	p := m.Phase()
	return p != PhaseIdle && p != PhaseCoolingDown
}

// RoundFinished reports that no round is in progress.
func (m *Machine) RoundFinished() bool {
	return !m.InAdventure()
}

// Snapshot returns a copy of every field.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Phase:          m.phase,
		SessionID:      m.sessionID,
		RoundID:        m.roundID,
		RoundStartedAt: m.roundStartedAt,
		PhaseEnteredAt: m.phaseEnteredAt,
		LastChoiceAt:   m.lastChoiceAt,
		StartDeadline:  m.startDeadline,
		CooldownUntil:  m.cooldownUntil,
		LastCooldown:   m.lastCooldown,
	}
}

// SessionID returns the gateway session identifier.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// SetSessionID stores the identifier from the latest READY event.
func (m *Machine) SetSessionID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = id
}

// CooldownRemaining returns the time left in cooling_down, or zero.
func (m *Machine) CooldownRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseCoolingDown {
		return 0
	}
	if left := m.cooldownUntil.Sub(m.now()); left > 0 {
		return left
	}
	return 0
}

// LastCooldown returns the most recently extracted cooldown.
func (m *Machine) LastCooldown() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCooldown
}
