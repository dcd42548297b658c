package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/advbot/internal/adventure"
	"github.com/xkilldash9x/advbot/internal/classifier"
	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/gateway"
	"github.com/xkilldash9x/advbot/internal/notify"
	"github.com/xkilldash9x/advbot/internal/retry"
	"github.com/xkilldash9x/advbot/internal/selector"
	"github.com/xkilldash9x/advbot/internal/session"
)

// MemoryRecorder is the write side of the choice memory.
type MemoryRecorder interface {
	Record(ctx context.Context, fingerprint, label string, success bool) error
}

// Stats counts what the agent has done since it started.
type Stats struct {
	Events  int64 `json:"events"`
	Clicks  int64 `json:"clicks"`
	Dropped int64 `json:"dropped"`
}

// Agent turns gateway message events into clicks. Dispatch only queues; Run consumes the
// queue in order on a single goroutine, so click delays never stall the gateway reader.
type Agent struct {
	channelID string
	guildID   string
	botID     string
	adv       config.AdventureConfig
	cooldown  classifier.CooldownOptions

	machine  *session.Machine
	selector *selector.Selector
	memory   MemoryRecorder
	clicker  *Clicker
	notifier notify.Notifier
	logger   *zap.Logger

	inbox chan gateway.MessageEvent
	sleep func(ctx context.Context, d time.Duration) error
	delay func(min, max time.Duration) time.Duration

	events  atomic.Int64
	clicks  atomic.Int64
	dropped atomic.Int64
}

// New wires an agent. mem and notifier may be nil.
func New(
	cfg *config.Config,
	machine *session.Machine,
	sel *selector.Selector,
	mem MemoryRecorder,
	clicker *Clicker,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	size := cfg.Adventure.InboxSize
	if size <= 0 {
		size = 64
	}
	return &Agent{
		channelID: cfg.Discord.ChannelID,
		guildID:   cfg.Discord.GuildID,
		botID:     cfg.Discord.BotID,
		adv:       cfg.Adventure,
		cooldown: classifier.CooldownOptions{
			Default:   cfg.Adventure.RoundDelay,
			BufferMin: cfg.Adventure.CooldownBufferMin,
			BufferMax: cfg.Adventure.CooldownBufferMax,
		},
		machine:  machine,
		selector: sel,
		memory:   mem,
		clicker:  clicker,
		notifier: notifier,
		logger:   logger.Named("agent"),
		inbox:    make(chan gateway.MessageEvent, size),
		sleep:    retry.Sleep,
		delay:    retry.Uniform,
	}
}

// Dispatch implements gateway.Dispatcher. Events that do not fit in the inbox are dropped.
func (a *Agent) Dispatch(ev gateway.MessageEvent) {
	select {
	case a.inbox <- ev:
	default:
		a.dropped.Add(1)
		a.logger.Warn("Agent inbox full, dropping event", zap.String("message_id", ev.Message.ID))
	}
}

// OnReady implements gateway.ReadyListener.
func (a *Agent) OnReady(r gateway.Ready) {
	a.machine.SetSessionID(r.SessionID)
}

// Run consumes the inbox until ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Agent started.")
	defer a.logger.Info("Agent stopped.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.inbox:
			a.Handle(ctx, ev)
		}
	}
}

// Stats returns the counters.
func (a *Agent) Stats() Stats {
	return Stats{Events: a.events.Load(), Clicks: a.clicks.Load(), Dropped: a.dropped.Load()}
}

// accepts filters on channel, guild and author. Partial updates may omit the author.
func (a *Agent) accepts(ev gateway.MessageEvent) bool {
	msg := &ev.Message
	if msg.ChannelID != a.channelID {
		return false
	}
	if a.guildID != "" && msg.GuildID != "" && msg.GuildID != a.guildID {
		return false
	}
	author := msg.AuthorID()
	if author == "" {
		return ev.Kind == gateway.MessageUpdated
	}
	return author == a.botID
}

// Handle processes one event synchronously.
func (a *Agent) Handle(ctx context.Context, ev gateway.MessageEvent) {
	if !a.accepts(ev) {
		return
	}
	a.events.Add(1)

	event := adventure.FromMessage(&ev.Message)
	verdict := classifier.Classify(event, a.machine.InAdventure(), a.cooldown)
	logger := a.logger.With(
		zap.String("message_id", event.MessageID),
		zap.String("kind", string(ev.Kind)),
		zap.String("verdict", string(verdict.Label)),
		zap.String("phase", string(a.machine.Phase())))

	switch verdict.Label {
	case classifier.LabelDistractor, classifier.LabelIgnored:
		logger.Debug("Event skipped")

	case classifier.LabelCooldown:
		a.machine.EnterCooldown(verdict.Cooldown)
		logger.Info("Cooldown notice", zap.Duration("cooldown", verdict.Cooldown))
		a.notifier.Notify(fmt.Sprintf("Cooldown %s", verdict.Cooldown.Round(time.Second)))

	case classifier.LabelComplete:
		a.machine.EnterCooldown(verdict.Cooldown)
		logger.Info("Adventure complete", zap.Duration("cooldown", verdict.Cooldown))
		a.notifier.Notify(fmt.Sprintf("Adventure complete, next round in %s", verdict.Cooldown.Round(time.Second)))

	case classifier.LabelStart:
		a.handleStart(ctx, logger, event)

	case classifier.LabelActionable:
		a.handleActionable(ctx, logger, event, verdict)
	}
}

// handleStart presses the start control. While a trigger is pending only a start-kind
// control may leave awaiting_start; without one the start window is left to expire.
func (a *Agent) handleStart(ctx context.Context, logger *zap.Logger, event adventure.Event) {
	phase := a.machine.Phase()
	btn, isStart := adventure.FirstEnabled(event.Buttons, adventure.KindStart)
	if !isStart {
		if phase != session.PhaseIdle {
			logger.Info("Start screen has no enabled start control, waiting")
			return
		}
		d, found := a.selector.Select(event.Buttons, event.Text, false)
		if !found {
			logger.Debug("Start screen has no usable control")
			return
		}
		btn = d.Button
	}
	if phase == session.PhaseIdle {
		a.machine.BeginAdventure()
	}

	if err := a.sleep(ctx, a.delay(a.adv.StartDelayMin, a.adv.StartDelayMax)); err != nil {
		return
	}
	if _, err := a.clicker.Click(ctx, ClickRequest{MessageID: event.MessageID, Button: btn, Reason: "start"}); err != nil {
		logger.Warn("Failed to click start control", zap.Error(err))
		return
	}
	a.clicks.Add(1)
	if isStart {
		a.machine.StartClicked()
	}
	a.notifier.Notify("Adventure started: " + btn.Label)
}

func (a *Agent) handleActionable(ctx context.Context, logger *zap.Logger, event adventure.Event, verdict classifier.Verdict) {
	// 1. Adopt adventures started elsewhere and leave the start window.
	switch a.machine.Phase() {
	case session.PhaseIdle:
		if !classifier.NeedsInteraction(event.Text) && !adventure.HasEnabled(event.Buttons, adventure.KindNavigation) {
			logger.Debug("Idle and nothing asks for input")
			return
		}
		a.machine.BeginAdventure()
	case session.PhaseAwaitingStart:
		a.machine.StartNotNeeded()
	}

	// 2. Pick a button.
	navigationOnly := a.machine.Phase() == session.PhaseAwaitingNavigation
	d, ok := a.selector.Select(event.Buttons, event.Text, navigationOnly)
	if !ok {
		logger.Debug("No selectable button", zap.Bool("navigation_only", navigationOnly))
		return
	}
	isNavigation := d.Reason == selector.ReasonNavigation

	// 3. Wait like a person would, then click.
	minDelay, maxDelay := a.adv.ChoiceDelayMin, a.adv.ChoiceDelayMax
	if isNavigation {
		minDelay, maxDelay = a.adv.NavigationDelayMin, a.adv.NavigationDelayMax
	}
	if err := a.sleep(ctx, a.delay(minDelay, maxDelay)); err != nil {
		return
	}
	_, err := a.clicker.Click(ctx, ClickRequest{
		MessageID:   event.MessageID,
		Button:      d.Button,
		Reason:      string(d.Reason),
		Fingerprint: d.Fingerprint,
	})

	// 4. Update the session and the memory.
	if isNavigation {
		if err != nil {
			logger.Warn("Failed to click navigation", zap.Error(err))
			return
		}
		a.clicks.Add(1)
		a.machine.NavigationClicked()
		a.notifier.Notify("Navigation: " + d.Button.Label)
		return
	}

	if a.memory != nil && d.Fingerprint != "" && ctx.Err() == nil {
		if rerr := a.memory.Record(ctx, d.Fingerprint, d.Button.Label, err == nil); rerr != nil {
			logger.Warn("Failed to record choice outcome", zap.Error(rerr))
		}
	}
	if err != nil {
		logger.Warn("Failed to click choice", zap.String("label", d.Button.Label), zap.Error(err))
		return
	}
	a.clicks.Add(1)
	a.machine.ChoiceClicked(verdict.NeedsNavigation)
	logger.Info("Choice made",
		zap.String("label", d.Button.Label),
		zap.String("reason", string(d.Reason)),
		zap.Float64("score", d.Score),
		zap.String("fingerprint", d.Fingerprint))
	a.notifier.Notify("Choice: " + d.Button.Label)
}
