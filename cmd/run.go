package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/advbot/internal/agent"
	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/discord"
	"github.com/xkilldash9x/advbot/internal/engine"
	"github.com/xkilldash9x/advbot/internal/gateway"
	"github.com/xkilldash9x/advbot/internal/health"
	"github.com/xkilldash9x/advbot/internal/memory"
	"github.com/xkilldash9x/advbot/internal/notify"
	"github.com/xkilldash9x/advbot/internal/observability"
	"github.com/xkilldash9x/advbot/internal/orchestrator"
	"github.com/xkilldash9x/advbot/internal/selector"
	"github.com/xkilldash9x/advbot/internal/session"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Connects to Discord and plays adventures until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger.Info("Starting advbot",
				zap.String("version", Version),
				zap.String("channel_id", cfg.Discord.ChannelID),
				zap.String("memory_backend", string(cfg.Memory.Backend)))

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			return components.Supervisor.Run(ctx)
		},
	}
	runCmd.Flags().String("channel", "", "Channel to play in. (Overrides config/env)")
	return runCmd
}

// components holds the long-lived services shared by every session.
type components struct {
	Memory     *memory.Store
	Journal    agent.Journal
	Machine    *session.Machine
	Notifier   notify.Notifier
	Supervisor *orchestrator.Supervisor
	logger     *zap.Logger
}

// Shutdown flushes and closes everything that holds state on disk.
func (c *components) Shutdown() {
	if c.Memory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := c.Memory.Flush(ctx); err != nil {
			c.logger.Warn("Final memory flush failed", zap.Error(err))
		}
		cancel()
		if err := c.Memory.Close(); err != nil {
			c.logger.Warn("Failed to close memory store", zap.Error(err))
		}
	}
	if c.Journal != nil {
		if err := c.Journal.Close(); err != nil {
			c.logger.Warn("Failed to close click journal", zap.Error(err))
		}
	}
	observability.Sync()
}

// initializeComponents handles dependency injection. Everything built here outlives a
// session; the factory builds the per-connection parts.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{logger: logger}

	// 1. Choice memory.
	store, err := memory.Open(ctx, cfg.Memory, logger)
	if err != nil {
		return c, fmt.Errorf("failed to open choice memory: %w", err)
	}
	c.Memory = store
	logger.Info("Choice memory loaded", zap.Int("fingerprints", store.Len()))

	// 2. Decision rules.
	rules := selector.DefaultRulebook()
	if cfg.Adventure.RulebookFile != "" {
		if rules, err = selector.LoadRulebook(cfg.Adventure.RulebookFile); err != nil {
			return c, fmt.Errorf("failed to load rulebook: %w", err)
		}
	}
	sel := selector.New(rules, store, logger)

	// 3. Click journal and notifier.
	journal, err := agent.OpenJournal(cfg.Interaction.JournalFile)
	if err != nil {
		return c, fmt.Errorf("failed to open click journal: %w", err)
	}
	c.Journal = journal
	c.Notifier = notify.New(cfg.Notify, logger)

	// 4. Session state survives restarts so an active cooldown is resumed.
	c.Machine = session.New(session.Timeouts{
		Start:      cfg.Adventure.StartTimeout,
		Adventure:  cfg.Adventure.AdventureTimeout,
		Navigation: cfg.Adventure.NavigationWait,
	}, nil, logger)

	sentinel, err := orchestrator.NewFileSentinel(cfg.Adventure.StopFile)
	if err != nil {
		return c, fmt.Errorf("failed to resolve stop file: %w", err)
	}

	rest := discord.NewClient(cfg.Discord, cfg.Interaction, nil, logger)

	// 5. Per-session wiring.
	factory := func(ctx context.Context) (*orchestrator.Orchestrator, error) {
		clicker := agent.NewClicker(cfg.Discord, cfg.Interaction, rest, c.Machine, journal, logger)
		bot := agent.New(cfg, c.Machine, sel, store, clicker, c.Notifier, logger)
		gw := gateway.NewClient(cfg.Discord, cfg.Gateway, bot, logger)
		scheduler := engine.New(cfg, rest, c.Machine, c.Notifier, logger)
		c.Machine.SetRetry(func(reason string) {
			scheduler.Enqueue(cfg.Adventure.Trigger, reason)
		})

		parts := orchestrator.Components{
			Gateway:   gw,
			Agent:     bot,
			Scheduler: scheduler,
			Session:   c.Machine,
			Memory:    store,
			Notifier:  c.Notifier,
			Stop:      sentinel,
		}
		if cfg.Health.Enabled {
			parts.Health = health.New(cfg.Health, statusFunc(c.Machine, store, gw, bot), logger)
		}
		return orchestrator.New(cfg, logger, parts)
	}
	c.Supervisor = orchestrator.NewSupervisor(cfg.Supervisor, factory, store, c.Notifier, logger)
	return c, nil
}

// status is served on /status.
type status struct {
	Session    session.Snapshot `json:"session"`
	Connected  bool             `json:"connected"`
	Generation uint64           `json:"connection_generation"`
	MemorySize int              `json:"memory_size"`
	Agent      agent.Stats      `json:"agent"`
}

func statusFunc(machine *session.Machine, store *memory.Store, gw *gateway.Client, bot *agent.Agent) health.StatusFunc {
	return func() any {
		return status{
			Session:    machine.Snapshot(),
			Connected:  gw.Connected(),
			Generation: gw.Generation(),
			MemorySize: store.Len(),
			Agent:      bot.Stats(),
		}
	}
}
