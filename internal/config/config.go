// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Discord     DiscordConfig     `mapstructure:"discord" yaml:"discord"`
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Adventure   AdventureConfig   `mapstructure:"adventure" yaml:"adventure"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Memory      MemoryConfig      `mapstructure:"memory" yaml:"memory"`
	Notify      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Health      HealthConfig      `mapstructure:"health" yaml:"health"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor" yaml:"supervisor"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DiscordConfig identifies the account, the channel being automated and the bot whose
// messages drive the adventure.
type DiscordConfig struct {
	Token      string `mapstructure:"token" yaml:"-"`
	ChannelID  string `mapstructure:"channel_id" yaml:"channel_id"`
	GuildID    string `mapstructure:"guild_id" yaml:"guild_id"`
	BotID      string `mapstructure:"bot_id" yaml:"bot_id"`
	APIBase    string `mapstructure:"api_base" yaml:"api_base"`
	GatewayURL string `mapstructure:"gateway_url" yaml:"gateway_url"`
	Intents    int    `mapstructure:"intents" yaml:"intents"`
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent"`
}

// GatewayConfig tunes the realtime connection and its watchdog.
type GatewayConfig struct {
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	StaleAfter       time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" yaml:"watchdog_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	ReadyTimeout     time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	SendBuffer       int           `mapstructure:"send_buffer" yaml:"send_buffer"`
}

// AdventureConfig holds the round pacing and the per-phase timers.
type AdventureConfig struct {
	Trigger            string        `mapstructure:"trigger" yaml:"trigger"`
	CommandDelay       time.Duration `mapstructure:"command_delay" yaml:"command_delay"`
	RoundDelay         time.Duration `mapstructure:"round_delay" yaml:"round_delay"`
	RoundSlack         time.Duration `mapstructure:"round_slack" yaml:"round_slack"`
	AdventureTimeout   time.Duration `mapstructure:"adventure_timeout" yaml:"adventure_timeout"`
	StartTimeout       time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	NavigationWait     time.Duration `mapstructure:"navigation_wait" yaml:"navigation_wait"`
	ChoiceDelayMin     time.Duration `mapstructure:"choice_delay_min" yaml:"choice_delay_min"`
	ChoiceDelayMax     time.Duration `mapstructure:"choice_delay_max" yaml:"choice_delay_max"`
	StartDelayMin      time.Duration `mapstructure:"start_delay_min" yaml:"start_delay_min"`
	StartDelayMax      time.Duration `mapstructure:"start_delay_max" yaml:"start_delay_max"`
	NavigationDelayMin time.Duration `mapstructure:"navigation_delay_min" yaml:"navigation_delay_min"`
	NavigationDelayMax time.Duration `mapstructure:"navigation_delay_max" yaml:"navigation_delay_max"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	TickInterval       time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	CooldownBufferMin  time.Duration `mapstructure:"cooldown_buffer_min" yaml:"cooldown_buffer_min"`
	CooldownBufferMax  time.Duration `mapstructure:"cooldown_buffer_max" yaml:"cooldown_buffer_max"`
	StopFile           string        `mapstructure:"stop_file" yaml:"stop_file"`
	RulebookFile       string        `mapstructure:"rulebook_file" yaml:"rulebook_file"`
	QueueSize          int           `mapstructure:"queue_size" yaml:"queue_size"`
	InboxSize          int           `mapstructure:"inbox_size" yaml:"inbox_size"`
}

// InteractionConfig controls outbound REST calls: clicks, trigger messages and cleanup.
type InteractionConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after" yaml:"default_retry_after"`
	FreshMessageLimit int           `mapstructure:"fresh_message_limit" yaml:"fresh_message_limit"`
	DeleteDelay       time.Duration `mapstructure:"delete_delay" yaml:"delete_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	JournalFile       string        `mapstructure:"journal_file" yaml:"journal_file"`
}

// MemoryBackend names a choice memory persistence implementation.
type MemoryBackend string

const (
	MemoryBackendFile     MemoryBackend = "file"
	MemoryBackendSQLite   MemoryBackend = "sqlite"
	MemoryBackendPostgres MemoryBackend = "postgres"
)

// MemoryConfig selects where choice memory is persisted.
type MemoryConfig struct {
	Backend MemoryBackend `mapstructure:"backend" yaml:"backend"`
	Path    string        `mapstructure:"path" yaml:"path"`
	DSN     string        `mapstructure:"dsn" yaml:"-"`
}

// NotifyConfig configures the best-effort webhook notifier.
type NotifyConfig struct {
	WebhookURL        string        `mapstructure:"webhook_url" yaml:"-"`
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HealthConfig configures the liveness endpoint.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// SupervisorConfig bounds the whole-session restart loop.
type SupervisorConfig struct {
	MaxRestarts int           `mapstructure:"max_restarts" yaml:"max_restarts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "advbot")
	v.SetDefault("logger.log_file", "advbot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Discord --
	v.SetDefault("discord.bot_id", "270904126974590976")
	v.SetDefault("discord.api_base", "https://discord.com/api/v9")
	v.SetDefault("discord.gateway_url", "wss://gateway.discord.gg/?v=9&encoding=json")
	v.SetDefault("discord.intents", 33280)
	v.SetDefault("discord.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	// -- Gateway --
	v.SetDefault("gateway.reconnect_delay", "5s")
	v.SetDefault("gateway.stale_after", "120s")
	v.SetDefault("gateway.watchdog_interval", "15s")
	v.SetDefault("gateway.handshake_timeout", "10s")
	v.SetDefault("gateway.write_wait", "10s")
	v.SetDefault("gateway.ready_timeout", "60s")
	v.SetDefault("gateway.send_buffer", 32)

	// -- Adventure --
	v.SetDefault("adventure.trigger", "pls adv")
	v.SetDefault("adventure.command_delay", "6s")
	v.SetDefault("adventure.round_delay", "240s")
	v.SetDefault("adventure.round_slack", "120s")
	v.SetDefault("adventure.adventure_timeout", "10m")
	v.SetDefault("adventure.start_timeout", "20s")
	v.SetDefault("adventure.navigation_wait", "12s")
	v.SetDefault("adventure.choice_delay_min", "3500ms")
	v.SetDefault("adventure.choice_delay_max", "7s")
	v.SetDefault("adventure.start_delay_min", "2s")
	v.SetDefault("adventure.start_delay_max", "4s")
	v.SetDefault("adventure.navigation_delay_min", "3s")
	v.SetDefault("adventure.navigation_delay_max", "5s")
	v.SetDefault("adventure.poll_interval", "5s")
	v.SetDefault("adventure.progress_interval", "10s")
	v.SetDefault("adventure.tick_interval", "1s")
	v.SetDefault("adventure.cooldown_buffer_min", "30s")
	v.SetDefault("adventure.cooldown_buffer_max", "90s")
	v.SetDefault("adventure.stop_file", "stop.txt")
	v.SetDefault("adventure.queue_size", 16)
	v.SetDefault("adventure.inbox_size", 64)

	// -- Interaction --
	v.SetDefault("interaction.max_attempts", 3)
	v.SetDefault("interaction.retry_delay", "2s")
	v.SetDefault("interaction.default_retry_after", "10s")
	v.SetDefault("interaction.fresh_message_limit", 10)
	v.SetDefault("interaction.delete_delay", "10s")
	v.SetDefault("interaction.request_timeout", "20s")
	v.SetDefault("interaction.requests_per_second", 2.0)
	v.SetDefault("interaction.journal_file", "clicked_buttons.jsonl")

	// -- Memory --
	v.SetDefault("memory.backend", string(MemoryBackendFile))
	v.SetDefault("memory.path", "choice_memory.json")

	// -- Notify --
	v.SetDefault("notify.queue_size", 64)
	v.SetDefault("notify.requests_per_second", 0.5)
	v.SetDefault("notify.timeout", "10s")

	// -- Health --
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.addr", ":8080")

	// -- Supervisor --
	v.SetDefault("supervisor.max_restarts", 15)
	v.SetDefault("supervisor.base_backoff", "60s")
	v.SetDefault("supervisor.max_backoff", "5m")
}

// BindEnvironment binds the secrets and the legacy variable names the bot has always
// accepted alongside the ADVBOT_ prefixed ones.
func BindEnvironment(v *viper.Viper) {
	_ = v.BindEnv("discord.token", "ADVBOT_DISCORD_TOKEN", "DISCORD_TOKEN")
	_ = v.BindEnv("discord.channel_id", "ADVBOT_DISCORD_CHANNEL_ID", "DISCORD_CHANNEL_ID")
	_ = v.BindEnv("discord.guild_id", "ADVBOT_DISCORD_GUILD_ID", "DISCORD_GUILD_ID")
	_ = v.BindEnv("notify.webhook_url", "ADVBOT_NOTIFY_WEBHOOK_URL", "WEBHOOK_URL")
	_ = v.BindEnv("memory.dsn", "ADVBOT_MEMORY_DSN")
}

// NewConfigFromViper creates a new, validated configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Unvalidated(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Unvalidated unmarshals v without validation. Offline commands that never touch Discord
// use it so they run without a token.
func Unvalidated(v *viper.Viper) (*Config, error) {
	BindEnvironment(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Discord.Validate(); err != nil {
		return fmt.Errorf("discord configuration invalid: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway configuration invalid: %w", err)
	}
	if err := c.Adventure.Validate(); err != nil {
		return fmt.Errorf("adventure configuration invalid: %w", err)
	}
	if err := c.Interaction.Validate(); err != nil {
		return fmt.Errorf("interaction configuration invalid: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory configuration invalid: %w", err)
	}
	if c.Supervisor.MaxRestarts <= 0 {
		return fmt.Errorf("supervisor.max_restarts must be a positive integer")
	}
	return nil
}

// Validate checks the Discord identity settings.
func (d *DiscordConfig) Validate() error {
	if d.Token == "" {
		return fmt.Errorf("token is required. Set ADVBOT_DISCORD_TOKEN or DISCORD_TOKEN")
	}
	if d.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if d.BotID == "" {
		return fmt.Errorf("bot_id is required")
	}
	if d.APIBase == "" || d.GatewayURL == "" {
		return fmt.Errorf("api_base and gateway_url are required")
	}
	return nil
}

// Validate checks the gateway timers.
func (g *GatewayConfig) Validate() error {
	if g.StaleAfter <= 0 || g.WatchdogInterval <= 0 {
		return fmt.Errorf("stale_after and watchdog_interval must be positive durations")
	}
	if g.WatchdogInterval >= g.StaleAfter {
		return fmt.Errorf("watchdog_interval must be shorter than stale_after")
	}
	if g.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect_delay must not be negative")
	}
	return nil
}

// Validate checks the adventure timers.
func (a *AdventureConfig) Validate() error {
	if a.Trigger == "" {
		return fmt.Errorf("trigger must not be empty")
	}
	if a.AdventureTimeout <= 0 || a.StartTimeout <= 0 {
		return fmt.Errorf("adventure_timeout and start_timeout must be positive durations")
	}
	if a.PollInterval <= 0 || a.ProgressInterval <= 0 || a.TickInterval <= 0 {
		return fmt.Errorf("poll_interval, progress_interval and tick_interval must be positive durations")
	}
	if a.CooldownBufferMax < a.CooldownBufferMin {
		return fmt.Errorf("cooldown_buffer_max must not be smaller than cooldown_buffer_min")
	}
	if a.ChoiceDelayMax < a.ChoiceDelayMin || a.StartDelayMax < a.StartDelayMin || a.NavigationDelayMax < a.NavigationDelayMin {
		return fmt.Errorf("delay maximums must not be smaller than their minimums")
	}
	return nil
}

// Validate checks the click retry policy.
func (i *InteractionConfig) Validate() error {
	if i.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if i.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	return nil
}

// Validate checks the memory backend selection.
func (m *MemoryConfig) Validate() error {
	switch m.Backend {
	case MemoryBackendFile, MemoryBackendSQLite:
		if m.Path == "" {
			return fmt.Errorf("path is required for the %s backend", m.Backend)
		}
	case MemoryBackendPostgres:
		if m.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres backend. Set ADVBOT_MEMORY_DSN")
		}
	default:
		return fmt.Errorf("unknown backend %q", m.Backend)
	}
	return nil
}
