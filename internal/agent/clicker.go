// internal/agent/clicker.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/advbot/internal/adventure"
	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/discord"
	"github.com/xkilldash9x/advbot/internal/gateway"
	"github.com/xkilldash9x/advbot/internal/retry"
	"go.uber.org/zap"
)

// API is the slice of the REST client the clicker needs.
type API interface {
	InvokeComponent(ctx context.Context, in discord.Interaction) error
	RecentMessages(ctx context.Context, channelID string, limit int) ([]discord.Message, error)
}

// SessionSource supplies the gateway session id that interactions must carry.
type SessionSource interface {
	SessionID() string
}

// ClickRequest identifies the button to press.
type ClickRequest struct {
	MessageID   string
	Button      adventure.Button
	Reason      string
	Fingerprint string
}

// ClickResult describes the click that was finally delivered, which may differ from the
// request after the fresh-message fallback.
type ClickResult struct {
	MessageID string
	Button    adventure.Button
	Attempts  int
	Fallback  bool
}

// Clicker delivers component interactions with bounded retries.
type Clicker struct {
	api      API
	sessions SessionSource
	journal  Journal
	logger   *zap.Logger

	channelID   string
	guildID     string
	botID       string
	maxAttempts int
	retryDelay  time.Duration
	freshLimit  int

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClicker creates a clicker. A nil journal records nothing.
func NewClicker(dcfg config.DiscordConfig, icfg config.InteractionConfig, api API, sessions SessionSource, journal Journal, logger *zap.Logger) *Clicker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = nopJournal{}
	}
	maxAttempts := icfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	freshLimit := icfg.FreshMessageLimit
	if freshLimit <= 0 {
		freshLimit = 10
	}
	return &Clicker{
		api:         api,
		sessions:    sessions,
		journal:     journal,
		logger:      logger.Named("clicker"),
		channelID:   dcfg.ChannelID,
		guildID:     dcfg.GuildID,
		botID:       dcfg.BotID,
		maxAttempts: maxAttempts,
		retryDelay:  icfg.RetryDelay,
		freshLimit:  freshLimit,
		sleep:       retry.Sleep,
	}
}

// Click presses req.Button. A 400 or 404 switches once to an equivalent button on a fresh
// message, a 429 waits for the advertised Retry-After, and any other failure waits
// retry_delay. The attempt count is bounded by max_attempts.
func (c *Clicker) Click(ctx context.Context, req ClickRequest) (ClickResult, error) {
	res := ClickResult{MessageID: req.MessageID, Button: req.Button}
	var lastErr error

	for res.Attempts < c.maxAttempts {
		sessionID := c.sessions.SessionID()
		if sessionID == "" {
			return res, &ClickError{Code: ErrCodeNoSession, CustomID: res.Button.CustomID, Attempts: res.Attempts, Err: gateway.ErrNoSession}
		}

		res.Attempts++
		err := c.api.InvokeComponent(ctx, discord.Interaction{
			ApplicationID: c.botID,
			GuildID:       c.guildID,
			ChannelID:     c.channelID,
			MessageID:     res.MessageID,
			SessionID:     sessionID,
			CustomID:      res.Button.CustomID,
		})
		if err == nil {
			c.logger.Info("Clicked button",
				zap.String("label", res.Button.Label),
				zap.String("custom_id", res.Button.CustomID),
				zap.Int("attempts", res.Attempts),
				zap.Bool("fallback", res.Fallback))
			c.record(req, res)
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return res, &ClickError{Code: ErrCodeCancelled, CustomID: res.Button.CustomID, Attempts: res.Attempts, Err: ctx.Err()}
		}

		wait := c.retryDelay
		if apiErr, ok := discord.AsAPIError(err); ok {
			switch {
			case apiErr.RateLimited():
				wait = apiErr.RetryAfter
				c.logger.Warn("Click rate limited", zap.Duration("retry_after", wait))
			case apiErr.Stale():
				if res.Fallback {
					return res, &ClickError{Code: ErrCodeStaleMessage, CustomID: res.Button.CustomID, Attempts: res.Attempts, Err: err}
				}
				msgID, btn, ferr := c.findEquivalent(ctx, res.Button)
				if ferr != nil {
					return res, &ClickError{Code: ErrCodeNoEquivalent, CustomID: res.Button.CustomID, Attempts: res.Attempts, Err: errors.Join(err, ferr)}
				}
				c.logger.Info("Retrying click on a fresh message",
					zap.String("message_id", msgID),
					zap.String("label", btn.Label))
				res.MessageID, res.Button, res.Fallback = msgID, btn, true
				continue
			}
		} else {
			c.logger.Warn("Click failed", zap.Error(err), zap.Int("attempt", res.Attempts))
		}

		if res.Attempts >= c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, wait); err != nil {
			return res, &ClickError{Code: ErrCodeCancelled, CustomID: res.Button.CustomID, Attempts: res.Attempts, Err: err}
		}
	}
	return res, &ClickError{Code: ErrCodeAttemptsExceeded, CustomID: res.Button.CustomID, Attempts: res.Attempts, Err: lastErr}
}

// findEquivalent scans recent bot messages, newest first, for an enabled button with the
// same label or the same custom id prefix, then for any enabled navigation button.
func (c *Clicker) findEquivalent(ctx context.Context, original adventure.Button) (string, adventure.Button, error) {
	msgs, err := c.api.RecentMessages(ctx, c.channelID, c.freshLimit)
	if err != nil {
		return "", adventure.Button{}, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	prefix := customIDPrefix(original.CustomID)
	for i := range msgs {
		msg := &msgs[i]
		if msg.AuthorID() != c.botID || len(msg.Components) == 0 {
			continue
		}
		buttons := adventure.ExtractButtons(msg.Components)
		for _, b := range buttons {
			if b.Enabled() && (b.Label == original.Label || customIDPrefix(b.CustomID) == prefix) {
				return msg.ID, b, nil
			}
		}
		if nav, ok := adventure.FirstEnabled(buttons, adventure.KindNavigation); ok {
			return msg.ID, nav, nil
		}
	}
	return "", adventure.Button{}, errors.New("no equivalent button on recent messages")
}

func customIDPrefix(id string) string {
	prefix, _, _ := strings.Cut(id, ":")
	return prefix
}

func (c *Clicker) record(req ClickRequest, res ClickResult) {
	err := c.journal.Append(ClickRecord{
		Time:        time.Now().UTC(),
		MessageID:   res.MessageID,
		CustomID:    res.Button.CustomID,
		Label:       res.Button.Label,
		Reason:      req.Reason,
		Fingerprint: req.Fingerprint,
		Attempts:    res.Attempts,
		Fallback:    res.Fallback,
	})
	if err != nil {
		c.logger.Warn("Failed to append to click journal", zap.Error(err))
	}
}
