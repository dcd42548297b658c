// File: internal/discord/client.go
package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/advbot/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseBody = 1 << 20

// Client is a minimal REST client for the calls the bot needs: invoking components,
// posting and deleting the trigger message, and reading recent channel history.
type Client struct {
	baseURL           string
	token             string
	userAgent         string
	defaultRetryAfter time.Duration
	httpClient        *http.Client
	limiter           *rate.Limiter
	logger            *zap.Logger
	nonce             func() string
}

// NewClient creates a REST client. A nil httpClient gets a default with the configured
// request timeout.
func NewClient(dcfg config.DiscordConfig, icfg config.InteractionConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: icfg.RequestTimeout}
	}
	rps := icfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	retryAfter := icfg.DefaultRetryAfter
	if retryAfter <= 0 {
		retryAfter = 10 * time.Second
	}
	return &Client{
		baseURL:           strings.TrimRight(dcfg.APIBase, "/"),
		token:             dcfg.Token,
		userAgent:         dcfg.UserAgent,
		defaultRetryAfter: retryAfter,
		httpClient:        httpClient,
		limiter:           rate.NewLimiter(rate.Limit(rps), 1),
		logger:            logger.Named("discord"),
		nonce:             randomNonce,
	}
}

// randomNonce returns an 18 digit numeric string.
func randomNonce() string {
	return strconv.FormatInt(rand.Int64N(9e17)+1e17, 10)
}

// InvokeComponent presses a button on a message.
func (c *Client) InvokeComponent(ctx context.Context, in Interaction) error {
	payload := interactionPayload{
		Type:          InteractionTypeMessageComponent,
		Nonce:         c.nonce(),
		GuildID:       in.GuildID,
		ChannelID:     in.ChannelID,
		MessageID:     in.MessageID,
		ApplicationID: in.ApplicationID,
		SessionID:     in.SessionID,
		Data: interactionComponent{
			ComponentType: ComponentTypeButton,
			CustomID:      in.CustomID,
		},
	}
	return c.do(ctx, http.MethodPost, "/interactions", payload, nil)
}

// SendMessage posts content to a channel and returns the created message.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (*Message, error) {
	body := map[string]any{"content": content, "nonce": c.nonce(), "tts": false}
	var msg Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// RecentMessages returns up to limit of the newest messages in a channel, newest first.
func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	path := "/channels/" + url.PathEscape(channelID) + "/messages?limit=" + strconv.Itoa(limit)
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), 200),
		}
		if apiErr.RateLimited() {
			apiErr.RetryAfter = c.retryAfter(resp.Header, data)
		}
		c.logger.Debug("REST call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// retryAfter reads the wait hint from the Retry-After header or the JSON body, falling
// back to the configured default.
func (c *Client) retryAfter(h http.Header, body []byte) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	var hint struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &hint); err == nil && hint.RetryAfter > 0 {
		return time.Duration(hint.RetryAfter * float64(time.Second))
	}
	return c.defaultRetryAfter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
