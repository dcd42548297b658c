// File: internal/notify/notify.go
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/advbot/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier delivers best-effort status messages. Notify never blocks.
type Notifier interface {
	Notify(msg string)
	Run(ctx context.Context) error
}

// New returns a webhook notifier, or Nop when no URL is configured.
func New(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	if cfg.WebhookURL == "" {
		return Nop{}
	}
	return NewWebhook(cfg, nil, logger)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(string) {}

func (Nop) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Webhook posts messages to a Discord webhook from a bounded queue. Messages that do not
// fit in the queue, and messages whose delivery fails, are dropped.
type Webhook struct {
	url        string
	queue      chan string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewWebhook creates a webhook notifier. A nil httpClient gets the configured timeout.
func NewWebhook(cfg config.NotifyConfig, httpClient *http.Client, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Webhook{
		url:        cfg.WebhookURL,
		queue:      make(chan string, size),
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: httpClient,
		logger:     logger.Named("notify"),
		now:        time.Now,
	}
}

// Notify queues msg, stamped with the time it was raised, for delivery.
func (w *Webhook) Notify(msg string) {
	select {
	case w.queue <- Stamp(w.now(), msg):
	default:
		w.logger.Debug("Notification queue full, dropping message", zap.String("message", msg))
	}
}

// Run delivers queued messages until ctx ends.
func (w *Webhook) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-w.queue:
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := w.post(ctx, msg); err != nil {
				w.logger.Warn("Failed to deliver notification", zap.Error(err))
			}
		}
	}
}

func (w *Webhook) post(ctx context.Context, msg string) error {
	body, err := json.Marshal(map[string]string{"content": msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Stamp prefixes msg with the local wall-clock time.
func Stamp(now time.Time, msg string) string {
	return now.Format("15:04:05") + " " + msg
}
