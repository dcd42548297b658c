// File: internal/gateway/client.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xkilldash9x/advbot/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrNoSession is returned when an operation needs a session id before READY.
	ErrNoSession = errors.New("gateway: no session established")

	errReconnectRequested = errors.New("gateway requested a reconnect")
	errInvalidSession     = errors.New("gateway invalidated the session")
	errStaleConnection    = errors.New("connection went stale")
)

// Dispatcher receives message events in arrival order. Dispatch is called from the read
// loop and must not block for long.
type Dispatcher interface {
	Dispatch(ev MessageEvent)
}

// ReadyListener is implemented by dispatchers that want to see READY events.
type ReadyListener interface {
	OnReady(r Ready)
}

// Client maintains the gateway connection: it dials, identifies, heartbeats, decodes
// frames and redials after every failure with a full handshake.
type Client struct {
	url        string
	token      string
	intents    int
	userAgent  string
	cfg        config.GatewayConfig
	dialer     *websocket.Dialer
	dispatcher Dispatcher
	logger     *zap.Logger

	current    atomic.Pointer[connection]
	generation atomic.Uint64
	sessionID  atomic.Value

	ready     chan struct{}
	readyOnce sync.Once
}

// NewClient creates a gateway client. Nothing is dialed until Run.
func NewClient(dcfg config.DiscordConfig, gcfg config.GatewayConfig, dispatcher Dispatcher, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:        dcfg.GatewayURL,
		token:      dcfg.Token,
		intents:    dcfg.Intents,
		userAgent:  dcfg.UserAgent,
		cfg:        gcfg,
		dispatcher: dispatcher,
		logger:     logger.Named("gateway"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: gcfg.HandshakeTimeout,
		},
		ready: make(chan struct{}),
	}
	c.sessionID.Store("")
	return c
}

// Run keeps a connection alive until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("Gateway client starting.", zap.String("url", c.url))
	defer c.logger.Info("Gateway client stopped.")

	for {
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Gateway connection ended, reconnecting.",
			zap.Error(err),
			zap.Duration("delay", c.cfg.ReconnectDelay))

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	ws, resp, err := c.dialer.DialContext(dialCtx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	conn := newConnection(ws, c.generation.Add(1), c.cfg.SendBuffer, c.cfg.WriteWait, c.logger)
	c.current.Store(conn)
	defer c.current.CompareAndSwap(conn, nil)
	conn.logger.Info("Gateway connected.")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		conn.writePump()
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.close()
		case <-conn.done:
		}
	}()

	err = c.serve(conn, &wg)
	conn.close()
	wg.Wait()
	return err
}

// serve reads frames until the connection fails or the gateway asks for a reconnect.
func (c *Client) serve(conn *connection, wg *sync.WaitGroup) error {
	heartbeating := false
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if conn.stale.Load() {
				return errStaleConnection
			}
			return fmt.Errorf("gateway read failed: %w", err)
		}

		ev, seq, err := Decode(data)
		if err != nil {
			conn.logger.Warn("Dropping undecodable gateway frame", zap.Error(err))
			continue
		}
		if seq >= 0 {
			conn.seq.Store(seq)
		}

		switch e := ev.(type) {
		case Hello:
			conn.touch()
			if err := conn.enqueue(c.identify()); err != nil {
				return fmt.Errorf("failed to identify: %w", err)
			}
			if !heartbeating {
				heartbeating = true
				wg.Add(1)
				go func() {
					defer wg.Done()
					conn.heartbeatLoop(e.Interval)
				}()
			}
		case HeartbeatRequest:
			conn.touch()
			if err := conn.heartbeat(); err != nil {
				return fmt.Errorf("failed to answer heartbeat: %w", err)
			}
		case HeartbeatAck:
			conn.touch()
		case Ready:
			c.sessionID.Store(e.SessionID)
			c.readyOnce.Do(func() { close(c.ready) })
			conn.logger.Info("Gateway session ready.", zap.String("session_id", e.SessionID))
			if l, ok := c.dispatcher.(ReadyListener); ok {
				l.OnReady(e)
			}
		case MessageEvent:
			c.dispatcher.Dispatch(e)
		case Reconnect:
			return errReconnectRequested
		case InvalidSession:
			return errInvalidSession
		}
	}
}

func (c *Client) identify() identifyPayload {
	return identifyPayload{
		Op: OpIdentify,
		Data: identifyData{
			Token:   c.token,
			Intents: c.intents,
			Properties: identifyProperties{
				OS:      "linux",
				Browser: "chrome",
				Device:  "computer",
			},
		},
	}
}

// Watchdog closes the current connection when its last heartbeat is older than
// stale_after, which makes Run redial.
func (c *Client) Watchdog(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.checkStale(now)
		}
	}
}

func (c *Client) checkStale(now time.Time) bool {
	conn := c.current.Load()
	if conn == nil || conn.closed() {
		return false
	}
	silent := now.Sub(conn.lastHeartbeatAt())
	if silent <= c.cfg.StaleAfter {
		return false
	}
	conn.logger.Warn("Gateway connection is stale, replacing it.", zap.Duration("silent_for", silent))
	conn.stale.Store(true)
	conn.close()
	return true
}

// SessionID returns the session id from the latest READY, or "".
func (c *Client) SessionID() string {
	return c.sessionID.Load().(string)
}

// WaitReady blocks until the first READY or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNoSession, ctx.Err())
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	conn := c.current.Load()
	return conn != nil && !conn.closed()
}

// Generation is the number of connections dialed so far.
func (c *Client) Generation() uint64 {
	return c.generation.Load()
}
