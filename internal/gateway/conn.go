// File: internal/gateway/conn.go
package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Maximum frame size accepted from the gateway.
const maxFrameSize = 4 << 20

var errConnectionClosed = errors.New("gateway connection closed")

// connection is one websocket session. The write pump is its only writer; everything
// else queues frames on send.
type connection struct {
	ws        *websocket.Conn
	gen       uint64
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
	logger    *zap.Logger

	// Unix nanoseconds of the last heartbeat request or ACK.
	lastHeartbeat atomic.Int64
	// Last dispatch sequence number, -1 before the first one.
	seq   atomic.Int64
	stale atomic.Bool
}

func newConnection(ws *websocket.Conn, gen uint64, buffer int, writeWait time.Duration, logger *zap.Logger) *connection {
	if buffer <= 0 {
		buffer = 32
	}
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	c := &connection{
		ws:        ws,
		gen:       gen,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		writeWait: writeWait,
		logger:    logger.With(zap.Uint64("generation", gen)),
	}
	c.seq.Store(-1)
	c.touch()
	ws.SetReadLimit(maxFrameSize)
	return c
}

func (c *connection) touch() {
	c.lastHeartbeat.Store(time.Now().UnixNano())
}

func (c *connection) lastHeartbeatAt() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

// close is safe to call from any goroutine, any number of times.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func (c *connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *connection) enqueue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnectionClosed
	}
}

func (c *connection) heartbeat() error {
	var seq *int64
	if s := c.seq.Load(); s >= 0 {
		seq = &s
	}
	return c.enqueue(heartbeatPayload{Op: OpHeartbeat, Data: seq})
}

// writePump drains send until the connection closes.
func (c *connection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !c.closed() {
					c.logger.Warn("Gateway write failed", zap.Error(err))
				}
				c.close()
				return
			}
		}
	}
}

// heartbeatLoop sends a heartbeat every interval until the connection closes.
func (c *connection) heartbeatLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.heartbeat(); err != nil {
				return
			}
		}
	}
}
