// File: internal/gateway/events.go
package gateway

import (
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/advbot/internal/discord"
)

// Gateway opcodes.
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpReconnect      = 7
	OpInvalidSession = 9
	OpHello          = 10
	OpHeartbeatAck   = 11
)

// Dispatch event names the client reacts to.
const (
	eventReady         = "READY"
	eventMessageCreate = "MESSAGE_CREATE"
	eventMessageUpdate = "MESSAGE_UPDATE"
)

// frame is the envelope of every gateway payload.
type frame struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

// Event is a decoded gateway frame. The concrete types below are the only
// implementations.
type Event interface {
	isEvent()
}

// HeartbeatRequest asks the client to heartbeat immediately.
type HeartbeatRequest struct{}

// Hello carries the heartbeat interval and is the first frame of a connection.
type Hello struct {
	Interval time.Duration
}

// HeartbeatAck acknowledges a client heartbeat.
type HeartbeatAck struct{}

// Ready completes the identify handshake.
type Ready struct {
	SessionID string
	UserID    string
}

// MessageKind tells created messages from edited ones.
type MessageKind string

const (
	MessageCreated MessageKind = "create"
	MessageUpdated MessageKind = "update"
)

// MessageEvent is a MESSAGE_CREATE or MESSAGE_UPDATE dispatch.
type MessageEvent struct {
	Kind    MessageKind
	Message discord.Message
}

// Reconnect asks the client to drop the connection and reconnect.
type Reconnect struct{}

// InvalidSession reports that the session is no longer valid.
type InvalidSession struct {
	Resumable bool
}

// Other is any frame the client does not act on.
type Other struct {
	Op   int
	Type string
}

func (HeartbeatRequest) isEvent() {}
func (Hello) isEvent()            {}
func (HeartbeatAck) isEvent()     {}
func (Ready) isEvent()            {}
func (MessageEvent) isEvent()     {}
func (Reconnect) isEvent()        {}
func (InvalidSession) isEvent()   {}
func (Other) isEvent()            {}

// Decode parses one gateway frame into its event and the sequence number it carries,
// or -1 when it carries none.
func Decode(data []byte) (Event, int64, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, -1, fmt.Errorf("failed to decode gateway frame: %w", err)
	}
	seq := int64(-1)
	if f.Seq != nil {
		seq = *f.Seq
	}

	switch f.Op {
	case OpHeartbeat:
		return HeartbeatRequest{}, seq, nil
	case OpHeartbeatAck:
		return HeartbeatAck{}, seq, nil
	case OpReconnect:
		return Reconnect{}, seq, nil
	case OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(f.Data, &resumable)
		return InvalidSession{Resumable: resumable}, seq, nil
	case OpHello:
		var hello struct {
			HeartbeatInterval int64 `json:"heartbeat_interval"`
		}
		if err := json.Unmarshal(f.Data, &hello); err != nil {
			return nil, seq, fmt.Errorf("failed to decode hello: %w", err)
		}
		return Hello{Interval: time.Duration(hello.HeartbeatInterval) * time.Millisecond}, seq, nil
	case OpDispatch:
		return decodeDispatch(f, seq)
	default:
		return Other{Op: f.Op, Type: f.Type}, seq, nil
	}
}

func decodeDispatch(f frame, seq int64) (Event, int64, error) {
	switch f.Type {
	case eventReady:
		var ready struct {
			SessionID string       `json:"session_id"`
			User      discord.User `json:"user"`
		}
		if err := json.Unmarshal(f.Data, &ready); err != nil {
			return nil, seq, fmt.Errorf("failed to decode READY: %w", err)
		}
		return Ready{SessionID: ready.SessionID, UserID: ready.User.ID}, seq, nil
	case eventMessageCreate, eventMessageUpdate:
		var msg discord.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, seq, fmt.Errorf("failed to decode %s: %w", f.Type, err)
		}
		kind := MessageCreated
		if f.Type == eventMessageUpdate {
			kind = MessageUpdated
		}
		return MessageEvent{Kind: kind, Message: msg}, seq, nil
	default:
		return Other{Op: f.Op, Type: f.Type}, seq, nil
	}
}

type heartbeatPayload struct {
	Op   int    `json:"op"`
	Data *int64 `json:"d"`
}

type identifyPayload struct {
	Op   int          `json:"op"`
	Data identifyData `json:"d"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}
