// Package broker implements the client side of the realtime push protocol:
// a single shared websocket connection, channel-level subscribe with
// backend authorization, and client-event whispers.
package broker

import (
	"context"
	"encoding/json"
)

// ConnState is the observable lifecycle state of the shared connection.
type ConnState int32

const (
	StateUnknown ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the broker endpoint parameters.
type Config struct {
	Key    string
	Host   string
	Port   int
	Scheme string
}

// Authorizer proves channel membership for private channels. Implementations
// perform the backend round-trip with the connection's socket id and resolve
// to the signed auth payload the broker expects.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (AuthResponse, error)
}

// AuthResponse is the backend's signed authorization payload.
type AuthResponse struct {
	Auth        string          `json:"auth"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

// Subscription is one channel's live listener registration on the shared
// connection.
type Subscription interface {
	// Name returns the channel name.
	Name() string
	// Bind registers the handler for channel events. At most one handler;
	// later calls replace earlier ones.
	Bind(fn func(event string, data []byte))
	// BindSubscribed registers the handler invoked when the broker confirms
	// membership.
	BindSubscribed(fn func())
	// BindError registers the handler invoked when authorization or the
	// subscribe handshake fails for this channel.
	BindError(fn func(err error))
	// Trigger sends a client event (whisper) on the channel. The event name
	// must carry the client- prefix and membership must be confirmed.
	Trigger(event string, data any) error
	// Unsubscribe retires this subscription. A subscription that has
	// already been replaced by a newer one for the same channel name is
	// dropped without touching its successor.
	Unsubscribe() error
}

// Handle is the narrow surface of the shared connection that subscription
// owners interact with.
type Handle interface {
	State() ConnState
	Subscribe(ctx context.Context, name string) (Subscription, error)
	Unsubscribe(name string) error
}

// wire frame names of the push protocol.
const (
	eventConnected        = "pusher:connection_established"
	eventPing             = "pusher:ping"
	eventPong             = "pusher:pong"
	eventError            = "pusher:error"
	eventSubscribe        = "pusher:subscribe"
	eventUnsubscribe      = "pusher:unsubscribe"
	eventSubscribeOK      = "pusher_internal:subscription_succeeded"
	eventSubscribeRefused = "pusher:subscription_error"
	clientEventPrefix     = "client-"
	privateChannelPrefix  = "private-"
	protocolVersion       = "7"
)

// frame is the wire envelope for every broker message.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// frameData unwraps the data field, which the protocol double-encodes as a
// JSON string on server-originated frames.
func frameData(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil {
			return []byte(inner)
		}
	}
	return raw
}
