package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Client is the shared connection to the realtime broker. One Client serves
// every channel in the process; construction goes through Provider.
type Client struct {
	id         string
	cfg        Config
	authorizer Authorizer
	logger     *slog.Logger

	conn     *websocket.Conn
	socketID string
	state    atomic.Int32
	done     chan struct{}

	mu       sync.Mutex
	channels map[string]*Channel
	writeMu  sync.Mutex
}

// Connect dials the broker, completes the connection handshake, and starts
// the read loop. The returned client is ready for Subscribe calls.
func Connect(ctx context.Context, log *slog.Logger, cfg Config, authorizer Authorizer) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		id:         uuid.NewString(),
		cfg:        cfg,
		authorizer: authorizer,
		done:       make(chan struct{}),
		channels:   map[string]*Channel{},
	}
	c.logger = log.With(slog.String("component", "broker"), slog.String("conn_id", c.id))

	u := url.URL{
		Scheme:   cfg.Scheme,
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/app/" + cfg.Key,
		RawQuery: "protocol=" + protocolVersion,
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	c.conn = conn

	// The broker speaks first: wait for connection_established to learn the
	// socket id the authorizer needs.
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if f.Event != eventConnected {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected handshake event %q", f.Event)
	}
	var established struct {
		SocketID string `json:"socket_id"`
	}
	if err := json.Unmarshal(frameData(f.Data), &established); err != nil || established.SocketID == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("malformed handshake payload")
	}
	c.socketID = established.SocketID
	c.state.Store(int32(StateOpen))
	c.logger.Info("broker connected", slog.String("socket_id", c.socketID))

	go c.readLoop()
	return c, nil
}

// State returns the connection's current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// SocketID returns the broker-assigned socket identifier.
func (c *Client) SocketID() string {
	return c.socketID
}

// Subscribe registers a channel and begins the subscribe handshake. The
// returned Subscription is live immediately so listeners can be bound before
// the broker confirms; confirmation or failure arrives through the
// subscription's own callbacks. For private channels the authorizer
// round-trip runs asynchronously and its failure is scoped to this channel.
func (c *Client) Subscribe(ctx context.Context, name string) (Subscription, error) {
	if c.State() != StateOpen {
		return nil, ErrConnClosed
	}
	ch := &Channel{name: name, client: c}
	c.mu.Lock()
	c.channels[name] = ch
	c.mu.Unlock()

	go c.completeSubscribe(ctx, ch)
	return ch, nil
}

func (c *Client) completeSubscribe(ctx context.Context, ch *Channel) {
	var auth AuthResponse
	if isPrivate(ch.name) {
		if c.authorizer == nil {
			ch.dispatchError(&AuthorizationError{Channel: ch.name, Err: fmt.Errorf("no authorizer configured")})
			return
		}
		resp, err := c.authorizer.Authorize(ctx, c.socketID, ch.name)
		if err != nil {
			c.logger.Warn("channel authorization failed", slog.String("channel", ch.name), slog.Any("error", err))
			ch.dispatchError(err)
			return
		}
		auth = resp
	}
	payload := map[string]any{"channel": ch.name}
	if auth.Auth != "" {
		payload["auth"] = auth.Auth
	}
	if len(auth.ChannelData) > 0 {
		payload["channel_data"] = json.RawMessage(auth.ChannelData)
	}
	if err := c.send(frameOut{Event: eventSubscribe, Data: payload}); err != nil {
		c.logger.Warn("subscribe send failed", slog.String("channel", ch.name), slog.Any("error", err))
		ch.dispatchError(err)
	}
}

// Unsubscribe sends the unsubscribe frame and removes the channel's listener
// registration. Returns ErrConnClosed when the socket can no longer carry
// the frame; the registration is removed either way.
func (c *Client) Unsubscribe(name string) error {
	c.mu.Lock()
	delete(c.channels, name)
	c.mu.Unlock()
	if c.State() != StateOpen {
		return ErrConnClosed
	}
	return c.send(frameOut{Event: eventUnsubscribe, Data: map[string]any{"channel": name}})
}

// unsubscribe retires one specific channel. The map entry is only removed
// when it still belongs to ch; a stale channel whose name has been re-taken
// by a newer subscription must not evict its successor or put an
// unsubscribe frame for it on the wire.
func (c *Client) unsubscribe(ch *Channel) error {
	c.mu.Lock()
	live := c.channels[ch.name] == ch
	if live {
		delete(c.channels, ch.name)
	}
	c.mu.Unlock()
	if !live {
		return nil
	}
	if c.State() != StateOpen {
		return ErrConnClosed
	}
	return c.send(frameOut{Event: eventUnsubscribe, Data: map[string]any{"channel": ch.name}})
}

// Close tears down the connection: state moves through Closing to Closed and
// the socket is closed. Safe to call more than once.
func (c *Client) Close() error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		// The read loop may have observed the death first; make sure the
		// socket is actually released.
		c.state.Store(int32(StateClosed))
		_ = c.conn.Close()
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.state.Store(int32(StateClosed))
	c.logger.Info("broker disconnected")
	return err
}

// frameOut is the client-to-broker envelope. Data stays structured; only
// server frames double-encode it.
type frameOut struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (c *Client) send(f frameOut) error {
	if c.State() != StateOpen {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if c.State() == StateOpen {
				c.state.Store(int32(StateClosed))
				_ = c.conn.Close()
				c.logger.Warn("broker read loop ended", slog.Any("error", err))
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Event {
	case eventPing:
		_ = c.send(frameOut{Event: eventPong})
		return
	case eventError:
		c.logger.Warn("broker error frame", slog.String("data", string(f.Data)))
		return
	}
	if f.Channel == "" {
		return
	}
	c.mu.Lock()
	ch := c.channels[f.Channel]
	c.mu.Unlock()
	if ch == nil {
		// Late frame for a retired channel; drop it.
		return
	}
	switch f.Event {
	case eventSubscribeOK:
		ch.dispatchSubscribed()
	case eventSubscribeRefused:
		var detail struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(frameData(f.Data), &detail)
		ch.dispatchError(&SubscriptionError{Channel: f.Channel, Reason: detail.Message})
	default:
		ch.dispatchEvent(f.Event, frameData(f.Data))
	}
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func isPrivate(name string) bool {
	return len(name) > len(privateChannelPrefix) && name[:len(privateChannelPrefix)] == privateChannelPrefix
}
