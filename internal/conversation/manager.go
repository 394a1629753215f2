package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deskwire/deskwire/internal/broker"
)

const (
	channelPrefix = "private-chat."

	eventMessageSent  = "message-sent"
	eventUserTyping   = "user-typing"
	eventClientTyping = "client-typing"

	// DefaultShutdownGrace is the pause between unsubscribing the active
	// channel and disconnecting the shared transport, giving the
	// unsubscribe frame time to leave before the socket goes away. The
	// wire protocol has no unsubscribe acknowledgment to wait on instead.
	DefaultShutdownGrace = 300 * time.Millisecond
)

// State is the manager's subscription lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateSubscribing   State = "subscribing"
	StateSubscribed    State = "subscribed"
	StateUnsubscribing State = "unsubscribing"
	StateError         State = "error"
)

// HandleProvider supplies the shared broker connection. *broker.Provider
// satisfies it; tests substitute fakes.
type HandleProvider interface {
	Handle(ctx context.Context) (broker.Handle, error)
	Disconnect()
}

// Sketch of the lifecycle: Idle → Subscribing → Subscribed → Unsubscribing
// → Idle, with Error reachable from Subscribing. At most one subscription is
// live per manager; selecting a new conversation retires the previous one
// before the new channel is requested, so no two listeners can fire for
// overlapping conversations.
type Manager struct {
	provider HandleProvider
	logger   *slog.Logger

	userID   string
	userName string
	grace    time.Duration

	mu             sync.Mutex
	state          State
	epoch          uint64
	conversationID string
	handle         broker.Handle
	channel        broker.Subscription
	handler        EventHandler
}

// NewManager creates a subscription manager. userID and userName identify
// the local participant on outbound typing whispers.
func NewManager(log *slog.Logger, provider HandleProvider, userID, userName string) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider: provider,
		logger:   log.With(slog.String("component", "conversation")),
		userID:   userID,
		userName: userName,
		grace:    DefaultShutdownGrace,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConversationID returns the id of the active subscription, if any.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Subscribe opens the live channel for a conversation and routes its events
// to handler. Any previous subscription is fully retired first. A late
// confirmation or failure belonging to a retired subscription is dropped.
func (m *Manager) Subscribe(ctx context.Context, conversationID string, handler EventHandler) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrNoConversation
	}

	m.mu.Lock()
	if m.channel != nil {
		m.retireLocked()
	}
	m.epoch++
	epoch := m.epoch
	m.state = StateSubscribing
	m.conversationID = conversationID
	m.handler = handler
	m.mu.Unlock()

	handle, err := m.provider.Handle(ctx)
	if err != nil {
		m.failSubscribe(epoch, err)
		return err
	}
	channel, err := handle.Subscribe(ctx, channelName(conversationID))
	if err != nil {
		m.failSubscribe(epoch, err)
		return err
	}

	channel.Bind(func(event string, data []byte) {
		m.handleChannelEvent(epoch, conversationID, event, data)
	})
	channel.BindSubscribed(func() {
		m.handleSubscribed(epoch, conversationID)
	})
	channel.BindError(func(err error) {
		m.handleChannelError(epoch, conversationID, err)
	})

	m.mu.Lock()
	if m.epoch != epoch {
		// A newer Subscribe raced in; this channel is already stale.
		// Retiring by identity keeps a same-conversation successor, which
		// shares the channel name, untouched.
		m.mu.Unlock()
		_ = channel.Unsubscribe()
		return nil
	}
	m.handle = handle
	m.channel = channel
	m.mu.Unlock()

	m.logger.Info("subscribing", slog.String("conversation_id", conversationID))
	return nil
}

// Unsubscribe retires the active subscription. It is idempotent; a second
// call with nothing active is a no-op. Failures during teardown are logged
// and absorbed so teardown always completes from the caller's point of view.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retireLocked()
}

// retireLocked tears down the held channel. The transport's connection
// state is inspected first: against a closing or closed socket the
// unsubscribe frame is skipped outright, since issuing it would only
// produce a benign error. The held references are cleared regardless of
// how the unsubscribe call fared, so no dangling reference survives.
func (m *Manager) retireLocked() {
	channel := m.channel
	if channel == nil {
		m.state = StateIdle
		m.conversationID = ""
		return
	}
	m.state = StateUnsubscribing

	state := broker.StateUnknown
	if m.handle != nil {
		state = m.handle.State()
	}
	switch {
	case state == broker.StateClosing || state == broker.StateClosed:
		m.logger.Info("unsubscribe skipped, transport already closing",
			slog.String("conversation_id", m.conversationID),
			slog.String("conn_state", state.String()),
		)
	default:
		if err := channel.Unsubscribe(); err != nil {
			if isBenignTeardown(err) {
				m.logger.Info("unsubscribe raced transport close",
					slog.String("conversation_id", m.conversationID),
					slog.Any("error", err),
				)
			} else {
				m.logger.Warn("unsubscribe failed",
					slog.String("conversation_id", m.conversationID),
					slog.Any("error", err),
				)
			}
		}
	}

	m.channel = nil
	m.handle = nil
	m.conversationID = ""
	m.handler = nil
	m.state = StateIdle
}

// SendTyping whispers a typing signal on the active channel. Best-effort:
// with no active channel it is a no-op, and a failed whisper is logged and
// swallowed; typing indicators never interrupt the caller.
func (m *Manager) SendTyping(conversationID string) {
	m.mu.Lock()
	channel := m.channel
	active := m.conversationID
	m.mu.Unlock()
	if channel == nil || active != strings.TrimSpace(conversationID) {
		return
	}
	payload := map[string]string{
		"user_id":   m.userID,
		"user_name": m.userName,
	}
	if err := channel.Trigger(eventClientTyping, payload); err != nil {
		m.logger.Debug("typing whisper dropped",
			slog.String("conversation_id", active),
			slog.Any("error", err),
		)
	}
}

// Shutdown retires the active subscription, waits a short grace period for
// the unsubscribe frame to get on the wire, then disconnects the shared
// transport. Disconnecting first would race the unsubscribe against an
// already-torn-down socket.
func (m *Manager) Shutdown(ctx context.Context) {
	m.Unsubscribe()
	select {
	case <-ctx.Done():
	case <-time.After(m.grace):
	}
	m.provider.Disconnect()
	m.logger.Info("shutdown complete")
}

func (m *Manager) failSubscribe(epoch uint64, err error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	handler := m.handler
	conversationID := m.conversationID
	m.mu.Unlock()
	m.logger.Error("subscribe failed",
		slog.String("conversation_id", conversationID),
		slog.Any("error", err),
	)
	if handler != nil {
		handler(Event{Kind: KindError, ConversationID: conversationID, Err: err})
	}
}

func (m *Manager) handleSubscribed(epoch uint64, conversationID string) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.state = StateSubscribed
	handler := m.handler
	m.mu.Unlock()
	m.logger.Info("subscribed", slog.String("conversation_id", conversationID))
	if handler != nil {
		handler(Event{Kind: KindSubscribed, ConversationID: conversationID})
	}
}

func (m *Manager) handleChannelError(epoch uint64, conversationID string, err error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	handler := m.handler
	m.mu.Unlock()
	m.logger.Warn("channel error",
		slog.String("conversation_id", conversationID),
		slog.Any("error", err),
	)
	if handler != nil {
		handler(Event{Kind: KindError, ConversationID: conversationID, Err: err})
	}
}

func (m *Manager) handleChannelEvent(epoch uint64, conversationID, event string, data []byte) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return
	}
	switch event {
	case eventMessageSent:
		msg, err := normalizeMessage(data)
		if err != nil {
			m.logger.Warn("malformed message payload",
				slog.String("conversation_id", conversationID),
				slog.Any("error", err),
			)
			return
		}
		handler(Event{Kind: KindMessage, ConversationID: conversationID, Message: &msg})
	case eventUserTyping, eventClientTyping:
		typing, err := normalizeTyping(data, conversationID)
		if err != nil {
			m.logger.Warn("malformed typing payload",
				slog.String("conversation_id", conversationID),
				slog.Any("error", err),
			)
			return
		}
		handler(Event{Kind: KindTyping, ConversationID: conversationID, Typing: &typing})
	default:
		// Forward-compatible: unknown broker events are ignored.
	}
}

// SetShutdownGrace overrides the unsubscribe-to-disconnect grace period.
func (m *Manager) SetShutdownGrace(d time.Duration) {
	if d >= 0 {
		m.grace = d
	}
}

func channelName(conversationID string) string {
	return channelPrefix + conversationID
}

// isBenignTeardown classifies unsubscribe errors caused by the socket
// already being closed; these are expected during teardown races.
func isBenignTeardown(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, broker.ErrConnClosed) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "closing or closed")
}
