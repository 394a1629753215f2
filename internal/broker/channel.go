package broker

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Channel is the Subscription implementation backed by a Client. Handlers
// are invoked from the connection's read loop; they must not block.
type Channel struct {
	name   string
	client *Client

	subscribed atomic.Bool

	mu           sync.Mutex
	onEvent      func(event string, data []byte)
	onSubscribed func()
	onError      func(err error)
}

// Name returns the channel name.
func (ch *Channel) Name() string {
	return ch.name
}

// Bind registers the channel event handler.
func (ch *Channel) Bind(fn func(event string, data []byte)) {
	ch.mu.Lock()
	ch.onEvent = fn
	ch.mu.Unlock()
}

// BindSubscribed registers the membership-confirmed handler.
func (ch *Channel) BindSubscribed(fn func()) {
	ch.mu.Lock()
	ch.onSubscribed = fn
	ch.mu.Unlock()
}

// BindError registers the channel-scoped failure handler.
func (ch *Channel) BindError(fn func(err error)) {
	ch.mu.Lock()
	ch.onError = fn
	ch.mu.Unlock()
}

// Subscribed reports whether the broker has confirmed membership.
func (ch *Channel) Subscribed() bool {
	return ch.subscribed.Load()
}

// Trigger sends a client event on the channel. The broker only relays
// client events on confirmed private channels, so both are enforced here.
func (ch *Channel) Trigger(event string, data any) error {
	if !strings.HasPrefix(event, clientEventPrefix) {
		return fmt.Errorf("client events must be prefixed with %q", clientEventPrefix)
	}
	if !ch.subscribed.Load() {
		return ErrNotSubscribed
	}
	return ch.client.send(frameOut{Event: event, Channel: ch.name, Data: data})
}

// Unsubscribe retires this subscription by identity. If a newer subscription
// has since taken over the channel name, only this one is dropped; the
// successor keeps its registration.
func (ch *Channel) Unsubscribe() error {
	return ch.client.unsubscribe(ch)
}

func (ch *Channel) dispatchSubscribed() {
	ch.subscribed.Store(true)
	ch.mu.Lock()
	fn := ch.onSubscribed
	ch.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (ch *Channel) dispatchError(err error) {
	ch.mu.Lock()
	fn := ch.onError
	ch.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (ch *Channel) dispatchEvent(event string, data []byte) {
	ch.mu.Lock()
	fn := ch.onEvent
	ch.mu.Unlock()
	if fn != nil {
		fn(event, data)
	}
}
