package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrConnClosed indicates the socket is closing or closed and cannot
	// carry further frames.
	ErrConnClosed = errors.New("broker connection closing or closed")
	// ErrNotSubscribed indicates a client event was triggered on a channel
	// whose membership the broker has not confirmed.
	ErrNotSubscribed = errors.New("channel not subscribed")
)

// AuthorizationError reports that the backend refused membership on a
// private channel. It is scoped to one channel; the shared connection
// remains usable.
type AuthorizationError struct {
	Channel string
	Status  int
	Err     error
}

func (e *AuthorizationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authorization refused for channel %s (status %d)", e.Channel, e.Status)
	}
	return fmt.Sprintf("authorization failed for channel %s: %v", e.Channel, e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// SubscriptionError reports that the broker rejected a subscribe request
// after the authorizer round-trip succeeded.
type SubscriptionError struct {
	Channel string
	Reason  string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription rejected for channel %s: %s", e.Channel, e.Reason)
}
