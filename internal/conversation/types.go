// Package conversation manages the live subscription for the currently open
// conversation: one private channel at a time, normalized inbound events,
// and best-effort typing signals.
package conversation

import (
	"time"

	"github.com/deskwire/deskwire/internal/attachment"
)

// Sender is the normalized display identity of a message author.
type Sender struct {
	Name   string
	Email  *string
	Avatar *string
}

// Message is the canonical in-app message shape. It is produced only by the
// inbound normalizer and immutable after creation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Sender         Sender
	Body           string
	Attachments    []attachment.Ref
	CreatedAt      time.Time
}

// Typing is an ephemeral typing signal from another participant.
type Typing struct {
	ConversationID string
	UserID         string
	UserName       string
}

// EventKind tags the events delivered through the manager's handler.
type EventKind string

const (
	KindMessage    EventKind = "message"
	KindTyping     EventKind = "typing"
	KindSubscribed EventKind = "subscribed"
	KindError      EventKind = "error"
)

// Event is the tagged envelope dispatched to the caller's handler. Exactly
// the field matching Kind is populated.
type Event struct {
	Kind           EventKind
	ConversationID string
	Message        *Message
	Typing         *Typing
	Err            error
}

// EventHandler receives every event for the active subscription. Handlers
// run on the transport's read goroutine and must not block.
type EventHandler func(Event)
