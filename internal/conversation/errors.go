package conversation

import "errors"

var (
	// ErrNoConversation indicates Subscribe was called with an empty
	// conversation id.
	ErrNoConversation = errors.New("conversation id is required")
)
