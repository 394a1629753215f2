package conversation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deskwire/deskwire/internal/attachment"
)

// flexID decodes an identifier the server may send as a number or a string.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string {
	return string(f)
}

// wireMessage is the message-sent payload shape on the channel.
type wireMessage struct {
	ID             flexID `json:"id"`
	ConversationID flexID `json:"conversation_id"`
	UserID         flexID `json:"user_id"`
	User           struct {
		ID           flexID  `json:"id"`
		Name         string  `json:"name"`
		Email        *string `json:"email"`
		ProfilePhoto *string `json:"profile_photo"`
	} `json:"user"`
	Body        string           `json:"body"`
	Attachments []wireAttachment `json:"attachments"`
	CreatedAt   string           `json:"created_at"`
}

type wireAttachment struct {
	ID           flexID `json:"id"`
	AttachmentID flexID `json:"attachment_id"`
	Filename     string `json:"filename"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// wireTyping is the user-typing payload shape.
type wireTyping struct {
	UserID   flexID `json:"user_id"`
	UserName string `json:"user_name"`
}

// createdAtLayouts are tried in order when parsing message timestamps.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// normalizeMessage maps a raw message-sent payload into the canonical
// Message. Every optional field is defensively defaulted so downstream
// consumers never branch on absence; unknown fields are ignored.
func normalizeMessage(raw []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, fmt.Errorf("decode message payload: %w", err)
	}
	senderID := wire.UserID.String()
	if senderID == "" {
		senderID = wire.User.ID.String()
	}
	msg := Message{
		ID:             wire.ID.String(),
		ConversationID: wire.ConversationID.String(),
		SenderID:       senderID,
		Sender: Sender{
			Name:   strings.TrimSpace(wire.User.Name),
			Email:  trimmedOrNil(wire.User.Email),
			Avatar: trimmedOrNil(wire.User.ProfilePhoto),
		},
		Body:        wire.Body,
		Attachments: make([]attachment.Ref, 0, len(wire.Attachments)),
		CreatedAt:   parseCreatedAt(wire.CreatedAt),
	}
	for _, a := range wire.Attachments {
		msg.Attachments = append(msg.Attachments, attachment.Ref{
			ID:       a.ID.String(),
			LegacyID: a.AttachmentID.String(),
			Filename: coalesce(a.Filename, a.Name),
			Mime:     a.MimeType,
			Size:     a.Size,
			URL:      a.URL,
		})
	}
	return msg, nil
}

// normalizeTyping maps a raw user-typing payload into a Typing event. The
// wire payload is channel-scoped and carries no conversation id, so the
// caller stamps the active one.
func normalizeTyping(raw []byte, conversationID string) (Typing, error) {
	var wire wireTyping
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Typing{}, fmt.Errorf("decode typing payload: %w", err)
	}
	return Typing{
		ConversationID: conversationID,
		UserID:         wire.UserID.String(),
		UserName:       strings.TrimSpace(wire.UserName),
	}, nil
}

func parseCreatedAt(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC()
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	// Unix seconds as a final attempt.
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
