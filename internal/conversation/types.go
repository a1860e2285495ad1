package conversation

import (
	"strings"
	"time"
)

// Status is the operator-facing conversation lifecycle state. Inbound
// activity never changes status; transitions are explicit operator actions.
type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusSnoozed  Status = "snoozed"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.TrimSpace(strings.ToLower(raw)))
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusSnoozed:
		return s, true
	}
	return "", false
}

// Direction marks a message as received from or sent to the contact.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

const (
	// PreviewMaxLen bounds the conversation rollup preview.
	PreviewMaxLen = 300
	// MediaPlaceholder is the preview used for body-less media messages.
	MediaPlaceholder = "[Media]"
)

// Conversation is the unified thread with one external contact on one channel.
type Conversation struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`

	ExternalPhone          string `json:"external_phone,omitempty"`
	ExternalEmail          string `json:"external_email,omitempty"`
	ExternalSocialID       string `json:"external_social_id,omitempty"`
	ExternalSocialUsername string `json:"external_social_username,omitempty"`
	ExternalProfilePic     string `json:"external_profile_pic,omitempty"`
	ExternalName           string `json:"external_name,omitempty"`

	LeadID   string `json:"lead_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`

	Status           Status    `json:"status"`
	SnoozedUntil     time.Time `json:"snoozed_until,omitzero"`
	AssignedToUserID string    `json:"assigned_to_user_id,omitempty"`

	LastMessageAt      time.Time `json:"last_message_at,omitzero"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	UnreadCount        int       `json:"unread_count"`
	IsActive           bool      `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one immutable conversation entry. Only the owning
// conversation's rollup fields change after creation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      Direction `json:"direction"`
	IsInternal     bool      `json:"is_internal"`
	SenderUserID   string    `json:"sender_user_id,omitempty"`

	Text    string `json:"message_text,omitempty"`
	HTML    string `json:"message_html,omitempty"`
	Subject string `json:"subject,omitempty"`

	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	ExternalMessageID string `json:"external_message_id,omitempty"`

	IsForwarded         bool   `json:"is_forwarded,omitempty"`
	OriginalSenderEmail string `json:"original_sender_email,omitempty"`
	OriginalSenderName  string `json:"original_sender_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AppendInput carries the fields of a new message.
type AppendInput struct {
	Direction    Direction
	IsInternal   bool
	SenderUserID string

	Text    string
	HTML    string
	Subject string

	MediaURL  string
	MediaType string

	// ExternalMessageID is the provider message id (Graph mid, relay id)
	// used to suppress duplicates on webhook redelivery.
	ExternalMessageID string

	IsForwarded         bool
	OriginalSenderEmail string
	OriginalSenderName  string
}

// Preview derives the rollup preview for this message.
func (in AppendInput) Preview() string {
	body := strings.TrimSpace(in.Text)
	if body == "" {
		body = strings.TrimSpace(in.Subject)
	}
	if body == "" {
		body = MediaPlaceholder
	}
	return Truncate(body, PreviewMaxLen)
}

// CountsAsUnread reports whether appending this message increments the
// conversation's unread counter. Internal notes and outbound replies do not.
func (in AppendInput) CountsAsUnread() bool {
	return in.Direction == DirectionInbound && !in.IsInternal
}

// Truncate bounds a string to max runes.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
