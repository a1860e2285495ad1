package channel

import (
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies an external messaging source/sink.
type ChannelType string

const (
	TypeEmail     ChannelType = "email"
	TypeWhatsApp  ChannelType = "whatsapp"
	TypeMessenger ChannelType = "messenger"
	TypeInstagram ChannelType = "instagram"
)

func (t ChannelType) String() string { return string(t) }

// ParseType validates and normalizes a raw channel type string.
func ParseType(raw string) (ChannelType, error) {
	t := ChannelType(strings.TrimSpace(strings.ToLower(raw)))
	switch t {
	case TypeEmail, TypeWhatsApp, TypeMessenger, TypeInstagram:
		return t, nil
	}
	return "", fmt.Errorf("unsupported channel type: %s", raw)
}

// Channel is one configured messaging channel. Credentials are stored
// encrypted and are only exposed through Store.GetWithCredentials.
type Channel struct {
	ID                  string      `json:"id"`
	Type                ChannelType `json:"channel_type"`
	DisplayName         string      `json:"display_name"`
	IsActive            bool        `json:"is_active"`
	IsDefault           bool        `json:"is_default"`
	PollIntervalSeconds int         `json:"poll_interval_seconds,omitempty"`

	// Email transport endpoints.
	IMAPHost string `json:"imap_host,omitempty"`
	IMAPPort int    `json:"imap_port,omitempty"`
	SMTPHost string `json:"smtp_host,omitempty"`
	SMTPPort int    `json:"smtp_port,omitempty"`

	// Meta page / Instagram business account identifiers.
	MetaPageID             string `json:"meta_page_id,omitempty"`
	MetaInstagramAccountID string `json:"meta_instagram_account_id,omitempty"`

	// WhatsApp relay instance identifier.
	RelayInstanceID string `json:"relay_instance_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailCredentials are the decrypted secrets of an email channel. IMAPUser
// and SMTPUser fall back to each other when only one is configured.
type EmailCredentials struct {
	IMAPUser     string `json:"imapUser,omitempty"`
	IMAPPassword string `json:"imapPassword"`
	SMTPUser     string `json:"smtpUser,omitempty"`
	SMTPPassword string `json:"smtpPassword,omitempty"`
}

// EffectiveSMTPUser returns the SMTP username, falling back to the IMAP one.
func (c EmailCredentials) EffectiveSMTPUser() string {
	if strings.TrimSpace(c.SMTPUser) != "" {
		return c.SMTPUser
	}
	return c.IMAPUser
}

// EffectiveSMTPPassword returns the SMTP password, falling back to the IMAP one.
func (c EmailCredentials) EffectiveSMTPPassword() string {
	if strings.TrimSpace(c.SMTPPassword) != "" {
		return c.SMTPPassword
	}
	return c.IMAPPassword
}

// MetaCredentials are the decrypted secrets of a messenger/instagram channel.
type MetaCredentials struct {
	PageAccessToken    string `json:"metaPageAccessToken"`
	AppSecret          string `json:"metaAppSecret"`
	WebhookVerifyToken string `json:"metaWebhookVerifyToken"`
}

// WhatsAppCredentials are the decrypted secrets of a WhatsApp relay channel.
type WhatsAppCredentials struct {
	Token string `json:"relayToken"`
}

// Credentials is the decrypted credential union; exactly one field is set,
// matching the channel type.
type Credentials struct {
	Email    *EmailCredentials    `json:"email,omitempty"`
	Meta     *MetaCredentials     `json:"meta,omitempty"`
	WhatsApp *WhatsAppCredentials `json:"whatsapp,omitempty"`
}

// WithCredentials pairs a channel with its decrypted secrets.
type WithCredentials struct {
	Channel
	Credentials Credentials
}

// CreateRequest is the operator-facing channel creation payload.
type CreateRequest struct {
	Type                string      `json:"channel_type" validate:"required"`
	DisplayName         string      `json:"display_name" validate:"required"`
	IsDefault           bool        `json:"is_default"`
	PollIntervalSeconds int         `json:"poll_interval_seconds"`
	IMAPHost            string      `json:"imap_host"`
	IMAPPort            int         `json:"imap_port"`
	SMTPHost            string      `json:"smtp_host"`
	SMTPPort            int         `json:"smtp_port"`
	MetaPageID          string      `json:"meta_page_id"`
	MetaInstagramID     string      `json:"meta_instagram_account_id"`
	RelayInstanceID     string      `json:"relay_instance_id"`
	Credentials         Credentials `json:"credentials"`
}

// UpdateRequest mutates channel configuration; nil fields are left unchanged.
type UpdateRequest struct {
	DisplayName         *string      `json:"display_name,omitempty"`
	IsDefault           *bool        `json:"is_default,omitempty"`
	PollIntervalSeconds *int         `json:"poll_interval_seconds,omitempty"`
	IMAPHost            *string      `json:"imap_host,omitempty"`
	IMAPPort            *int         `json:"imap_port,omitempty"`
	SMTPHost            *string      `json:"smtp_host,omitempty"`
	SMTPPort            *int         `json:"smtp_port,omitempty"`
	MetaPageID          *string      `json:"meta_page_id,omitempty"`
	MetaInstagramID     *string      `json:"meta_instagram_account_id,omitempty"`
	RelayInstanceID     *string      `json:"relay_instance_id,omitempty"`
	Credentials         *Credentials `json:"credentials,omitempty"`
}
