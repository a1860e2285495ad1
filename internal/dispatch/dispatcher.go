package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/mailbox"
	"github.com/relaydesk/relaydesk/internal/meta"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

// ErrNoRecipient is returned when the conversation lacks the identity kind
// its channel needs for outbound delivery.
var ErrNoRecipient = errors.New("conversation has no deliverable recipient")

// ErrEmptyReply is returned when neither text nor media is provided.
var ErrEmptyReply = errors.New("reply needs text or media")

const replySubjectMaxLen = 50

// ChannelStore loads channels with decrypted credentials.
type ChannelStore interface {
	GetWithCredentials(ctx context.Context, id string) (channel.WithCredentials, error)
}

// ConversationStore is the conversation surface the dispatcher needs.
type ConversationStore interface {
	Get(ctx context.Context, id string) (conversation.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, in conversation.AppendInput) (conversation.Message, error)
}

// Dispatcher sends agent replies over the conversation's channel and
// records them as outbound messages.
type Dispatcher struct {
	logger        *slog.Logger
	channels      ChannelStore
	conversations ConversationStore
	graph         *meta.Client
	relay         *whatsapp.Client
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(log *slog.Logger, channels ChannelStore, conversations ConversationStore, graph *meta.Client, relay *whatsapp.Client) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		logger:        log.With(slog.String("service", "dispatch")),
		channels:      channels,
		conversations: conversations,
		graph:         graph,
		relay:         relay,
	}
}

// Reply delivers body and/or media to the conversation's counterpart and
// appends the outbound message. The message is only recorded after the
// transport accepted it.
func (d *Dispatcher) Reply(ctx context.Context, conversationID, senderUserID, body, mediaURL string) (conversation.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" && mediaURL == "" {
		return conversation.Message{}, ErrEmptyReply
	}

	conv, err := d.conversations.Get(ctx, conversationID)
	if err != nil {
		return conversation.Message{}, err
	}
	ch, err := d.channels.GetWithCredentials(ctx, conv.ChannelID)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("load channel: %w", err)
	}

	in := conversation.AppendInput{
		Direction:    conversation.DirectionOutbound,
		SenderUserID: senderUserID,
		Text:         body,
		MediaURL:     mediaURL,
	}

	switch ch.Type {
	case channel.TypeEmail:
		err = d.sendEmail(ctx, ch, conv, &in)
	case channel.TypeMessenger, channel.TypeInstagram:
		err = d.sendMeta(ctx, ch, conv, &in)
	case channel.TypeWhatsApp:
		err = d.sendWhatsApp(ctx, ch, conv, &in)
	default:
		err = fmt.Errorf("channel type %s cannot deliver replies", ch.Type)
	}
	if err != nil {
		return conversation.Message{}, err
	}

	msg, err := d.conversations.AppendMessage(ctx, conv.ID, in)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("record outbound message: %w", err)
	}
	d.logger.Info("reply dispatched",
		slog.String("conversation_id", conv.ID),
		slog.String("channel_type", string(ch.Type)))
	return msg, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, ch channel.WithCredentials, conv conversation.Conversation, in *conversation.AppendInput) error {
	if conv.ExternalEmail == "" {
		return ErrNoRecipient
	}
	if ch.Credentials.Email == nil {
		return fmt.Errorf("channel %s has no email credentials", ch.ID)
	}

	subject := "Re: your message"
	if preview := strings.TrimSpace(conv.LastMessagePreview); preview != "" {
		subject = "Re: " + conversation.Truncate(preview, replySubjectMaxLen)
	}

	body := in.Text
	if in.MediaURL != "" {
		if body != "" {
			body += "\n\n"
		}
		body += in.MediaURL
	}

	if _, err := mailbox.SendMail(ctx, ch.Channel, *ch.Credentials.Email, mailbox.OutboundEmail{
		To:      conv.ExternalEmail,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return err
	}
	in.Subject = subject
	return nil
}

func (d *Dispatcher) sendMeta(ctx context.Context, ch channel.WithCredentials, conv conversation.Conversation, in *conversation.AppendInput) error {
	if conv.ExternalSocialID == "" {
		return ErrNoRecipient
	}
	if ch.Credentials.Meta == nil {
		return fmt.Errorf("channel %s has no meta credentials", ch.ID)
	}
	token := ch.Credentials.Meta.PageAccessToken

	if in.Text != "" {
		result, err := d.graph.SendText(ctx, token, conv.ExternalSocialID, in.Text)
		if err != nil {
			return err
		}
		in.ExternalMessageID = result.MessageID
	}
	if in.MediaURL != "" {
		mediaType := inferMediaType(in.MediaURL)
		result, err := d.graph.SendAttachment(ctx, token, conv.ExternalSocialID, mediaType, in.MediaURL)
		if err != nil {
			return err
		}
		in.MediaType = mediaType
		if in.ExternalMessageID == "" {
			in.ExternalMessageID = result.MessageID
		}
	}
	return nil
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, ch channel.WithCredentials, conv conversation.Conversation, in *conversation.AppendInput) error {
	if conv.ExternalPhone == "" {
		return ErrNoRecipient
	}
	if ch.Credentials.WhatsApp == nil {
		return fmt.Errorf("channel %s has no relay credentials", ch.ID)
	}
	to := whatsapp.NormalizePhone(conv.ExternalPhone)
	token := ch.Credentials.WhatsApp.Token

	if in.MediaURL != "" {
		if _, err := d.relay.SendMedia(ctx, ch.RelayInstanceID, token, to, in.MediaURL, in.Text); err != nil {
			return err
		}
		in.MediaType = inferMediaType(in.MediaURL)
		return nil
	}
	_, err := d.relay.SendText(ctx, ch.RelayInstanceID, token, to, in.Text)
	return err
}

// inferMediaType guesses the attachment type from the URL extension.
func inferMediaType(mediaURL string) string {
	lower := strings.ToLower(mediaURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".mp4") || strings.HasSuffix(lower, ".mov"):
		return "video"
	case strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".ogg") || strings.HasSuffix(lower, ".wav"):
		return "audio"
	case strings.HasSuffix(lower, ".pdf"):
		return "file"
	default:
		return "image"
	}
}
