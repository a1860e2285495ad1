package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

// EventMessageReceived is the only relay event type that carries an inbound
// message; everything else (acks, presence, instance status) is ignored.
const EventMessageReceived = "message_received"

// WebhookEvent is one relay webhook delivery.
type WebhookEvent struct {
	EventType  string      `json:"event_type"`
	InstanceID string      `json:"instanceId"`
	Data       MessageData `json:"data"`
}

// MessageData is the message body of a relay event.
type MessageData struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	PushName string `json:"pushname"`
	Type     string `json:"type"`
	Body     string `json:"body"`
	Media    string `json:"media"`
	FromMe   bool   `json:"fromMe"`
	Time     int64  `json:"time"`
}

// ConversationResolver maps a sender identity to its conversation.
type ConversationResolver interface {
	FindOrCreate(ctx context.Context, channelID string, identity conversation.ExternalIdentity) (conversation.Conversation, error)
}

// MessageAppender persists inbound messages.
type MessageAppender interface {
	AppendMessage(ctx context.Context, conversationID string, in conversation.AppendInput) (conversation.Message, error)
}

// Ingestor turns relay webhook events into stored conversation messages.
type Ingestor struct {
	logger   *slog.Logger
	resolver ConversationResolver
	store    MessageAppender
}

// NewIngestor creates an Ingestor.
func NewIngestor(log *slog.Logger, resolver ConversationResolver, store MessageAppender) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		logger:   log.With(slog.String("component", "whatsapp.ingestor")),
		resolver: resolver,
		store:    store,
	}
}

// ProcessEvent stores one inbound relay event. Non-message events and
// echoes of our own sends are ignored without error.
func (i *Ingestor) ProcessEvent(ctx context.Context, channelID string, ev WebhookEvent) error {
	if ev.EventType != EventMessageReceived {
		return nil
	}
	if ev.Data.FromMe {
		return nil
	}

	phone := ChatIDToPhone(ev.Data.From)
	if phone == "" {
		return fmt.Errorf("relay event %s has no usable sender", ev.Data.ID)
	}

	identity := conversation.PhoneIdentity(phone, ev.Data.PushName)
	conv, err := i.resolver.FindOrCreate(ctx, channelID, identity)
	if err != nil {
		return err
	}

	in := conversation.AppendInput{
		Direction:         conversation.DirectionInbound,
		Text:              ev.Data.Body,
		ExternalMessageID: ev.Data.ID,
	}
	if ev.Data.Media != "" {
		in.MediaURL = ev.Data.Media
		in.MediaType = ev.Data.Type
		if ev.Data.Type != "chat" && in.Text == ev.Data.Media {
			// Some relays duplicate the media URL into body; keep it only
			// as media.
			in.Text = ""
		}
	}

	if _, err := i.store.AppendMessage(ctx, conv.ID, in); err != nil {
		return fmt.Errorf("append whatsapp message: %w", err)
	}
	i.logger.Info("whatsapp message stored",
		slog.String("conversation_id", conv.ID),
		slog.String("from", phone))
	return nil
}
