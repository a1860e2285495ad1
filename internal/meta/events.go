package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
)

// ObjectPage and ObjectInstagram are the webhook payload object types for
// the two Meta surfaces.
const (
	ObjectPage      = "page"
	ObjectInstagram = "instagram"
)

// WebhookPayload is the envelope of one Graph webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events of one page or Instagram business account.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is one event inside an entry. Exactly one of Message,
// Delivery or Read is set.
type MessagingEvent struct {
	Sender    Participant      `json:"sender"`
	Recipient Participant      `json:"recipient"`
	Timestamp int64            `json:"timestamp"`
	Message   *EventMessage    `json:"message,omitempty"`
	Delivery  *json.RawMessage `json:"delivery,omitempty"`
	Read      *json.RawMessage `json:"read,omitempty"`
}

// Participant is a platform-scoped user or page id.
type Participant struct {
	ID string `json:"id"`
}

// EventMessage is the message body of a messaging event.
type EventMessage struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a media attachment delivered by URL.
type Attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// ErrUnknownChannel marks deliveries for pages no channel claims. The
// webhook still acknowledges them so Meta does not retry forever.
var ErrUnknownChannel = fmt.Errorf("no channel configured for this page")

// ConversationResolver maps a sender identity to its conversation.
type ConversationResolver interface {
	FindOrCreate(ctx context.Context, channelID string, identity conversation.ExternalIdentity) (conversation.Conversation, error)
}

// MessageAppender persists inbound messages.
type MessageAppender interface {
	AppendMessage(ctx context.Context, conversationID string, in conversation.AppendInput) (conversation.Message, error)
}

// Ingestor turns webhook messaging events into stored conversation messages.
type Ingestor struct {
	logger   *slog.Logger
	graph    *Client
	resolver ConversationResolver
	store    MessageAppender
}

// NewIngestor creates an Ingestor.
func NewIngestor(log *slog.Logger, graph *Client, resolver ConversationResolver, store MessageAppender) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		logger:   log.With(slog.String("component", "meta.ingestor")),
		graph:    graph,
		resolver: resolver,
		store:    store,
	}
}

// MatchChannel finds the channel claiming an entry id: the page id for
// Messenger payloads, the Instagram business account id for Instagram ones.
func MatchChannel(object, entryID string, channels []channel.WithCredentials) (channel.WithCredentials, bool) {
	for _, ch := range channels {
		switch object {
		case ObjectPage:
			if ch.Type == channel.TypeMessenger && ch.MetaPageID == entryID {
				return ch, true
			}
		case ObjectInstagram:
			if ch.Type == channel.TypeInstagram && ch.MetaInstagramAccountID == entryID {
				return ch, true
			}
		}
	}
	return channel.WithCredentials{}, false
}

// ProcessEvent stores one inbound messaging event. Delivery and read
// receipts and echoes of our own sends are ignored. A message with several
// attachments becomes one message per attachment; the first carries the
// text, the rest are media-only.
func (i *Ingestor) ProcessEvent(ctx context.Context, ch channel.WithCredentials, ev MessagingEvent) error {
	if ev.Message == nil {
		return nil
	}
	if ev.Message.IsEcho {
		return nil
	}
	if ev.Sender.ID == "" {
		return fmt.Errorf("messaging event without sender id (mid %s)", ev.Message.MID)
	}

	accessToken := ""
	if ch.Credentials.Meta != nil {
		accessToken = ch.Credentials.Meta.PageAccessToken
	}
	profile := i.graph.FetchProfile(ctx, accessToken, ev.Sender.ID)

	identity := conversation.SocialIdentity(ev.Sender.ID, profile.Name)
	identity.ProfilePic = profile.ProfilePic
	conv, err := i.resolver.FindOrCreate(ctx, ch.ID, identity)
	if err != nil {
		return err
	}

	inputs := buildAppendInputs(ev.Message)
	for _, in := range inputs {
		if _, err := i.store.AppendMessage(ctx, conv.ID, in); err != nil {
			return fmt.Errorf("append %s message: %w", ch.Type, err)
		}
	}
	i.logger.Info("meta message stored",
		slog.String("conversation_id", conv.ID),
		slog.String("channel_type", string(ch.Type)),
		slog.Int("parts", len(inputs)))
	return nil
}

// buildAppendInputs splits a webhook message into stored messages. Extra
// attachments get a suffixed external id so redelivery dedup still works
// per part. A delivery without a mid gets no suffix either: suffixing an
// empty id would make unrelated messages collide.
func buildAppendInputs(msg *EventMessage) []conversation.AppendInput {
	base := conversation.AppendInput{
		Direction:         conversation.DirectionInbound,
		Text:              msg.Text,
		ExternalMessageID: msg.MID,
	}
	if len(msg.Attachments) == 0 {
		return []conversation.AppendInput{base}
	}

	inputs := make([]conversation.AppendInput, 0, len(msg.Attachments))
	for idx, att := range msg.Attachments {
		in := conversation.AppendInput{
			Direction:         conversation.DirectionInbound,
			MediaURL:          att.Payload.URL,
			MediaType:         att.Type,
			ExternalMessageID: msg.MID,
		}
		if idx == 0 {
			in.Text = msg.Text
		} else if msg.MID != "" {
			in.ExternalMessageID = fmt.Sprintf("%s#%d", msg.MID, idx)
		}
		inputs = append(inputs, in)
	}
	return inputs
}
