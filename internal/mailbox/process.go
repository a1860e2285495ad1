package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

// ConversationResolver maps a sender identity to its conversation.
type ConversationResolver interface {
	FindOrCreate(ctx context.Context, channelID string, identity conversation.ExternalIdentity) (conversation.Conversation, error)
}

// MessageAppender persists inbound messages.
type MessageAppender interface {
	AppendMessage(ctx context.Context, conversationID string, in conversation.AppendInput) (conversation.Message, error)
}

// LeadLinker attaches conversations to existing leads by email. Linking is
// opportunistic: failures are logged by the linker and never block ingestion.
type LeadLinker interface {
	AutoLinkByEmail(ctx context.Context, conversationID, email string)
}

// Processor turns parsed inbound emails into stored conversation messages.
type Processor struct {
	logger   *slog.Logger
	resolver ConversationResolver
	store    MessageAppender
	leads    LeadLinker
}

// NewProcessor creates a Processor.
func NewProcessor(log *slog.Logger, resolver ConversationResolver, store MessageAppender, leads LeadLinker) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		logger:   log.With(slog.String("component", "mailbox.processor")),
		resolver: resolver,
		store:    store,
		leads:    leads,
	}
}

// ProcessInbound resolves the conversation for one inbound email and appends
// it. A forwarded message overrides the effective sender: the conversation
// is keyed by the recovered original sender, not the forwarding mailbox, and
// the message row records both the flag and the original address.
func (p *Processor) ProcessInbound(ctx context.Context, channelID string, parsed ParsedEmail) (conversation.Message, error) {
	if parsed.FromAddr == "" {
		return conversation.Message{}, fmt.Errorf("inbound email without sender address (uid %d)", parsed.UID)
	}

	in := conversation.AppendInput{
		Direction:         conversation.DirectionInbound,
		Text:              parsed.BodyText(),
		HTML:              parsed.HTML,
		Subject:           parsed.Subject,
		ExternalMessageID: parsed.MessageID,
	}

	identity := conversation.EmailIdentity(parsed.FromAddr, parsed.FromName)
	if fwd, ok := DetectForward(parsed); ok {
		in.IsForwarded = true
		in.OriginalSenderEmail = fwd.Email
		in.OriginalSenderName = fwd.Name
		identity = conversation.EmailIdentity(fwd.Email, fwd.Name)
	}

	conv, err := p.resolver.FindOrCreate(ctx, channelID, identity)
	if err != nil {
		return conversation.Message{}, err
	}

	msg, err := p.store.AppendMessage(ctx, conv.ID, in)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("append inbound email: %w", err)
	}

	if conv.LeadID == "" && p.leads != nil {
		p.leads.AutoLinkByEmail(ctx, conv.ID, identity.Email)
	}

	p.logger.Info("inbound email stored",
		slog.String("conversation_id", conv.ID),
		slog.String("from", identity.Email),
		slog.Bool("forwarded", in.IsForwarded))
	return msg, nil
}
