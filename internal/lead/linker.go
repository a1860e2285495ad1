package lead

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

// Repository is the lead persistence surface the linker needs.
type Repository interface {
	Create(ctx context.Context, in CreateInput) (Lead, error)
	FindByEmail(ctx context.Context, email string) (Lead, bool, error)
	TouchActivity(ctx context.Context, id string) error
}

// ConversationStore is the conversation surface the linker needs.
type ConversationStore interface {
	Get(ctx context.Context, id string) (conversation.Conversation, error)
	LinkLead(ctx context.Context, conversationID, leadID string) error
}

// Linker connects conversations to leads, either explicitly from the inbox
// or opportunistically during email ingestion.
type Linker struct {
	logger        *slog.Logger
	leads         Repository
	conversations ConversationStore
}

// NewLinker creates a Linker.
func NewLinker(log *slog.Logger, leads Repository, conversations ConversationStore) *Linker {
	if log == nil {
		log = slog.Default()
	}
	return &Linker{
		logger:        log.With(slog.String("service", "lead_linker")),
		leads:         leads,
		conversations: conversations,
	}
}

// Link attaches an existing lead to a conversation.
func (l *Linker) Link(ctx context.Context, conversationID, leadID string) error {
	if err := l.conversations.LinkLead(ctx, conversationID, leadID); err != nil {
		return err
	}
	if err := l.leads.TouchActivity(ctx, leadID); err != nil {
		l.logger.Warn("touch lead activity", slog.String("lead_id", leadID), slog.Any("error", err))
	}
	return nil
}

// CreateFromConversation creates a new lead seeded with the conversation's
// identity and links it. The caller may override the seeded contact fields.
func (l *Linker) CreateFromConversation(ctx context.Context, conversationID string, in CreateInput) (Lead, error) {
	conv, err := l.conversations.Get(ctx, conversationID)
	if err != nil {
		return Lead{}, err
	}

	if in.ContactName == "" {
		in.ContactName = conv.ExternalName
	}
	if in.ContactName == "" {
		in.ContactName = "Unknown contact"
	}
	if in.Email == "" {
		in.Email = conv.ExternalEmail
	}
	if in.Phone == "" {
		in.Phone = conv.ExternalPhone
	}

	created, err := l.leads.Create(ctx, in)
	if err != nil {
		return Lead{}, err
	}
	if err := l.conversations.LinkLead(ctx, conversationID, created.ID); err != nil {
		return Lead{}, fmt.Errorf("link created lead: %w", err)
	}
	return created, nil
}

// AutoLinkByEmail links a conversation to an existing lead matching the
// sender's email. It never creates leads and never fails the caller:
// ingestion must not depend on CRM state.
func (l *Linker) AutoLinkByEmail(ctx context.Context, conversationID, email string) {
	if email == "" {
		return
	}
	found, ok, err := l.leads.FindByEmail(ctx, email)
	if err != nil {
		l.logger.Warn("lead lookup failed", slog.String("email", email), slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	if err := l.conversations.LinkLead(ctx, conversationID, found.ID); err != nil {
		l.logger.Warn("auto-link failed",
			slog.String("conversation_id", conversationID),
			slog.String("lead_id", found.ID),
			slog.Any("error", err))
		return
	}
	if err := l.leads.TouchActivity(ctx, found.ID); err != nil {
		l.logger.Warn("touch lead activity", slog.String("lead_id", found.ID), slog.Any("error", err))
	}
	l.logger.Info("conversation auto-linked to lead",
		slog.String("conversation_id", conversationID),
		slog.String("lead_code", found.Code))
}
