package conversation

import (
	"context"
	"fmt"
	"log/slog"
)

// ResolverStore is the minimal persistence surface the resolver needs.
type ResolverStore interface {
	FindActiveByIdentity(ctx context.Context, channelID string, identity ExternalIdentity) (Conversation, bool, error)
	Create(ctx context.Context, channelID string, identity ExternalIdentity) (Conversation, error)
}

// Resolver finds or creates the conversation for a channel-native identity.
// It is the single allowed creation path for conversations: every ingestion
// route (email, WhatsApp, Meta) goes through FindOrCreate so that at most one
// active conversation exists per (channel, identity).
type Resolver struct {
	store  ResolverStore
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(log *slog.Logger, store ResolverStore) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("service", "resolver")),
	}
}

// FindOrCreate returns the active conversation for the identity, creating it
// with status Open when none exists. An existing conversation is returned
// unchanged: name and profile enrichment from later partial signals never
// overwrites what was captured at creation.
func (r *Resolver) FindOrCreate(ctx context.Context, channelID string, identity ExternalIdentity) (Conversation, error) {
	kind, err := identity.Kind()
	if err != nil {
		return Conversation{}, err
	}

	conv, found, err := r.store.FindActiveByIdentity(ctx, channelID, identity)
	if err != nil {
		return Conversation{}, fmt.Errorf("resolve conversation: %w", err)
	}
	if found {
		return conv, nil
	}

	conv, err = r.store.Create(ctx, channelID, identity)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	r.logger.Info("conversation created",
		slog.String("conversation_id", conv.ID),
		slog.String("channel_id", channelID),
		slog.String("identity_kind", string(kind)))
	return conv, nil
}
