package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeResolverStore is an in-memory ResolverStore.
type fakeResolverStore struct {
	conversations []Conversation
	nextID        int
	createCalls   int
}

func (f *fakeResolverStore) FindActiveByIdentity(_ context.Context, channelID string, identity ExternalIdentity) (Conversation, bool, error) {
	kind, err := identity.Kind()
	if err != nil {
		return Conversation{}, false, err
	}
	for _, conv := range f.conversations {
		if conv.ChannelID != channelID || !conv.IsActive {
			continue
		}
		switch kind {
		case IdentityPhone:
			if conv.ExternalPhone == identity.Phone {
				return conv, true, nil
			}
		case IdentityEmail:
			if strings.EqualFold(conv.ExternalEmail, identity.Email) {
				return conv, true, nil
			}
		case IdentitySocial:
			if conv.ExternalSocialID == identity.SocialID {
				return conv, true, nil
			}
		}
	}
	return Conversation{}, false, nil
}

func (f *fakeResolverStore) Create(_ context.Context, channelID string, identity ExternalIdentity) (Conversation, error) {
	f.nextID++
	f.createCalls++
	conv := Conversation{
		ID:               fmt.Sprintf("conv-%d", f.nextID),
		ChannelID:        channelID,
		ExternalPhone:    identity.Phone,
		ExternalEmail:    identity.Email,
		ExternalSocialID: identity.SocialID,
		ExternalName:     identity.Name,
		Status:           StatusOpen,
		IsActive:         true,
	}
	f.conversations = append(f.conversations, conv)
	return conv, nil
}

func TestFindOrCreateIdentityStability(t *testing.T) {
	t.Parallel()

	store := &fakeResolverStore{}
	resolver := NewResolver(nil, store)
	ctx := context.Background()

	first, err := resolver.FindOrCreate(ctx, "ch-1", EmailIdentity("buyer@acme.com", "Buyer"))
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := resolver.FindOrCreate(ctx, "ch-1", EmailIdentity("buyer@acme.com", ""))
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same identity resolved to different conversations: %s vs %s", first.ID, second.ID)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected 1 create, got %d", store.createCalls)
	}

	third, err := resolver.FindOrCreate(ctx, "ch-1", EmailIdentity("other@acme.com", ""))
	if err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("different identity must resolve to a different conversation")
	}
}

func TestFindOrCreateCaseInsensitiveEmail(t *testing.T) {
	t.Parallel()

	store := &fakeResolverStore{}
	resolver := NewResolver(nil, store)
	ctx := context.Background()

	first, err := resolver.FindOrCreate(ctx, "ch-1", EmailIdentity("Buyer@Acme.com", ""))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := resolver.FindOrCreate(ctx, "ch-1", EmailIdentity("buyer@acme.com", ""))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("email matching must be case-insensitive")
	}
}

func TestFindOrCreateSeparateChannels(t *testing.T) {
	t.Parallel()

	store := &fakeResolverStore{}
	resolver := NewResolver(nil, store)
	ctx := context.Background()

	a, _ := resolver.FindOrCreate(ctx, "ch-1", PhoneIdentity("+919876543210", ""))
	b, _ := resolver.FindOrCreate(ctx, "ch-2", PhoneIdentity("+919876543210", ""))
	if a.ID == b.ID {
		t.Fatal("the same phone on different channels must map to separate conversations")
	}
}

func TestFindOrCreateKeepsEnrichment(t *testing.T) {
	t.Parallel()

	store := &fakeResolverStore{}
	resolver := NewResolver(nil, store)
	ctx := context.Background()

	first, _ := resolver.FindOrCreate(ctx, "ch-1", SocialIdentity("psid-1", "Jane Doe"))
	again, _ := resolver.FindOrCreate(ctx, "ch-1", SocialIdentity("psid-1", ""))
	if again.ExternalName != first.ExternalName {
		t.Fatalf("match must not overwrite enrichment: got %q", again.ExternalName)
	}
}

func TestFindOrCreateRequiresIdentity(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, &fakeResolverStore{})
	if _, err := resolver.FindOrCreate(context.Background(), "ch-1", ExternalIdentity{Name: "no address"}); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	// Two populated identity fields are as invalid as none.
	if _, err := resolver.FindOrCreate(context.Background(), "ch-1", ExternalIdentity{Phone: "123", Email: "x@y.z"}); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}
