package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

type fakeResolver struct {
	conversations map[string]conversation.Conversation
	calls         int
	lastIdentity  conversation.ExternalIdentity
}

func (f *fakeResolver) FindOrCreate(_ context.Context, channelID string, identity conversation.ExternalIdentity) (conversation.Conversation, error) {
	f.calls++
	f.lastIdentity = identity
	if _, err := identity.Kind(); err != nil {
		return conversation.Conversation{}, err
	}
	key := channelID + "|" + identity.Email
	if conv, ok := f.conversations[key]; ok {
		return conv, nil
	}
	conv := conversation.Conversation{
		ID:        fmt.Sprintf("conv-%d", len(f.conversations)+1),
		ChannelID: channelID,
		Status:    conversation.StatusOpen,
		IsActive:  true,
	}
	if f.conversations == nil {
		f.conversations = map[string]conversation.Conversation{}
	}
	f.conversations[key] = conv
	return conv, nil
}

type fakeAppender struct {
	appended []conversation.AppendInput
	lastConv string
}

func (f *fakeAppender) AppendMessage(_ context.Context, conversationID string, in conversation.AppendInput) (conversation.Message, error) {
	f.appended = append(f.appended, in)
	f.lastConv = conversationID
	return conversation.Message{
		ID:             fmt.Sprintf("msg-%d", len(f.appended)),
		ConversationID: conversationID,
		Direction:      in.Direction,
		Text:           in.Text,
	}, nil
}

type fakeLinker struct {
	linked map[string]string
}

func (f *fakeLinker) AutoLinkByEmail(_ context.Context, conversationID, email string) {
	if f.linked == nil {
		f.linked = map[string]string{}
	}
	f.linked[conversationID] = email
}

func newTestProcessor() (*Processor, *fakeResolver, *fakeAppender, *fakeLinker) {
	resolver := &fakeResolver{}
	appender := &fakeAppender{}
	linker := &fakeLinker{}
	return NewProcessor(slog.Default(), resolver, appender, linker), resolver, appender, linker
}

func TestProcessInboundStoresMessage(t *testing.T) {
	t.Parallel()

	proc, _, appender, linker := newTestProcessor()
	msg, err := proc.ProcessInbound(context.Background(), "ch-1", ParsedEmail{
		MessageID: "<abc@mail>",
		FromAddr:  "ada@example.com",
		FromName:  "Ada L",
		Subject:   "specs",
		Text:      "please send the sheet",
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if msg.Direction != conversation.DirectionInbound {
		t.Fatalf("direction = %s", msg.Direction)
	}
	if len(appender.appended) != 1 {
		t.Fatalf("appended = %d", len(appender.appended))
	}
	in := appender.appended[0]
	if in.ExternalMessageID != "<abc@mail>" || in.Subject != "specs" {
		t.Fatalf("unexpected input %+v", in)
	}
	if linker.linked[appender.lastConv] != "ada@example.com" {
		t.Fatalf("lead link email = %q", linker.linked[appender.lastConv])
	}
}

func TestProcessInboundSameSenderSameConversation(t *testing.T) {
	t.Parallel()

	proc, resolver, appender, _ := newTestProcessor()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := proc.ProcessInbound(ctx, "ch-1", ParsedEmail{
			FromAddr: "bo@example.com",
			Text:     fmt.Sprintf("message %d", i),
		}); err != nil {
			t.Fatalf("ProcessInbound: %v", err)
		}
	}
	if len(resolver.conversations) != 1 {
		t.Fatalf("conversations = %d, want 1", len(resolver.conversations))
	}
	if len(appender.appended) != 2 {
		t.Fatalf("appended = %d, want 2", len(appender.appended))
	}
}

func TestProcessInboundForwardedResolvesOriginalSender(t *testing.T) {
	t.Parallel()

	proc, resolver, appender, linker := newTestProcessor()
	_, err := proc.ProcessInbound(context.Background(), "ch-1", ParsedEmail{
		FromAddr: "owner@agency.com",
		Subject:  "Fwd: please see attached",
		Text:     "From: Jane Doe <jane@x.com>\n\nHi, attached is the brochure.",
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	in := appender.appended[0]
	if !in.IsForwarded {
		t.Fatal("expected forwarded flag")
	}
	if in.OriginalSenderEmail != "jane@x.com" || in.OriginalSenderName != "Jane Doe" {
		t.Fatalf("original sender = %q / %q", in.OriginalSenderEmail, in.OriginalSenderName)
	}
	// The effective sender is the recovered original, not the mailbox owner:
	// the conversation is keyed by jane@x.com and lead linking targets her.
	if resolver.lastIdentity.Email != "jane@x.com" {
		t.Fatalf("conversation resolved by %q, want jane@x.com", resolver.lastIdentity.Email)
	}
	if resolver.lastIdentity.Name != "Jane Doe" {
		t.Fatalf("conversation resolved with name %q, want Jane Doe", resolver.lastIdentity.Name)
	}
	if linker.linked[appender.lastConv] != "jane@x.com" {
		t.Fatalf("lead link email = %q", linker.linked[appender.lastConv])
	}
}

func TestProcessInboundForwardsFromSameMailboxStaySeparate(t *testing.T) {
	t.Parallel()

	proc, resolver, _, _ := newTestProcessor()
	ctx := context.Background()
	for _, original := range []string{"jane@x.com", "raj@y.com"} {
		if _, err := proc.ProcessInbound(ctx, "ch-1", ParsedEmail{
			FromAddr: "owner@agency.com",
			Subject:  "Fwd: enquiry",
			Text:     fmt.Sprintf("From: <%s>\n\nDetails please.", original),
		}); err != nil {
			t.Fatalf("ProcessInbound(%s): %v", original, err)
		}
	}
	// Two forwards of different originals from one mailbox must not share
	// a conversation.
	if len(resolver.conversations) != 2 {
		t.Fatalf("conversations = %d, want 2", len(resolver.conversations))
	}
}

func TestProcessInboundRejectsMissingSender(t *testing.T) {
	t.Parallel()

	proc, _, appender, _ := newTestProcessor()
	if _, err := proc.ProcessInbound(context.Background(), "ch-1", ParsedEmail{Text: "anonymous"}); err == nil {
		t.Fatal("expected error for missing sender")
	}
	if len(appender.appended) != 0 {
		t.Fatal("nothing should be stored")
	}
}

func TestProcessInboundSkipsLinkWhenLeadPresent(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{conversations: map[string]conversation.Conversation{
		"ch-1|sol@example.com": {ID: "conv-linked", ChannelID: "ch-1", LeadID: "lead-9", IsActive: true},
	}}
	appender := &fakeAppender{}
	linker := &fakeLinker{}
	proc := NewProcessor(slog.Default(), resolver, appender, linker)

	if _, err := proc.ProcessInbound(context.Background(), "ch-1", ParsedEmail{
		FromAddr: "sol@example.com",
		Text:     "following up",
	}); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if len(linker.linked) != 0 {
		t.Fatalf("linker should not run for already-linked conversation, got %v", linker.linked)
	}
}
