package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
)

type fakeResolver struct {
	conversations map[string]conversation.Conversation
	identities    []conversation.ExternalIdentity
}

func (f *fakeResolver) FindOrCreate(_ context.Context, channelID string, identity conversation.ExternalIdentity) (conversation.Conversation, error) {
	f.identities = append(f.identities, identity)
	key := channelID + "|" + identity.SocialID
	if conv, ok := f.conversations[key]; ok {
		return conv, nil
	}
	if f.conversations == nil {
		f.conversations = map[string]conversation.Conversation{}
	}
	conv := conversation.Conversation{ID: fmt.Sprintf("conv-%d", len(f.conversations)+1), ChannelID: channelID, IsActive: true}
	f.conversations[key] = conv
	return conv, nil
}

type fakeAppender struct {
	appended []conversation.AppendInput
}

func (f *fakeAppender) AppendMessage(_ context.Context, conversationID string, in conversation.AppendInput) (conversation.Message, error) {
	f.appended = append(f.appended, in)
	return conversation.Message{ID: fmt.Sprintf("msg-%d", len(f.appended)), ConversationID: conversationID}, nil
}

func profileServer(t *testing.T, name string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": name, "profile_pic": "https://cdn.example.com/p.jpg"})
	}))
	t.Cleanup(server.Close)
	return server
}

func messengerChannel() channel.WithCredentials {
	return channel.WithCredentials{
		Channel: channel.Channel{
			ID:         "ch-fb",
			Type:       channel.TypeMessenger,
			MetaPageID: "page-1",
			IsActive:   true,
		},
		Credentials: channel.Credentials{Meta: &channel.MetaCredentials{PageAccessToken: "tok"}},
	}
}

func TestProcessEventTextMessage(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	appender := &fakeAppender{}
	ingestor := NewIngestor(nil, NewClient(nil, profileServer(t, "Ravi Kumar").URL), resolver, appender)

	ev := MessagingEvent{
		Sender:  Participant{ID: "psid-7"},
		Message: &EventMessage{MID: "mid.1", Text: "price?"},
	}
	if err := ingestor.ProcessEvent(context.Background(), messengerChannel(), ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(appender.appended) != 1 {
		t.Fatalf("appended = %d", len(appender.appended))
	}
	in := appender.appended[0]
	if in.Text != "price?" || in.ExternalMessageID != "mid.1" {
		t.Fatalf("input = %+v", in)
	}
	if got := resolver.identities[0]; got.SocialID != "psid-7" || got.Name != "Ravi Kumar" {
		t.Fatalf("identity = %+v", got)
	}
}

func TestProcessEventSkipsReceiptsAndEchoes(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	appender := &fakeAppender{}
	ingestor := NewIngestor(nil, NewClient(nil, profileServer(t, "x").URL), resolver, appender)

	raw := json.RawMessage(`{"mids":["mid.1"]}`)
	events := []MessagingEvent{
		{Sender: Participant{ID: "psid-1"}, Delivery: &raw},
		{Sender: Participant{ID: "psid-1"}, Read: &raw},
		{Sender: Participant{ID: "psid-1"}, Message: &EventMessage{MID: "mid.2", Text: "own send", IsEcho: true}},
	}
	for _, ev := range events {
		if err := ingestor.ProcessEvent(context.Background(), messengerChannel(), ev); err != nil {
			t.Fatalf("ProcessEvent: %v", err)
		}
	}
	if len(appender.appended) != 0 {
		t.Fatalf("appended = %d, want 0", len(appender.appended))
	}
}

func TestProcessEventAttachmentFanOut(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	appender := &fakeAppender{}
	ingestor := NewIngestor(nil, NewClient(nil, profileServer(t, "x").URL), resolver, appender)

	msg := &EventMessage{MID: "mid.9", Text: "two photos"}
	for i := 0; i < 2; i++ {
		att := Attachment{Type: "image"}
		att.Payload.URL = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
		msg.Attachments = append(msg.Attachments, att)
	}
	ev := MessagingEvent{Sender: Participant{ID: "psid-2"}, Message: msg}
	if err := ingestor.ProcessEvent(context.Background(), messengerChannel(), ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(appender.appended) != 2 {
		t.Fatalf("appended = %d, want 2", len(appender.appended))
	}
	first, second := appender.appended[0], appender.appended[1]
	if first.Text != "two photos" || first.MediaURL == "" {
		t.Fatalf("first = %+v", first)
	}
	if second.Text != "" || second.MediaURL == "" {
		t.Fatalf("second = %+v", second)
	}
	if first.ExternalMessageID == second.ExternalMessageID {
		t.Fatal("attachment parts must have distinct external ids")
	}
}

func TestBuildAppendInputsNoMID(t *testing.T) {
	t.Parallel()

	msg := &EventMessage{Text: "two photos"}
	for i := 0; i < 2; i++ {
		att := Attachment{Type: "image"}
		att.Payload.URL = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
		msg.Attachments = append(msg.Attachments, att)
	}

	inputs := buildAppendInputs(msg)
	if len(inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(inputs))
	}
	for i, in := range inputs {
		if in.ExternalMessageID != "" {
			t.Errorf("input %d external id = %q, want empty so dedup is skipped", i, in.ExternalMessageID)
		}
	}
}

func TestMatchChannel(t *testing.T) {
	t.Parallel()

	channels := []channel.WithCredentials{
		messengerChannel(),
		{Channel: channel.Channel{ID: "ch-ig", Type: channel.TypeInstagram, MetaInstagramAccountID: "ig-9"}},
	}

	if ch, ok := MatchChannel(ObjectPage, "page-1", channels); !ok || ch.ID != "ch-fb" {
		t.Fatalf("page match = %v %v", ch.ID, ok)
	}
	if ch, ok := MatchChannel(ObjectInstagram, "ig-9", channels); !ok || ch.ID != "ch-ig" {
		t.Fatalf("instagram match = %v %v", ch.ID, ok)
	}
	if _, ok := MatchChannel(ObjectPage, "ig-9", channels); ok {
		t.Fatal("instagram id must not match a page entry")
	}
	if _, ok := MatchChannel(ObjectPage, "page-unknown", channels); ok {
		t.Fatal("unknown page must not match")
	}
}
