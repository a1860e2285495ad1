package conversation_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

func setupConversationIntegrationTest(t *testing.T) (*conversation.Store, *pgxpool.Pool, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := conversation.NewStore(logger, pool)
	return store, pool, func() { pool.Close() }
}

func createTestChannel(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO channels (channel_type, display_name)
		VALUES ('email', 'integration-test-channel')
		RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return id
}

func cleanupConversationTestData(ctx context.Context, t *testing.T, pool *pgxpool.Pool, channelID string) {
	t.Helper()
	_, _ = pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id IN
		(SELECT id FROM conversations WHERE channel_id = $1)`, channelID)
	_, _ = pool.Exec(ctx, `DELETE FROM conversations WHERE channel_id = $1`, channelID)
	_, _ = pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, channelID)
}

func TestIntegrationResolver_OneActiveConversationPerIdentity(t *testing.T) {
	store, pool, cleanup := setupConversationIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	channelID := createTestChannel(ctx, t, pool)
	defer cleanupConversationTestData(ctx, t, pool, channelID)

	resolver := conversation.NewResolver(slog.Default(), store)
	identity := conversation.EmailIdentity("Casey@Example.com", "Casey")

	first, err := resolver.FindOrCreate(ctx, channelID, identity)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if first.Status != conversation.StatusOpen {
		t.Errorf("status = %s, want %s", first.Status, conversation.StatusOpen)
	}

	// Case-folded email resolves to the same row.
	second, err := resolver.FindOrCreate(ctx, channelID, conversation.EmailIdentity("casey@example.com", ""))
	if err != nil {
		t.Fatalf("FindOrCreate again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("resolved conversation %s, want %s", second.ID, first.ID)
	}

	// Archiving frees the identity for a fresh conversation.
	if err := store.Archive(ctx, first.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	third, err := resolver.FindOrCreate(ctx, channelID, identity)
	if err != nil {
		t.Fatalf("FindOrCreate after archive: %v", err)
	}
	if third.ID == first.ID {
		t.Error("expected a new conversation after archiving the old one")
	}
}

func TestIntegrationAppendMessage_RollupAndDedup(t *testing.T) {
	store, pool, cleanup := setupConversationIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	channelID := createTestChannel(ctx, t, pool)
	defer cleanupConversationTestData(ctx, t, pool, channelID)

	conv, err := store.Create(ctx, channelID, conversation.PhoneIdentity("+919876543210", "Asha"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	externalID := "wamid." + uuid.NewString()
	msg, err := store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
		Direction:         conversation.DirectionInbound,
		Text:              "hello there",
		ExternalMessageID: externalID,
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	// Redelivery of the same provider event returns the stored row.
	dup, err := store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
		Direction:         conversation.DirectionInbound,
		Text:              "hello there",
		ExternalMessageID: externalID,
	})
	if err != nil {
		t.Fatalf("AppendMessage redelivery: %v", err)
	}
	if dup.ID != msg.ID {
		t.Errorf("redelivered message id = %s, want %s", dup.ID, msg.ID)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UnreadCount != 1 {
		t.Errorf("unread_count = %d, want 1", got.UnreadCount)
	}
	if got.LastMessagePreview != "hello there" {
		t.Errorf("preview = %q, want %q", got.LastMessagePreview, "hello there")
	}

	// Outbound replies and internal notes never count as unread.
	if _, err := store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
		Direction: conversation.DirectionOutbound,
		Text:      "on it",
	}); err != nil {
		t.Fatalf("AppendMessage outbound: %v", err)
	}
	if _, err := store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
		Direction:  conversation.DirectionOutbound,
		IsInternal: true,
		Text:       "internal note",
	}); err != nil {
		t.Fatalf("AppendMessage note: %v", err)
	}

	got, err = store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get after outbound: %v", err)
	}
	if got.UnreadCount != 1 {
		t.Errorf("unread_count = %d, want 1", got.UnreadCount)
	}

	if err := store.MarkRead(ctx, conv.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	got, err = store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get after MarkRead: %v", err)
	}
	if got.UnreadCount != 0 {
		t.Errorf("unread_count = %d, want 0", got.UnreadCount)
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs))
	}
}
