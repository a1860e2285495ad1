package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
)

var (
	// ErrNotFound is returned when no conversation matches the lookup.
	ErrNotFound = errors.New("conversation not found")
	// ErrUserNotFound is returned by Assign for an unknown user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrLeadNotFound is returned by LinkLead for an unknown lead id.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrSnoozeInPast is returned when snoozing without a future wake time.
	ErrSnoozeInPast = errors.New("snoozed_until must be in the future")
)

const conversationColumns = `id, channel_id,
	external_phone, external_email, external_social_id,
	external_social_username, external_profile_pic, external_name,
	lead_id, client_id, status, snoozed_until, assigned_to_user_id,
	last_message_at, last_message_preview, unread_count, is_active,
	created_at, updated_at`

const messageColumns = `id, conversation_id, direction, is_internal, sender_user_id,
	message_text, message_html, subject, media_url, media_type,
	external_message_id, is_forwarded, original_sender_email, original_sender_name,
	created_at`

// Store owns Conversation and Message rows, including all rollup mutation.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates the conversation store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// FindActiveByIdentity looks up the active conversation for one identity on
// one channel. A conversation matches by whichever identity field the lookup
// carries; identity fields are never combined.
func (s *Store) FindActiveByIdentity(ctx context.Context, channelID string, identity ExternalIdentity) (Conversation, bool, error) {
	kind, err := identity.Kind()
	if err != nil {
		return Conversation{}, false, err
	}
	pgChannelID, err := db.ParseUUID(channelID)
	if err != nil {
		return Conversation{}, false, err
	}

	var (
		query string
		value string
	)
	switch kind {
	case IdentityPhone:
		query = `SELECT ` + conversationColumns + ` FROM conversations
			WHERE channel_id = $1 AND is_active AND external_phone = $2`
		value = identity.Phone
	case IdentityEmail:
		query = `SELECT ` + conversationColumns + ` FROM conversations
			WHERE channel_id = $1 AND is_active AND lower(external_email) = lower($2)`
		value = identity.Email
	case IdentitySocial:
		query = `SELECT ` + conversationColumns + ` FROM conversations
			WHERE channel_id = $1 AND is_active AND external_social_id = $2`
		value = identity.SocialID
	}

	row := s.pool.QueryRow(ctx, query, pgChannelID, value)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, false, nil
		}
		return Conversation{}, false, fmt.Errorf("find conversation: %w", err)
	}
	return conv, true, nil
}

// Create inserts a new conversation for an identity. Callers must route
// through Resolver.FindOrCreate; direct creation bypasses the
// one-active-conversation-per-identity invariant.
func (s *Store) Create(ctx context.Context, channelID string, identity ExternalIdentity) (Conversation, error) {
	if _, err := identity.Kind(); err != nil {
		return Conversation{}, err
	}
	pgChannelID, err := db.ParseUUID(channelID)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (
			channel_id, external_phone, external_email, external_social_id,
			external_social_username, external_profile_pic, external_name, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+conversationColumns,
		pgChannelID,
		db.ToText(identity.Phone), db.ToText(identity.Email), db.ToText(identity.SocialID),
		db.ToText(identity.SocialUsername), db.ToText(identity.ProfilePic), db.ToText(identity.Name),
		string(StatusOpen),
	)
	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Get returns a conversation by id.
func (s *Store) Get(ctx context.Context, id string) (Conversation, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Conversation{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, pgID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// List returns active conversations, most recently active first.
func (s *Store) List(ctx context.Context) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE is_active
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var items []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, conv)
	}
	return items, rows.Err()
}

// ListMessages returns a conversation's messages ordered oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY created_at`, pgID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

// AppendMessage inserts an immutable message and updates the conversation
// rollup in the same transaction. The unread increment happens inside the
// UPDATE so concurrent deliveries serialize on the row instead of losing
// updates. Appends carrying an external message id are idempotent: a
// redelivered provider event returns the already-stored message.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, in AppendInput) (Message, error) {
	pgConvID, err := db.ParseUUID(conversationID)
	if err != nil {
		return Message{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if in.ExternalMessageID != "" {
		existing, found, err := findByExternalID(ctx, tx, pgConvID, in.ExternalMessageID)
		if err != nil {
			return Message{}, err
		}
		if found {
			return existing, nil
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (
			conversation_id, direction, is_internal, sender_user_id,
			message_text, message_html, subject, media_url, media_type,
			external_message_id, is_forwarded, original_sender_email, original_sender_name
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+messageColumns,
		pgConvID, string(in.Direction), in.IsInternal, optionalUUID(in.SenderUserID),
		db.ToText(in.Text), db.ToText(in.HTML), db.ToText(in.Subject),
		db.ToText(in.MediaURL), db.ToText(in.MediaType),
		db.ToText(in.ExternalMessageID), in.IsForwarded,
		db.ToText(in.OriginalSenderEmail), db.ToText(in.OriginalSenderName),
	)
	msg, err := scanMessage(row)
	if err != nil {
		// A concurrent delivery of the same provider event can win the
		// insert race; surface the stored row instead of the conflict.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && in.ExternalMessageID != "" {
			_ = tx.Rollback(ctx)
			existing, found, ferr := s.findByExternalIDPool(ctx, pgConvID, in.ExternalMessageID)
			if ferr == nil && found {
				return existing, nil
			}
		}
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	increment := 0
	if in.CountsAsUnread() {
		increment = 1
	}
	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET
			last_message_at = $2,
			last_message_preview = $3,
			unread_count = unread_count + $4,
			updated_at = now()
		WHERE id = $1`,
		pgConvID, msg.CreatedAt, in.Preview(), increment); err != nil {
		return Message{}, fmt.Errorf("update rollup: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

// MarkRead resets the unread counter unconditionally.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET unread_count = 0, updated_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Assign sets the assignee after checking the user exists.
func (s *Store) Assign(ctx context.Context, conversationID, userID string) error {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	if userID == "" {
		_, err = s.pool.Exec(ctx,
			`UPDATE conversations SET assigned_to_user_id = NULL, updated_at = now() WHERE id = $1`, pgID)
		if err != nil {
			return fmt.Errorf("unassign: %w", err)
		}
		return nil
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND is_active)`, pgUserID).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET assigned_to_user_id = $2, updated_at = now() WHERE id = $1`,
		pgID, pgUserID)
	if err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus applies an explicit operator transition. Snoozed requires a
// future wake time; leaving Snoozed clears it.
func (s *Store) SetStatus(ctx context.Context, conversationID string, status Status, snoozedUntil time.Time) error {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	var wake pgtype.Timestamptz
	if status == StatusSnoozed {
		if !snoozedUntil.After(time.Now()) {
			return ErrSnoozeInPast
		}
		wake = db.ToTimestamptz(snoozedUntil)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status = $2, snoozed_until = $3, updated_at = now() WHERE id = $1`,
		pgID, string(status), wake)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkLead attaches a CRM lead after checking it exists.
func (s *Store) LinkLead(ctx context.Context, conversationID, leadID string) error {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	pgLeadID, err := db.ParseUUID(leadID)
	if err != nil {
		return err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, pgLeadID).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return ErrLeadNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET lead_id = $2, updated_at = now() WHERE id = $1`,
		pgID, pgLeadID)
	if err != nil {
		return fmt.Errorf("link lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive soft-removes a conversation from the active set.
func (s *Store) Archive(ctx context.Context, conversationID string) error {
	pgID, err := db.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET is_active = FALSE, updated_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) findByExternalIDPool(ctx context.Context, convID pgtype.UUID, externalID string) (Message, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 AND external_message_id = $2`,
		convID, externalID)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("find by external id: %w", err)
	}
	return msg, true, nil
}

func findByExternalID(ctx context.Context, tx pgx.Tx, convID pgtype.UUID, externalID string) (Message, bool, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 AND external_message_id = $2`,
		convID, externalID)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("find by external id: %w", err)
	}
	return msg, true, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		conv                        Conversation
		id, channelID               pgtype.UUID
		phone, email, socialID      pgtype.Text
		socialUsername, profilePic  pgtype.Text
		name                        pgtype.Text
		leadID, clientID, assignee  pgtype.UUID
		rawStatus                   string
		snoozedUntil, lastMessageAt pgtype.Timestamptz
		preview                     pgtype.Text
		createdAt, updatedAt        pgtype.Timestamptz
	)
	err := row.Scan(&id, &channelID,
		&phone, &email, &socialID,
		&socialUsername, &profilePic, &name,
		&leadID, &clientID, &rawStatus, &snoozedUntil, &assignee,
		&lastMessageAt, &preview, &conv.UnreadCount, &conv.IsActive,
		&createdAt, &updatedAt)
	if err != nil {
		return Conversation{}, err
	}
	conv.ID = id.String()
	conv.ChannelID = channelID.String()
	conv.ExternalPhone = db.TextToString(phone)
	conv.ExternalEmail = db.TextToString(email)
	conv.ExternalSocialID = db.TextToString(socialID)
	conv.ExternalSocialUsername = db.TextToString(socialUsername)
	conv.ExternalProfilePic = db.TextToString(profilePic)
	conv.ExternalName = db.TextToString(name)
	conv.LeadID = db.UUIDToString(leadID)
	conv.ClientID = db.UUIDToString(clientID)
	conv.Status = Status(rawStatus)
	conv.SnoozedUntil = db.TimeOrZero(snoozedUntil)
	conv.AssignedToUserID = db.UUIDToString(assignee)
	conv.LastMessageAt = db.TimeOrZero(lastMessageAt)
	conv.LastMessagePreview = db.TextToString(preview)
	conv.CreatedAt = db.TimeOrZero(createdAt)
	conv.UpdatedAt = db.TimeOrZero(updatedAt)
	return conv, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg                 Message
		id, convID          pgtype.UUID
		senderUserID        pgtype.UUID
		rawDirection        string
		text, html, subject pgtype.Text
		mediaURL, mediaType pgtype.Text
		externalID          pgtype.Text
		origEmail, origName pgtype.Text
		createdAt           pgtype.Timestamptz
	)
	err := row.Scan(&id, &convID, &rawDirection, &msg.IsInternal, &senderUserID,
		&text, &html, &subject, &mediaURL, &mediaType,
		&externalID, &msg.IsForwarded, &origEmail, &origName,
		&createdAt)
	if err != nil {
		return Message{}, err
	}
	msg.ID = id.String()
	msg.ConversationID = convID.String()
	msg.Direction = Direction(rawDirection)
	msg.SenderUserID = db.UUIDToString(senderUserID)
	msg.Text = db.TextToString(text)
	msg.HTML = db.TextToString(html)
	msg.Subject = db.TextToString(subject)
	msg.MediaURL = db.TextToString(mediaURL)
	msg.MediaType = db.TextToString(mediaType)
	msg.ExternalMessageID = db.TextToString(externalID)
	msg.OriginalSenderEmail = db.TextToString(origEmail)
	msg.OriginalSenderName = db.TextToString(origName)
	msg.CreatedAt = db.TimeOrZero(createdAt)
	return msg, nil
}

func optionalUUID(id string) pgtype.UUID {
	if id == "" {
		return pgtype.UUID{}
	}
	parsed, err := db.ParseUUID(id)
	if err != nil {
		return pgtype.UUID{}
	}
	return parsed
}
