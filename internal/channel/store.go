package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/secrets"
)

// ErrNotFound is returned when no channel matches the lookup.
var ErrNotFound = errors.New("channel not found")

const channelColumns = `id, channel_type, display_name, is_active, is_default,
	encrypted_credentials, poll_interval_seconds,
	imap_host, imap_port, smtp_host, smtp_port,
	meta_page_id, meta_instagram_account_id, relay_instance_id,
	created_at, updated_at`

// Store is the channel registry. It owns channel rows and is the only
// component allowed to decrypt channel credentials.
type Store struct {
	pool   *pgxpool.Pool
	cipher *secrets.Cipher
	logger *slog.Logger
}

// NewStore creates the channel registry store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool, cipher *secrets.Cipher) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		cipher: cipher,
		logger: log.With(slog.String("service", "channel")),
	}
}

// ListActive returns all active channels of the given type.
func (s *Store) ListActive(ctx context.Context, channelType ChannelType) ([]Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE channel_type = $1 AND is_active ORDER BY created_at`,
		string(channelType))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// ListAll returns every channel, active or not, for the admin surface.
func (s *Store) ListAll(ctx context.Context) ([]Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels ORDER BY channel_type, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// GetDefault returns the default active channel of a type, if one exists.
func (s *Store) GetDefault(ctx context.Context, channelType ChannelType) (Channel, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE channel_type = $1 AND is_active AND is_default`,
		string(channelType))
	ch, _, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, false, nil
		}
		return Channel{}, false, fmt.Errorf("get default channel: %w", err)
	}
	return ch, true, nil
}

// Get returns a channel by id without credentials.
func (s *Store) Get(ctx context.Context, id string) (Channel, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Channel{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, pgID)
	ch, _, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, ErrNotFound
		}
		return Channel{}, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

// GetWithCredentials returns a channel and its decrypted secrets.
func (s *Store) GetWithCredentials(ctx context.Context, id string) (WithCredentials, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return WithCredentials{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, pgID)
	ch, sealed, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WithCredentials{}, ErrNotFound
		}
		return WithCredentials{}, fmt.Errorf("get channel: %w", err)
	}
	creds, err := s.decrypt(sealed)
	if err != nil {
		return WithCredentials{}, fmt.Errorf("channel %s: %w", ch.ID, err)
	}
	return WithCredentials{Channel: ch, Credentials: creds}, nil
}

// ListActiveWithCredentials returns active channels of the given types with
// decrypted secrets. Channels whose credentials fail to decrypt are skipped
// with a warning rather than failing the whole lookup.
func (s *Store) ListActiveWithCredentials(ctx context.Context, types ...ChannelType) ([]WithCredentials, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE channel_type = ANY($1) AND is_active ORDER BY created_at`,
		names)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var items []WithCredentials
	for rows.Next() {
		ch, sealed, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		creds, err := s.decrypt(sealed)
		if err != nil {
			s.logger.Warn("skip channel with unreadable credentials",
				slog.String("channel_id", ch.ID), slog.Any("error", err))
			continue
		}
		items = append(items, WithCredentials{Channel: ch, Credentials: creds})
	}
	return items, rows.Err()
}

// Create inserts a channel. When the new channel is flagged default, any
// previous default of the same type is cleared in the same transaction.
func (s *Store) Create(ctx context.Context, req CreateRequest) (Channel, error) {
	channelType, err := ParseType(req.Type)
	if err != nil {
		return Channel{}, err
	}
	sealed, err := s.encrypt(req.Credentials)
	if err != nil {
		return Channel{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Channel{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if req.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE channels SET is_default = FALSE, updated_at = now() WHERE channel_type = $1 AND is_default`,
			string(channelType)); err != nil {
			return Channel{}, fmt.Errorf("clear previous default: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO channels (
			channel_type, display_name, is_default, encrypted_credentials,
			poll_interval_seconds, imap_host, imap_port, smtp_host, smtp_port,
			meta_page_id, meta_instagram_account_id, relay_instance_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+channelColumns,
		string(channelType), strings.TrimSpace(req.DisplayName), req.IsDefault, sealed,
		zeroToNull(req.PollIntervalSeconds),
		db.ToText(req.IMAPHost), zeroToNull(req.IMAPPort),
		db.ToText(req.SMTPHost), zeroToNull(req.SMTPPort),
		db.ToText(req.MetaPageID), db.ToText(req.MetaInstagramID), db.ToText(req.RelayInstanceID),
	)
	ch, _, err := scanChannel(row)
	if err != nil {
		return Channel{}, fmt.Errorf("create channel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Channel{}, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("channel created", slog.String("channel_id", ch.ID), slog.String("type", ch.Type.String()))
	return ch, nil
}

// Update applies a partial update; promoting to default demotes the previous
// default of the same type.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (Channel, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Channel{}, err
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Channel{}, err
	}

	next := current
	if req.DisplayName != nil {
		next.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.IsDefault != nil {
		next.IsDefault = *req.IsDefault
	}
	if req.PollIntervalSeconds != nil {
		next.PollIntervalSeconds = *req.PollIntervalSeconds
	}
	if req.IMAPHost != nil {
		next.IMAPHost = *req.IMAPHost
	}
	if req.IMAPPort != nil {
		next.IMAPPort = *req.IMAPPort
	}
	if req.SMTPHost != nil {
		next.SMTPHost = *req.SMTPHost
	}
	if req.SMTPPort != nil {
		next.SMTPPort = *req.SMTPPort
	}
	if req.MetaPageID != nil {
		next.MetaPageID = *req.MetaPageID
	}
	if req.MetaInstagramID != nil {
		next.MetaInstagramAccountID = *req.MetaInstagramID
	}
	if req.RelayInstanceID != nil {
		next.RelayInstanceID = *req.RelayInstanceID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Channel{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if next.IsDefault && !current.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE channels SET is_default = FALSE, updated_at = now() WHERE channel_type = $1 AND is_default AND id <> $2`,
			string(current.Type), pgID); err != nil {
			return Channel{}, fmt.Errorf("clear previous default: %w", err)
		}
	}

	args := []any{
		next.DisplayName, next.IsDefault, zeroToNull(next.PollIntervalSeconds),
		db.ToText(next.IMAPHost), zeroToNull(next.IMAPPort),
		db.ToText(next.SMTPHost), zeroToNull(next.SMTPPort),
		db.ToText(next.MetaPageID), db.ToText(next.MetaInstagramAccountID), db.ToText(next.RelayInstanceID),
		pgID,
	}
	query := `
		UPDATE channels SET
			display_name = $1, is_default = $2, poll_interval_seconds = $3,
			imap_host = $4, imap_port = $5, smtp_host = $6, smtp_port = $7,
			meta_page_id = $8, meta_instagram_account_id = $9, relay_instance_id = $10,
			updated_at = now()
		WHERE id = $11
		RETURNING ` + channelColumns
	if req.Credentials != nil {
		sealed, err := s.encrypt(*req.Credentials)
		if err != nil {
			return Channel{}, err
		}
		args = append(args, sealed)
		query = `
		UPDATE channels SET
			display_name = $1, is_default = $2, poll_interval_seconds = $3,
			imap_host = $4, imap_port = $5, smtp_host = $6, smtp_port = $7,
			meta_page_id = $8, meta_instagram_account_id = $9, relay_instance_id = $10,
			encrypted_credentials = $12, updated_at = now()
		WHERE id = $11
		RETURNING ` + channelColumns
	}

	row := tx.QueryRow(ctx, query, args...)
	ch, _, err := scanChannel(row)
	if err != nil {
		return Channel{}, fmt.Errorf("update channel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Channel{}, fmt.Errorf("commit: %w", err)
	}
	return ch, nil
}

// Deactivate soft-disables a channel. Channels are never hard-deleted.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET is_active = FALSE, is_default = FALSE, updated_at = now() WHERE id = $1`,
		pgID)
	if err != nil {
		return fmt.Errorf("deactivate channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) encrypt(creds Credentials) (pgtype.Text, error) {
	if creds.Email == nil && creds.Meta == nil && creds.WhatsApp == nil {
		return pgtype.Text{}, nil
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return pgtype.Text{}, fmt.Errorf("marshal credentials: %w", err)
	}
	sealed, err := s.cipher.Seal(raw)
	if err != nil {
		return pgtype.Text{}, fmt.Errorf("seal credentials: %w", err)
	}
	return pgtype.Text{String: sealed, Valid: true}, nil
}

func (s *Store) decrypt(sealed pgtype.Text) (Credentials, error) {
	if !sealed.Valid || strings.TrimSpace(sealed.String) == "" {
		return Credentials{}, nil
	}
	raw, err := s.cipher.Open(sealed.String)
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}

func scanChannel(row pgx.Row) (Channel, pgtype.Text, error) {
	var (
		ch        Channel
		id        pgtype.UUID
		sealed    pgtype.Text
		pollSecs  pgtype.Int4
		imapHost  pgtype.Text
		imapPort  pgtype.Int4
		smtpHost  pgtype.Text
		smtpPort  pgtype.Int4
		pageID    pgtype.Text
		igID      pgtype.Text
		relayID   pgtype.Text
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		rawType   string
	)
	err := row.Scan(&id, &rawType, &ch.DisplayName, &ch.IsActive, &ch.IsDefault,
		&sealed, &pollSecs,
		&imapHost, &imapPort, &smtpHost, &smtpPort,
		&pageID, &igID, &relayID,
		&createdAt, &updatedAt)
	if err != nil {
		return Channel{}, pgtype.Text{}, err
	}
	ch.ID = id.String()
	ch.Type = ChannelType(rawType)
	ch.PollIntervalSeconds = int(pollSecs.Int32)
	ch.IMAPHost = db.TextToString(imapHost)
	ch.IMAPPort = int(imapPort.Int32)
	ch.SMTPHost = db.TextToString(smtpHost)
	ch.SMTPPort = int(smtpPort.Int32)
	ch.MetaPageID = db.TextToString(pageID)
	ch.MetaInstagramAccountID = db.TextToString(igID)
	ch.RelayInstanceID = db.TextToString(relayID)
	ch.CreatedAt = db.TimeOrZero(createdAt)
	ch.UpdatedAt = db.TimeOrZero(updatedAt)
	return ch, sealed, nil
}

func scanChannels(rows pgx.Rows) ([]Channel, error) {
	var items []Channel
	for rows.Next() {
		ch, _, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, ch)
	}
	return items, rows.Err()
}

func zeroToNull(v int) pgtype.Int4 {
	if v == 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(v), Valid: true}
}
