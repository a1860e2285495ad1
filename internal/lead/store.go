package lead

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
)

// ErrNotFound is returned when a lead id does not exist.
var ErrNotFound = errors.New("lead not found")

const leadColumns = `id, code, contact_name, email, phone, stage, assigned_to_user_id, last_activity_at, created_at`

// Store is the pgx-backed lead repository.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, logger: log.With(slog.String("service", "leads"))}
}

// Create inserts a new lead in the initial stage with a generated code.
func (s *Store) Create(ctx context.Context, in CreateInput) (Lead, error) {
	var assigned pgtype.UUID
	if in.AssignedToUserID != "" {
		parsed, err := db.ParseUUID(in.AssignedToUserID)
		if err != nil {
			return Lead{}, err
		}
		assigned = parsed
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO leads (code, contact_name, email, phone, stage, assigned_to_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+leadColumns,
		NewCode(), in.ContactName, db.ToText(in.Email), db.ToText(in.Phone), StageNew, assigned)
	lead, err := scanLead(row)
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	s.logger.Info("lead created", slog.String("lead_id", lead.ID), slog.String("code", lead.Code))
	return lead, nil
}

// Get returns one lead by id.
func (s *Store) Get(ctx context.Context, id string) (Lead, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Lead{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, pgID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// FindByEmail returns the most recent lead with a matching email address,
// compared case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (Lead, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE lower(email) = lower($1)
		ORDER BY created_at DESC
		LIMIT 1`, email)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, false, nil
	}
	if err != nil {
		return Lead{}, false, fmt.Errorf("find lead by email: %w", err)
	}
	return lead, true, nil
}

// TouchActivity records that the lead saw activity now. Used when an
// inbound message arrives on a linked conversation.
func (s *Store) TouchActivity(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE leads SET last_activity_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("touch lead activity: %w", err)
	}
	return nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var (
		lead                      Lead
		id, assigned              pgtype.UUID
		email, phone              pgtype.Text
		lastActivityAt, createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &lead.Code, &lead.ContactName, &email, &phone,
		&lead.Stage, &assigned, &lastActivityAt, &createdAt); err != nil {
		return Lead{}, err
	}
	lead.ID = db.UUIDToString(id)
	lead.Email = db.TextToString(email)
	lead.Phone = db.TextToString(phone)
	lead.AssignedToUserID = db.UUIDToString(assigned)
	lead.LastActivityAt = db.TimeOrZero(lastActivityAt)
	lead.CreatedAt = db.TimeOrZero(createdAt)
	return lead, nil
}
