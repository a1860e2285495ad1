package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
)

// Store is the pgx-backed reminder repository.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, logger: log.With(slog.String("service", "reminders"))}
}

// StaleLeads returns leads in play whose last activity (or creation, for
// leads that never saw any) predates cutoff.
func (s *Store) StaleLeads(ctx context.Context, cutoff time.Time) ([]StaleLead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, contact_name, COALESCE(last_activity_at, created_at)
		FROM leads
		WHERE stage NOT IN ('won', 'lost')
		  AND COALESCE(last_activity_at, created_at) < $1
		ORDER BY COALESCE(last_activity_at, created_at)`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale leads: %w", err)
	}
	defer rows.Close()

	var out []StaleLead
	for rows.Next() {
		var (
			stale StaleLead
			id    pgtype.UUID
			last  pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &stale.Code, &stale.ContactName, &last); err != nil {
			return nil, fmt.Errorf("scan stale lead: %w", err)
		}
		stale.ID = db.UUIDToString(id)
		stale.LastActivity = db.TimeOrZero(last)
		out = append(out, stale)
	}
	return out, rows.Err()
}

// HasOpenAutoReminder reports whether the lead already has an uncompleted
// auto reminder.
func (s *Store) HasOpenAutoReminder(ctx context.Context, leadID string) (bool, error) {
	pgID, err := db.ParseUUID(leadID)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminders
			WHERE lead_id = $1 AND is_auto AND NOT is_completed
		)`, pgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open auto reminder: %w", err)
	}
	return exists, nil
}

// CreateAuto inserts a sweep-generated reminder.
func (s *Store) CreateAuto(ctx context.Context, leadID string, dueAt time.Time, text string) (Reminder, error) {
	return s.create(ctx, leadID, dueAt, text, true)
}

// Create inserts an agent-created reminder.
func (s *Store) Create(ctx context.Context, leadID string, dueAt time.Time, text string) (Reminder, error) {
	return s.create(ctx, leadID, dueAt, text, false)
}

func (s *Store) create(ctx context.Context, leadID string, dueAt time.Time, text string, auto bool) (Reminder, error) {
	pgID, err := db.ParseUUID(leadID)
	if err != nil {
		return Reminder{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reminders (lead_id, due_at, reminder_text, is_auto)
		VALUES ($1, $2, $3, $4)
		RETURNING id, lead_id, due_at, reminder_text, is_completed, is_auto, created_at`,
		pgID, dueAt, text, auto)
	return scanReminder(row)
}

// Complete marks a reminder done.
func (s *Store) Complete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE reminders SET is_completed = TRUE WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("complete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s not found", id)
	}
	return nil
}

// ListOverdue returns uncompleted reminders past due, earliest first.
func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]OverdueReminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.lead_id, r.due_at, r.reminder_text, r.is_completed, r.is_auto, r.created_at,
		       l.code, l.contact_name
		FROM reminders r
		JOIN leads l ON l.id = r.lead_id
		WHERE NOT r.is_completed AND r.due_at <= $1
		ORDER BY r.due_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue reminders: %w", err)
	}
	defer rows.Close()

	var out []OverdueReminder
	for rows.Next() {
		var (
			overdue          OverdueReminder
			id, leadID       pgtype.UUID
			dueAt, createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &leadID, &dueAt, &overdue.Text, &overdue.IsCompleted,
			&overdue.IsAuto, &createdAt, &overdue.LeadCode, &overdue.LeadContactName); err != nil {
			return nil, fmt.Errorf("scan overdue reminder: %w", err)
		}
		overdue.ID = db.UUIDToString(id)
		overdue.LeadID = db.UUIDToString(leadID)
		overdue.DueAt = db.TimeOrZero(dueAt)
		overdue.CreatedAt = db.TimeOrZero(createdAt)
		out = append(out, overdue)
	}
	return out, rows.Err()
}

func scanReminder(row pgx.Row) (Reminder, error) {
	var (
		reminder         Reminder
		id, leadID       pgtype.UUID
		dueAt, createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &leadID, &dueAt, &reminder.Text,
		&reminder.IsCompleted, &reminder.IsAuto, &createdAt); err != nil {
		return Reminder{}, fmt.Errorf("scan reminder: %w", err)
	}
	reminder.ID = db.UUIDToString(id)
	reminder.LeadID = db.UUIDToString(leadID)
	reminder.DueAt = db.TimeOrZero(dueAt)
	reminder.CreatedAt = db.TimeOrZero(createdAt)
	return reminder, nil
}
