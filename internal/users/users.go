package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
)

// ErrNotFound is returned when a user id does not exist.
var ErrNotFound = errors.New("user not found")

// User is a team member conversations and leads can be assigned to.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Directory is the pgx-backed user lookup service.
type Directory struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDirectory creates a Directory.
func NewDirectory(log *slog.Logger, pool *pgxpool.Pool) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{pool: pool, logger: log.With(slog.String("service", "users"))}
}

// List returns all active users ordered by display name.
func (d *Directory) List(ctx context.Context) ([]User, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, display_name, email, is_active, created_at
		FROM users
		WHERE is_active
		ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// Get returns one user by id.
func (d *Directory) Get(ctx context.Context, id string) (User, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return User{}, err
	}
	row := d.pool.QueryRow(ctx, `
		SELECT id, display_name, email, is_active, created_at
		FROM users WHERE id = $1`, pgID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user      User
		id        pgtype.UUID
		email     pgtype.Text
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &user.DisplayName, &email, &user.IsActive, &createdAt); err != nil {
		return User{}, err
	}
	user.ID = db.UUIDToString(id)
	user.Email = db.TextToString(email)
	user.CreatedAt = db.TimeOrZero(createdAt)
	return user, nil
}
