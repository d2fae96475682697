package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/screentime/go/internal/models"
	"github.com/mcdev12/screentime/go/internal/sqlutil"
)

// DBTX is satisfied by *pgxpool.Pool
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const userColumns = `id, email, password_hash, birthdate, created_at, deleted_at`

// Repository implements user data access operations
type Repository struct {
	db DBTX
}

// NewRepository creates a new users repository
func NewRepository(db DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

// CreateUser inserts the user and, if its user agent has never been seen,
// a device row, in one transaction.
func (r *Repository) CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error) {
	var user *models.User

	err := sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		var known bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM devices WHERE user_agent = $1)`,
			params.UserAgent,
		).Scan(&known); err != nil {
			return fmt.Errorf("failed to look up device: %w", err)
		}

		row := tx.QueryRow(ctx, `
            INSERT INTO users (id, email, password_hash, birthdate)
            VALUES ($1, $2, $3, $4)
            RETURNING `+userColumns,
			params.ID, params.Email, params.PasswordHash, params.Birthdate,
		)
		u, err := scanUser(row)
		if err != nil {
			if sqlutil.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		user = u

		if known || params.UserAgent == "" {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO devices (id, user_id, user_agent) VALUES ($1, $2, $3)`,
			uuid.New(), user.ID, params.UserAgent,
		); err != nil {
			return fmt.Errorf("failed to insert device: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, notFound(err, "failed to get user")
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email))
	if err != nil {
		return nil, notFound(err, "failed to get user by email")
	}
	return user, nil
}

// ListDevices returns a user's devices, oldest first
func (r *Repository) ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, user_id, user_agent, created_at
        FROM devices
        WHERE user_id = $1 AND deleted_at IS NULL
        ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}

	devices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Device, error) {
		var d models.Device
		err := row.Scan(&d.ID, &d.UserID, &d.UserAgent, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}
	return devices, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Birthdate, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
