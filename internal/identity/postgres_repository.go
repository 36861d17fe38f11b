package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	phoneUniqueIndex    = "users_phone_key"
	emailUniqueIndex    = "users_email_key"
	userColumns         = `id, phone, password_hash, name, email, avatar, role, created_at`
	selectUsersByColumn = `SELECT ` + userColumns + ` FROM users WHERE `
)

// PostgresRepository implements Repository using PostgreSQL. Uniqueness is
// enforced by the users_phone_key and users_email_key constraints.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, password_hash, name, email, avatar, role, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, user.Phone, user.PasswordHash, user.Name, nullable(user.Email), nullable(user.Avatar), string(user.Role), user.CreatedAt.UTC())
	return mapWriteError(err)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, selectUsersByColumn+`id = $1`, userID))
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, selectUsersByColumn+`phone = $1`, phone))
}

// FindByEmail fetches a user by email address.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, selectUsersByColumn+`email = $1`, email))
}

// UpdateProfile overwrites the display fields and returns the updated row.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, avatar string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `UPDATE users SET name = $1, avatar = $2 WHERE id = $3
        RETURNING `+userColumns, name, nullable(avatar), userID))
}

// UpdatePassword stores a new credential hash for the user.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	return r.execOne(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, userID)
}

// UpdatePasswordByPhone stores a new credential hash for the user owning phone.
func (r *PostgresRepository) UpdatePasswordByPhone(ctx context.Context, phone string, hash []byte) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = $1 WHERE phone = $2`, hash, phone)
}

// UpdatePhone changes the user's phone number.
func (r *PostgresRepository) UpdatePhone(ctx context.Context, id, phone string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	return r.execOne(ctx, `UPDATE users SET phone = $1 WHERE id = $2`, phone, userID)
}

// UpdateEmail changes the user's email address.
func (r *PostgresRepository) UpdateEmail(ctx context.Context, id, email string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	return r.execOne(ctx, `UPDATE users SET email = $1 WHERE id = $2`, email, userID)
}

// UpdateRole changes the user's authorization role.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	return r.execOne(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), userID)
}

// List returns all users, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Delete removes the user permanently.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, userID)
}

func (r *PostgresRepository) execOne(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		email     *string
		avatar    *string
		role      string
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Phone, &user.PasswordHash, &user.Name, &email, &avatar, &role, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.Role = Role(role)
	user.CreatedAt = createdAt.UTC()
	if email != nil {
		user.Email = *email
	}
	if avatar != nil {
		user.Avatar = *avatar
	}
	return user, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case phoneUniqueIndex:
			return ErrPhoneTaken
		case emailUniqueIndex:
			return ErrEmailTaken
		}
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
