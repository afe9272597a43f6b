package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teamtasks/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, is_admin, role, title, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.Role,
		&user.Title,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// GetIdentity loads the caller projection of a user. The password hash is
// not selected.
func (r *UserRepository) GetIdentity(ctx context.Context, id int64) (types.Identity, error) {
	const query = `
		SELECT id, name, email, is_admin, role, title, is_active
		FROM users
		WHERE id = $1`
	var identity types.Identity
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID,
		&identity.Name,
		&identity.Email,
		&identity.IsAdmin,
		&identity.Role,
		&identity.Title,
		&identity.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, err
	}
	return identity, nil
}

// List returns every user ordered by name, without credentials.
func (r *UserRepository) List(ctx context.Context) ([]types.TeamMember, error) {
	const query = `
		SELECT id, name, title, role, email, is_active
		FROM users
		ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []types.TeamMember{}
	for rows.Next() {
		var m types.TeamMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Title, &m.Role, &m.Email, &m.IsActive); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, password_hash, is_admin, role, title, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.Role,
		user.Title,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile sets the mutable profile fields in one statement and returns
// the stored row. Empty values leave the current value in place.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, name, title, role string) (types.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE(NULLIF($1, ''), name),
			title = COALESCE(NULLIF($2, ''), title),
			role = COALESCE(NULLIF($3, ''), role),
			updated_at = $4
		WHERE id = $5
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, name, title, role, time.Now(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return r.execAffectingOne(ctx, query, passwordHash, time.Now(), id)
}

func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `
		UPDATE users
		SET is_active = $1,
			updated_at = $2
		WHERE id = $3`
	return r.execAffectingOne(ctx, query, active, time.Now(), id)
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM users WHERE id = $1`
	return r.execAffectingOne(ctx, query, id)
}

func (r *UserRepository) execAffectingOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
