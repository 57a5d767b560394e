package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coursegate/internal/database"
	"coursegate/internal/models"
)

// ErrDuplicateEmail is returned when another account already uses the email
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository handles database operations for user accounts
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, password_hash, name, is_admin, created_at, updated_at"

// CreateUser inserts a new user. The email is stored normalized.
func (r *UserRepository) CreateUser(ctx context.Context, email, passwordHash, name string, isAdmin bool) (*models.User, error) {
	now := time.Now().UTC()
	email = models.NormalizeEmail(email)

	query := `
		INSERT INTO users (email, password_hash, name, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, email, passwordHash, name, isAdmin, now, now)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = ?"
	return r.scanUser(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// SetAdmin grants or removes administrator rights
func (r *UserRepository) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	result, err := r.db.ExecContext(ctx, "UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?", isAdmin, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
