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

// PurchaseRepository handles the purchase ledger. Writes that race with each
// other are expressed as single conditional statements so the database
// arbitrates them.
type PurchaseRepository struct {
	db database.DBTX
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db database.DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *PurchaseRepository) WithTx(tx *database.Tx) *PurchaseRepository {
	return &PurchaseRepository{db: tx}
}

const purchaseColumns = `id, principal_key, user_id, email, course_id, amount_cents, currency,
	status, is_premium, external_payment_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*models.Purchase, error) {
	var (
		p          models.Purchase
		userID     sql.NullInt64
		externalID sql.NullString
		status     string
	)
	err := row.Scan(
		&p.ID,
		&p.PrincipalKey,
		&userID,
		&p.Email,
		&p.CourseID,
		&p.AmountCents,
		&p.Currency,
		&status,
		&p.IsPremium,
		&externalID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UserID = userID.Int64
	p.ExternalPaymentID = externalID.String
	p.Status = models.PurchaseStatus(status)
	return &p, nil
}

func nullableUserID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Upsert writes p keyed on (principal key, course). An existing row that is
// already completed is left untouched. The stored row is returned so callers
// can tell whether their write won.
func (r *PurchaseRepository) Upsert(ctx context.Context, p *models.Purchase) (*models.Purchase, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, r.db.GetDialect().UpsertPurchaseQuery(),
		p.PrincipalKey,
		nullableUserID(p.UserID),
		models.NormalizeEmail(p.Email),
		p.CourseID,
		p.AmountCents,
		p.Currency,
		string(p.Status),
		p.IsPremium,
		nullableString(p.ExternalPaymentID),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert purchase: %w", err)
	}

	stored, err := r.GetByPrincipalCourse(ctx, p.PrincipalKey, p.CourseID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("purchase for %s course %d missing after upsert", p.PrincipalKey, p.CourseID)
	}
	return stored, nil
}

// Insert writes a purchase row as-is. Used when restoring a ledger export.
func (r *PurchaseRepository) Insert(ctx context.Context, p *models.Purchase) error {
	id, err := r.db.ExecReturningID(ctx, `
		INSERT INTO purchases (principal_key, user_id, email, course_id, amount_cents, currency,
			status, is_premium, external_payment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.PrincipalKey,
		nullableUserID(p.UserID),
		p.Email,
		p.CourseID,
		p.AmountCents,
		p.Currency,
		string(p.Status),
		p.IsPremium,
		nullableString(p.ExternalPaymentID),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	p.ID = id
	return nil
}

// GetByPrincipalCourse returns the purchase row for a principal key and course, or nil
func (r *PurchaseRepository) GetByPrincipalCourse(ctx context.Context, principalKey string, courseID int64) (*models.Purchase, error) {
	query := "SELECT " + purchaseColumns + " FROM purchases WHERE principal_key = ? AND course_id = ?"
	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, principalKey, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

// GetByExternalID returns the purchase tied to a payment intent, or nil.
// With lock set the row is locked for the surrounding transaction where the
// dialect supports it.
func (r *PurchaseRepository) GetByExternalID(ctx context.Context, externalID string, lock bool) (*models.Purchase, error) {
	query := "SELECT " + purchaseColumns + " FROM purchases WHERE external_payment_id = ?"
	if lock {
		query += r.db.GetDialect().ForUpdate()
	}
	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase by payment id: %w", err)
	}
	return p, nil
}

// ownedBy returns the WHERE fragment selecting rows that belong to a
// principal. A user owns rows under their key and guest rows linked to their
// id. A guest email owns rows under its key, rows that were linked to an
// account after checkout, and rows of the account registered to that email.
func ownedBy(principal models.Principal) (string, []any) {
	if principal.IsGuest() {
		email := models.NormalizeEmail(principal.Email)
		return `(principal_key = ? OR email = ? OR user_id IN (SELECT id FROM users WHERE email = ?))`,
			[]any{principal.Key(), email, email}
	}
	return `(principal_key = ? OR user_id = ?)`, []any{principal.Key(), principal.UserID}
}

// HasCompleted reports whether the principal holds a completed purchase for
// the course
func (r *PurchaseRepository) HasCompleted(ctx context.Context, principal models.Principal, courseID int64) (bool, error) {
	owner, args := ownedBy(principal)
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM purchases
		WHERE `+owner+` AND course_id = ? AND status = 'completed'
	`, append(args, courseID)...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return count > 0, nil
}

// FindCompleted returns the oldest completed purchase granting the principal
// the course, or nil when there is none
func (r *PurchaseRepository) FindCompleted(ctx context.Context, principal models.Principal, courseID int64) (*models.Purchase, error) {
	owner, args := ownedBy(principal)
	found, err := r.list(ctx, "SELECT "+purchaseColumns+` FROM purchases
		WHERE `+owner+` AND course_id = ? AND status = 'completed'
		ORDER BY id`, append(args, courseID)...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// MarkCompleted moves the purchase for externalID to completed unless it
// already is. It returns the number of rows changed.
func (r *PurchaseRepository) MarkCompleted(ctx context.Context, externalID string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET status = 'completed', updated_at = ?
		WHERE external_payment_id = ? AND status <> 'completed'
	`, at.UTC(), externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to complete purchase: %w", err)
	}
	return result.RowsAffected()
}

// MarkFailed moves a pending purchase for externalID to failed. Completed rows
// are never downgraded.
func (r *PurchaseRepository) MarkFailed(ctx context.Context, externalID string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET status = 'failed', updated_at = ?
		WHERE external_payment_id = ? AND status = 'pending'
	`, at.UTC(), externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to fail purchase: %w", err)
	}
	return result.RowsAffected()
}

// LinkToUser rewrites a guest purchase so it belongs to a registered user.
// Only rows that have not completed yet are rewritten.
func (r *PurchaseRepository) LinkToUser(ctx context.Context, purchaseID, userID int64, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET principal_key = ?, user_id = ?, updated_at = ?
		WHERE id = ? AND status <> 'completed'
	`, models.UserPrincipal(userID).Key(), userID, at.UTC(), purchaseID)
	if err != nil {
		return 0, fmt.Errorf("failed to link purchase to user: %w", err)
	}
	return result.RowsAffected()
}

// SetUserID records the owning user on a row without changing its principal key
func (r *PurchaseRepository) SetUserID(ctx context.Context, purchaseID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE purchases SET user_id = ?, updated_at = ? WHERE id = ?", userID, at.UTC(), purchaseID)
	if err != nil {
		return fmt.Errorf("failed to set purchase user: %w", err)
	}
	return nil
}

// DeleteOpen removes a principal's pending or failed row for a course
func (r *PurchaseRepository) DeleteOpen(ctx context.Context, principalKey string, courseID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM purchases
		WHERE principal_key = ? AND course_id = ? AND status <> 'completed'
	`, principalKey, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete open purchase: %w", err)
	}
	return nil
}

// DeleteCompleted removes the completed purchases granting the principal the
// course and returns how many were removed
func (r *PurchaseRepository) DeleteCompleted(ctx context.Context, principal models.Principal, courseID int64) (int64, error) {
	owner, args := ownedBy(principal)
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM purchases
		WHERE `+owner+` AND course_id = ? AND status = 'completed'
	`, append(args, courseID)...)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke purchase: %w", err)
	}
	return result.RowsAffected()
}

// ExpireStale marks pending rows last touched before cutoff as failed
func (r *PurchaseRepository) ExpireStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET status = 'failed', updated_at = ?
		WHERE status = 'pending' AND updated_at < ?
	`, at.UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending purchases: %w", err)
	}
	return result.RowsAffected()
}

// ListForUser returns every purchase owned by or linked to a user, newest first
func (r *PurchaseRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Purchase, error) {
	query := "SELECT " + purchaseColumns + ` FROM purchases
		WHERE principal_key = ? OR user_id = ?
		ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, models.UserPrincipal(userID).Key(), userID)
}

// ListAll returns the whole ledger in id order
func (r *PurchaseRepository) ListAll(ctx context.Context) ([]*models.Purchase, error) {
	return r.list(ctx, "SELECT "+purchaseColumns+" FROM purchases ORDER BY id")
}

func (r *PurchaseRepository) list(ctx context.Context, query string, args ...any) ([]*models.Purchase, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
