package database

import (
	"database/sql"
	"regexp"
	"strconv"
	"time"
)

// Dialect defines the interface for database-specific operations
type Dialect interface {
	// DriverName returns the driver name for sql.Open
	DriverName() string

	// DSN returns the data source name for the connection
	DSN(config DialectConfig) string

	// RewriteQuery converts placeholder syntax if needed (e.g., ? to $1 for postgres)
	RewriteQuery(query string) string

	// SupportsLastInsertId returns true if the driver supports LastInsertId()
	SupportsLastInsertId() bool

	// ConfigureConnection sizes the pool and applies any database-specific
	// connection settings
	ConfigureConnection(db *sql.DB, config DialectConfig) error

	// MigrationsSubdir returns the subdirectory name for migrations (e.g., "sqlite", "postgres")
	MigrationsSubdir() string

	// CreateMigrationsTableQuery returns the SQL to create the migrations tracking table
	CreateMigrationsTableQuery() string

	// IsUniqueViolation reports whether err came from a unique index rejecting a row
	IsUniqueViolation(err error) bool

	// ForUpdate returns the row locking suffix for SELECTs inside a transaction
	ForUpdate() string

	// UpsertPurchaseQuery inserts a purchase row keyed on (principal_key, course_id).
	// An existing row is overwritten unless it is already completed.
	// Placeholders: principal_key, user_id, email, course_id, amount_cents,
	// currency, status, is_premium, external_payment_id, created_at, updated_at.
	UpsertPurchaseQuery() string

	// UpsertLessonProgressQuery inserts or merges a lesson_progress row keyed on
	// (user_id, lesson_id). completed and completed_at never revert once set.
	// Placeholders: user_id, lesson_id, course_id, video_progress, completed,
	// completed_at, last_accessed, then a boolean selecting whether the stored
	// video_progress is replaced.
	UpsertLessonProgressQuery() string
}

// DialectConfig holds configuration for database connection
type DialectConfig struct {
	// For SQLite
	Path string

	// For PostgreSQL/MySQL
	URL string

	// Zero values fall back to the defaults below
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

const (
	defaultMaxOpenConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
)

// applyPool sizes the connection pool. Idle connections are kept at a fifth
// of the open limit.
func applyPool(db *sql.DB, config DialectConfig) {
	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	lifetime := config.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(max(1, maxOpen/5))
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(time.Minute)
}

// placeholderRegexp matches ? placeholders
var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(match string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}

// upsertPurchaseOnConflict is shared by SQLite and PostgreSQL, which both
// accept ON CONFLICT ... DO UPDATE ... WHERE.
const upsertPurchaseOnConflict = `
	INSERT INTO purchases (principal_key, user_id, email, course_id, amount_cents, currency,
		status, is_premium, external_payment_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (principal_key, course_id) DO UPDATE SET
		user_id = excluded.user_id,
		email = excluded.email,
		amount_cents = excluded.amount_cents,
		currency = excluded.currency,
		status = excluded.status,
		is_premium = excluded.is_premium,
		external_payment_id = excluded.external_payment_id,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	WHERE purchases.status <> 'completed'
`

const upsertLessonProgressOnConflict = `
	INSERT INTO lesson_progress (user_id, lesson_id, course_id, video_progress, completed,
		completed_at, last_accessed)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, lesson_id) DO UPDATE SET
		video_progress = CASE WHEN ? THEN excluded.video_progress ELSE lesson_progress.video_progress END,
		completed = (lesson_progress.completed OR excluded.completed),
		completed_at = COALESCE(lesson_progress.completed_at, excluded.completed_at),
		last_accessed = excluded.last_accessed
`
