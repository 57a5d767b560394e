package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// MySQLDialect implements Dialect for MySQL
type MySQLDialect struct{}

// NewMySQLDialect creates a new MySQL dialect
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// DSN makes sure DATETIME columns scan into time.Time and that migration
// files with several statements can run in one Exec.
func (d *MySQLDialect) DSN(config DialectConfig) string {
	dsn := config.URL
	for _, param := range []string{"parseTime=true", "multiStatements=true"} {
		name := param[:strings.Index(param, "=")]
		if strings.Contains(dsn, name+"=") {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

func (d *MySQLDialect) RewriteQuery(query string) string {
	// MySQL uses ? placeholders like SQLite, no rewrite needed
	return query
}

func (d *MySQLDialect) SupportsLastInsertId() bool {
	return true
}

func (d *MySQLDialect) ConfigureConnection(db *sql.DB, config DialectConfig) error {
	applyPool(db, config)

	if _, err := db.Exec("SET FOREIGN_KEY_CHECKS = 1;"); err != nil {
		return err
	}

	return nil
}

func (d *MySQLDialect) MigrationsSubdir() string {
	return "mysql"
}

func (d *MySQLDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			filename VARCHAR(255) UNIQUE NOT NULL,
			executed_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
		);
	`
}

func (d *MySQLDialect) IsUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

func (d *MySQLDialect) ForUpdate() string {
	return " FOR UPDATE"
}

// UpsertPurchaseQuery has no WHERE on ON DUPLICATE KEY UPDATE in MySQL, so each
// column is guarded. status is assigned last because MySQL evaluates the
// assignments left to right against the updated row.
func (d *MySQLDialect) UpsertPurchaseQuery() string {
	return `
		INSERT INTO purchases (principal_key, user_id, email, course_id, amount_cents, currency,
			status, is_premium, external_payment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			user_id = IF(status = 'completed', user_id, VALUES(user_id)),
			email = IF(status = 'completed', email, VALUES(email)),
			amount_cents = IF(status = 'completed', amount_cents, VALUES(amount_cents)),
			currency = IF(status = 'completed', currency, VALUES(currency)),
			is_premium = IF(status = 'completed', is_premium, VALUES(is_premium)),
			external_payment_id = IF(status = 'completed', external_payment_id, VALUES(external_payment_id)),
			created_at = IF(status = 'completed', created_at, VALUES(created_at)),
			updated_at = IF(status = 'completed', updated_at, VALUES(updated_at)),
			status = IF(status = 'completed', status, VALUES(status))
	`
}

// UpsertLessonProgressQuery takes the CASE placeholder last, after the VALUES list.
func (d *MySQLDialect) UpsertLessonProgressQuery() string {
	return `
		INSERT INTO lesson_progress (user_id, lesson_id, course_id, video_progress, completed,
			completed_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			video_progress = CASE WHEN ? THEN VALUES(video_progress) ELSE video_progress END,
			completed = (completed OR VALUES(completed)),
			completed_at = COALESCE(completed_at, VALUES(completed_at)),
			last_accessed = VALUES(last_accessed)
	`
}
