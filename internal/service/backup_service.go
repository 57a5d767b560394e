package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"coursegate/internal/database"
	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/repository"

	"gopkg.in/yaml.v3"
)

const backupVersion = "1.0"

// BackupData is the ledger export: accounts, purchases and lesson progress.
// The course catalog is not part of it and must already exist on import.
type BackupData struct {
	Version      string                   `json:"version"`
	ExportedAt   time.Time                `json:"exported_at"`
	DatabaseType string                   `json:"database_type"`
	Users        []UserBackup             `json:"users"`
	Purchases    []PurchaseBackup         `json:"purchases"`
	Progress     []*models.LessonProgress `json:"progress"`
}

// UserBackup represents a user record for backup
type UserBackup struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchaseBackup represents a purchase row for backup
type PurchaseBackup struct {
	PrincipalKey      string                `json:"principal_key"`
	UserID            int64                 `json:"user_id,omitempty"`
	Email             string                `json:"email,omitempty"`
	CourseID          int64                 `json:"course_id"`
	AmountCents       int64                 `json:"amount_cents"`
	Currency          string                `json:"currency"`
	Status            models.PurchaseStatus `json:"status"`
	IsPremium         bool                  `json:"is_premium"`
	ExternalPaymentID string                `json:"external_payment_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// ImportStats counts what an import wrote and what it skipped
type ImportStats struct {
	UsersCreated      int `json:"users_created"`
	UsersMatched      int `json:"users_matched"`
	PurchasesImported int `json:"purchases_imported"`
	PurchasesSkipped  int `json:"purchases_skipped"`
	ProgressImported  int `json:"progress_imported"`
	ProgressSkipped   int `json:"progress_skipped"`
}

// BackupService exports and restores the purchase ledger
type BackupService struct {
	db  *database.DB
	log *logger.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, log *logger.Logger) *BackupService {
	return &BackupService{db: db, log: log.With("service", "BackupService")}
}

// ExportToWriter writes the ledger as indented JSON
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup, err := s.Export(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Export reads the whole ledger
func (s *BackupService) Export(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:      backupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.MigrationsSubdir(),
	}

	if err := s.exportUsers(ctx, backup); err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}

	purchases, err := repository.NewPurchaseRepository(s.db).ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export purchases: %w", err)
	}
	for _, p := range purchases {
		backup.Purchases = append(backup.Purchases, PurchaseBackup{
			PrincipalKey:      p.PrincipalKey,
			UserID:            p.UserID,
			Email:             p.Email,
			CourseID:          p.CourseID,
			AmountCents:       p.AmountCents,
			Currency:          p.Currency,
			Status:            p.Status,
			IsPremium:         p.IsPremium,
			ExternalPaymentID: p.ExternalPaymentID,
			CreatedAt:         p.CreatedAt,
			UpdatedAt:         p.UpdatedAt,
		})
	}

	backup.Progress, err = repository.NewProgressRepository(s.db).ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export progress: %w", err)
	}

	s.log.Info("ledger exported",
		"users", len(backup.Users),
		"purchases", len(backup.Purchases),
		"progress", len(backup.Progress))
	return backup, nil
}

func (s *BackupService) exportUsers(ctx context.Context, backup *BackupData) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, password_hash, name, is_admin, created_at FROM users ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserBackup
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.IsAdmin, &u.CreatedAt); err != nil {
			return err
		}
		backup.Users = append(backup.Users, u)
	}
	return rows.Err()
}

// ImportFromReader decodes a ledger export and restores it
func (s *BackupService) ImportFromReader(ctx context.Context, r io.Reader) (*ImportStats, error) {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	return s.Import(ctx, &backup)
}

// Import restores a ledger in one transaction. Users are matched by email and
// user ids are remapped. Existing purchases win over imported ones, and
// imported progress merges without clearing completion.
func (s *BackupService) Import(ctx context.Context, backup *BackupData) (*ImportStats, error) {
	s.log.Info("importing ledger", "version", backup.Version, "exported_at", backup.ExportedAt)

	stats := &ImportStats{}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		userIDs, err := s.importUsers(ctx, tx, backup.Users, stats)
		if err != nil {
			return fmt.Errorf("failed to import users: %w", err)
		}

		courses := make(map[int64]bool)
		if err := s.importPurchases(ctx, tx, backup.Purchases, userIDs, courses, stats); err != nil {
			return fmt.Errorf("failed to import purchases: %w", err)
		}
		if err := s.importProgress(ctx, tx, backup.Progress, userIDs, courses, stats); err != nil {
			return fmt.Errorf("failed to import progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("ledger import completed",
		"users_created", stats.UsersCreated,
		"users_matched", stats.UsersMatched,
		"purchases_imported", stats.PurchasesImported,
		"purchases_skipped", stats.PurchasesSkipped,
		"progress_imported", stats.ProgressImported,
		"progress_skipped", stats.ProgressSkipped)
	return stats, nil
}

func (s *BackupService) importUsers(ctx context.Context, tx *database.Tx, users []UserBackup, stats *ImportStats) (map[int64]int64, error) {
	repo := repository.NewUserRepository(tx)
	ids := make(map[int64]int64, len(users))

	for _, u := range users {
		existing, err := repo.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ids[u.ID] = existing.ID
			stats.UsersMatched++
			continue
		}

		created, err := repo.CreateUser(ctx, u.Email, u.PasswordHash, u.Name, u.IsAdmin)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Email, err)
		}
		ids[u.ID] = created.ID
		stats.UsersCreated++
	}
	return ids, nil
}

func (s *BackupService) importPurchases(ctx context.Context, tx *database.Tx, purchases []PurchaseBackup, userIDs map[int64]int64, courses map[int64]bool, stats *ImportStats) error {
	repo := repository.NewPurchaseRepository(tx)
	catalog := repository.NewCourseRepository(tx)

	for _, b := range purchases {
		ok, err := courseExists(ctx, catalog, courses, b.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("skipping purchase for unknown course", "course_id", b.CourseID, "principal", b.PrincipalKey)
			stats.PurchasesSkipped++
			continue
		}

		p := &models.Purchase{
			PrincipalKey:      b.PrincipalKey,
			Email:             b.Email,
			CourseID:          b.CourseID,
			AmountCents:       b.AmountCents,
			Currency:          b.Currency,
			Status:            b.Status,
			IsPremium:         b.IsPremium,
			ExternalPaymentID: b.ExternalPaymentID,
			CreatedAt:         b.CreatedAt,
			UpdatedAt:         b.UpdatedAt,
		}
		if b.UserID > 0 {
			newID, known := userIDs[b.UserID]
			if !known {
				s.log.Warn("skipping purchase for unknown user", "user_id", b.UserID)
				stats.PurchasesSkipped++
				continue
			}
			p.UserID = newID
			if !models.IsGuestKey(b.PrincipalKey) {
				p.PrincipalKey = models.UserPrincipal(newID).Key()
			}
		}

		existing, err := repo.GetByPrincipalCourse(ctx, p.PrincipalKey, p.CourseID)
		if err != nil {
			return err
		}
		if existing != nil {
			stats.PurchasesSkipped++
			continue
		}
		if p.ExternalPaymentID != "" {
			dup, err := repo.GetByExternalID(ctx, p.ExternalPaymentID, false)
			if err != nil {
				return err
			}
			if dup != nil {
				stats.PurchasesSkipped++
				continue
			}
		}

		if err := repo.Insert(ctx, p); err != nil {
			return err
		}
		stats.PurchasesImported++
	}
	return nil
}

func (s *BackupService) importProgress(ctx context.Context, tx *database.Tx, records []*models.LessonProgress, userIDs map[int64]int64, courses map[int64]bool, stats *ImportStats) error {
	repo := repository.NewProgressRepository(tx)
	catalog := repository.NewCourseRepository(tx)

	for _, rec := range records {
		newID, known := userIDs[rec.UserID]
		if !known {
			stats.ProgressSkipped++
			continue
		}
		ok, err := courseExists(ctx, catalog, courses, rec.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			stats.ProgressSkipped++
			continue
		}

		restored := *rec
		restored.UserID = newID
		if err := repo.Restore(ctx, &restored); err != nil {
			return err
		}
		stats.ProgressImported++
	}
	return nil
}

func courseExists(ctx context.Context, catalog *repository.CourseRepository, seen map[int64]bool, courseID int64) (bool, error) {
	if ok, cached := seen[courseID]; cached {
		return ok, nil
	}
	course, err := catalog.GetCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	seen[courseID] = course != nil
	return course != nil, nil
}

type catalogLesson struct {
	Title    string `yaml:"title"`
	Duration int    `yaml:"duration_seconds"`
	VideoRef string `yaml:"video_ref"`
}

type catalogChapter struct {
	Title   string          `yaml:"title"`
	Lessons []catalogLesson `yaml:"lessons"`
}

type catalogCourse struct {
	Title        string           `yaml:"title"`
	Currency     string           `yaml:"currency"`
	Price        int64            `yaml:"price_cents"`
	PremiumPrice int64            `yaml:"premium_price_cents"`
	Chapters     []catalogChapter `yaml:"chapters"`
}

func (c catalogCourse) toModel() *models.Course {
	course := &models.Course{
		Title:             c.Title,
		Currency:          c.Currency,
		PriceCents:        c.Price,
		PremiumPriceCents: c.PremiumPrice,
	}
	for i, ch := range c.Chapters {
		chapter := models.Chapter{Position: i + 1, Title: ch.Title}
		for j, l := range ch.Lessons {
			chapter.Lessons = append(chapter.Lessons, models.Lesson{
				Position:        j + 1,
				Title:           l.Title,
				DurationSeconds: l.Duration,
				VideoRef:        l.VideoRef,
			})
		}
		course.Chapters = append(course.Chapters, chapter)
	}
	return course
}

// ImportCatalog creates the courses described by a YAML (or JSON) list of
// courses with nested chapters and lessons.
func (s *BackupService) ImportCatalog(ctx context.Context, r io.Reader) ([]*models.Course, error) {
	var entries []catalogCourse
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	courses := make([]*models.Course, 0, len(entries))
	for _, e := range entries {
		courses = append(courses, e.toModel())
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := repository.NewCourseRepository(tx)
		for _, c := range courses {
			if c.Title == "" {
				return fmt.Errorf("course without a title")
			}
			if _, ok := c.PriceFor(models.TierStandard); !ok || c.PriceCents < 0 {
				return fmt.Errorf("course %q has an invalid price", c.Title)
			}
			if err := repo.CreateCourse(ctx, c); err != nil {
				return err
			}
			s.log.Info("course created", "course_id", c.ID, "title", c.Title, "lessons", len(c.Lessons()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return courses, nil
}
