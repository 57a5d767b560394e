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

// ProgressRepository stores per-lesson learner progress
type ProgressRepository struct {
	db database.DBTX
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db database.DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = "user_id, lesson_id, course_id, video_progress, completed, completed_at, last_accessed"

func scanProgress(row rowScanner) (*models.LessonProgress, error) {
	var (
		p           models.LessonProgress
		completedAt sql.NullTime
	)
	err := row.Scan(
		&p.UserID,
		&p.LessonID,
		&p.CourseID,
		&p.VideoProgress,
		&p.Completed,
		&completedAt,
		&p.LastAccessed,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return &p, nil
}

// Apply merges u into the stored row in one statement and returns the result.
// Concurrent writers for the same (user, lesson) never lose a completion.
func (r *ProgressRepository) Apply(ctx context.Context, u models.ProgressUpdate) (*models.LessonProgress, error) {
	at := u.At.UTC()
	if u.At.IsZero() {
		at = time.Now().UTC()
	}

	seconds, setVideo := u.Video.Seconds()
	var completedAt any
	if u.MarkCompleted {
		completedAt = at
	}

	_, err := r.db.ExecContext(ctx, r.db.GetDialect().UpsertLessonProgressQuery(),
		u.UserID,
		u.LessonID,
		u.CourseID,
		seconds,
		u.MarkCompleted,
		completedAt,
		at,
		setVideo,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save lesson progress: %w", err)
	}

	p, err := r.Get(ctx, u.UserID, u.LessonID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("lesson progress for user %d lesson %d missing after save", u.UserID, u.LessonID)
	}
	return p, nil
}

// Get returns the stored progress for a lesson, or nil when none exists
func (r *ProgressRepository) Get(ctx context.Context, userID, lessonID int64) (*models.LessonProgress, error) {
	query := "SELECT " + progressColumns + " FROM lesson_progress WHERE user_id = ? AND lesson_id = ?"
	p, err := scanProgress(r.db.QueryRowContext(ctx, query, userID, lessonID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson progress: %w", err)
	}
	return p, nil
}

// ListForCourse returns the user's stored progress rows for a course keyed by lesson id
func (r *ProgressRepository) ListForCourse(ctx context.Context, userID, courseID int64) (map[int64]*models.LessonProgress, error) {
	query := "SELECT " + progressColumns + " FROM lesson_progress WHERE user_id = ? AND course_id = ?"
	rows, err := r.db.QueryContext(ctx, query, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}
	defer rows.Close()

	progress := make(map[int64]*models.LessonProgress)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		progress[p.LessonID] = p
	}
	return progress, rows.Err()
}

// ListAll returns every progress row. Used by the ledger export.
func (r *ProgressRepository) ListAll(ctx context.Context) ([]*models.LessonProgress, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+progressColumns+" FROM lesson_progress ORDER BY user_id, lesson_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}
	defer rows.Close()

	var all []*models.LessonProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		all = append(all, p)
	}
	return all, rows.Err()
}

// Restore merges an exported row back in. Existing completion is kept.
func (r *ProgressRepository) Restore(ctx context.Context, p *models.LessonProgress) error {
	completedAt := any(nil)
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.GetDialect().UpsertLessonProgressQuery(),
		p.UserID,
		p.LessonID,
		p.CourseID,
		p.VideoProgress,
		p.Completed,
		completedAt,
		p.LastAccessed.UTC(),
		true,
	)
	if err != nil {
		return fmt.Errorf("failed to restore lesson progress: %w", err)
	}
	return nil
}
