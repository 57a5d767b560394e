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

// CourseRepository reads the course catalog: courses, chapters and lessons
type CourseRepository struct {
	db database.DBTX
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db database.DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetCourse returns a course with its chapters and lessons in order, or nil
// when the course does not exist.
func (r *CourseRepository) GetCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	course := &models.Course{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, currency, price_cents, premium_price_cents, created_at
		FROM courses
		WHERE id = ?
	`, courseID).Scan(
		&course.ID,
		&course.Title,
		&course.Currency,
		&course.PriceCents,
		&course.PremiumPriceCents,
		&course.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	chapters, err := r.listChapters(ctx, courseID)
	if err != nil {
		return nil, err
	}

	lessons, err := r.listLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	byChapter := make(map[int64][]models.Lesson)
	for _, l := range lessons {
		byChapter[l.ChapterID] = append(byChapter[l.ChapterID], l)
	}
	for i := range chapters {
		chapters[i].Lessons = byChapter[chapters[i].ID]
	}
	course.Chapters = chapters

	return course, nil
}

// GetLesson returns a lesson with its course id, or nil when it does not exist
func (r *CourseRepository) GetLesson(ctx context.Context, lessonID int64) (*models.Lesson, error) {
	lesson := &models.Lesson{}
	err := r.db.QueryRowContext(ctx, `
		SELECT l.id, l.chapter_id, c.course_id, l.position, l.title, l.duration_seconds, l.video_ref
		FROM lessons l
		JOIN chapters c ON c.id = l.chapter_id
		WHERE l.id = ?
	`, lessonID).Scan(
		&lesson.ID,
		&lesson.ChapterID,
		&lesson.CourseID,
		&lesson.Position,
		&lesson.Title,
		&lesson.DurationSeconds,
		&lesson.VideoRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return lesson, nil
}

// CreateCourse inserts a course together with its chapters and lessons,
// filling in the generated ids.
func (r *CourseRepository) CreateCourse(ctx context.Context, course *models.Course) error {
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	if course.Currency == "" {
		course.Currency = "usd"
	}

	id, err := r.db.ExecReturningID(ctx, `
		INSERT INTO courses (title, currency, price_cents, premium_price_cents, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, course.Title, course.Currency, course.PriceCents, course.PremiumPriceCents, course.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	course.ID = id

	for i := range course.Chapters {
		ch := &course.Chapters[i]
		ch.CourseID = id
		if ch.Position == 0 {
			ch.Position = i + 1
		}
		chID, err := r.db.ExecReturningID(ctx,
			"INSERT INTO chapters (course_id, position, title) VALUES (?, ?, ?)",
			id, ch.Position, ch.Title)
		if err != nil {
			return fmt.Errorf("failed to create chapter: %w", err)
		}
		ch.ID = chID

		for j := range ch.Lessons {
			l := &ch.Lessons[j]
			l.ChapterID = chID
			l.CourseID = id
			if l.Position == 0 {
				l.Position = j + 1
			}
			lessonID, err := r.db.ExecReturningID(ctx, `
				INSERT INTO lessons (chapter_id, position, title, duration_seconds, video_ref)
				VALUES (?, ?, ?, ?, ?)
			`, chID, l.Position, l.Title, l.DurationSeconds, l.VideoRef)
			if err != nil {
				return fmt.Errorf("failed to create lesson: %w", err)
			}
			l.ID = lessonID
		}
	}

	return nil
}

func (r *CourseRepository) listChapters(ctx context.Context, courseID int64) ([]models.Chapter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, position, title
		FROM chapters
		WHERE course_id = ?
		ORDER BY position, id
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.CourseID, &ch.Position, &ch.Title); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func (r *CourseRepository) listLessons(ctx context.Context, courseID int64) ([]models.Lesson, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.chapter_id, c.course_id, l.position, l.title, l.duration_seconds, l.video_ref
		FROM lessons l
		JOIN chapters c ON c.id = l.chapter_id
		WHERE c.course_id = ?
		ORDER BY c.position, c.id, l.position, l.id
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []models.Lesson
	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(&l.ID, &l.ChapterID, &l.CourseID, &l.Position, &l.Title, &l.DurationSeconds, &l.VideoRef); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}
