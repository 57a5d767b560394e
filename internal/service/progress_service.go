package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/repository"
	"coursegate/internal/validation"
)

// AccessChecker answers whether a principal may open a course
type AccessChecker interface {
	HasCompletedAccess(ctx context.Context, principal models.Principal, courseID int64) (bool, error)
}

// ProgressService records lesson playback and completion and reports course
// progress. Every operation requires completed access to the lesson's course.
type ProgressService struct {
	progress *repository.ProgressRepository
	content  ContentStore
	access   AccessChecker
	log      *logger.Logger
	now      func() time.Time
}

// NewProgressService creates a new progress service
func NewProgressService(progress *repository.ProgressRepository, content ContentStore, access AccessChecker, log *logger.Logger) *ProgressService {
	return &ProgressService{
		progress: progress,
		content:  content,
		access:   access,
		log:      log.With("service", "ProgressService"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LessonCompletion is returned when a lesson is marked complete
type LessonCompletion struct {
	Progress *models.LessonProgress
	Course   *models.CourseProgressReport
}

// ReachesCompletion reports whether watched seconds cover at least 90% of a
// lesson. Lessons with no duration never complete automatically.
func ReachesCompletion(watchedSeconds float64, durationSeconds int) bool {
	if durationSeconds <= 0 {
		return false
	}
	// watched >= 0.9 * duration, kept in exact arithmetic for whole-second inputs
	return watchedSeconds*10 >= float64(durationSeconds)*9
}

// ReportVideoProgress stores the learner's playback position for a lesson and
// completes the lesson once the threshold is reached. Completion is never
// undone by a later, lower report.
func (s *ProgressService) ReportVideoProgress(ctx context.Context, userID, lessonID int64, watchedSeconds float64) (*models.LessonProgress, error) {
	if err := validation.ValidateWatchedSeconds(watchedSeconds); err != nil {
		return nil, err
	}

	lesson, err := s.authorizeLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	rec, err := s.progress.Apply(ctx, models.ProgressUpdate{
		UserID:        userID,
		LessonID:      lesson.ID,
		CourseID:      lesson.CourseID,
		Video:         models.SetVideoProgress(watchedSeconds),
		MarkCompleted: ReachesCompletion(watchedSeconds, lesson.DurationSeconds),
		At:            s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("video progress saved", "user_id", userID, "lesson_id", lessonID, "seconds", watchedSeconds, "completed", rec.Completed)
	return rec, nil
}

// MarkLessonComplete completes a lesson without touching its playback position
// and returns the refreshed course progress.
func (s *ProgressService) MarkLessonComplete(ctx context.Context, userID, lessonID int64) (*LessonCompletion, error) {
	lesson, err := s.authorizeLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	rec, err := s.progress.Apply(ctx, models.ProgressUpdate{
		UserID:        userID,
		LessonID:      lesson.ID,
		CourseID:      lesson.CourseID,
		Video:         models.KeepVideoProgress(),
		MarkCompleted: true,
		At:            s.now(),
	})
	if err != nil {
		return nil, err
	}

	report, err := s.courseReport(ctx, userID, lesson.CourseID)
	if err != nil {
		return nil, err
	}

	s.log.Info("lesson completed", "user_id", userID, "lesson_id", lessonID, "course_percentage", report.CompletionPercentage)
	return &LessonCompletion{Progress: rec, Course: report}, nil
}

// GetLessonProgress returns the learner's state for a lesson. A lesson never
// played yields a zero record rather than an error.
func (s *ProgressService) GetLessonProgress(ctx context.Context, userID, lessonID int64) (*models.LessonProgress, error) {
	lesson, err := s.authorizeLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	rec, err := s.progress.Get(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &models.LessonProgress{UserID: userID, LessonID: lesson.ID, CourseID: lesson.CourseID}
	}
	return rec, nil
}

// GetCourseProgress aggregates the learner's progress over every lesson of a course
func (s *ProgressService) GetCourseProgress(ctx context.Context, userID, courseID int64) (*models.CourseProgressReport, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return s.buildReport(ctx, userID, course)
}

func (s *ProgressService) courseReport(ctx context.Context, userID, courseID int64) (*models.CourseProgressReport, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return s.buildReport(ctx, userID, course)
}

func (s *ProgressService) loadCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	if course == nil {
		return nil, ErrInvalidCourse
	}
	return course, nil
}

func (s *ProgressService) buildReport(ctx context.Context, userID int64, course *models.Course) (*models.CourseProgressReport, error) {
	records, err := s.progress.ListForCourse(ctx, userID, course.ID)
	if err != nil {
		return nil, err
	}
	return buildCourseReport(course, records), nil
}

// buildCourseReport sums clamped watched seconds over lesson durations.
// Lessons without a duration count toward lesson totals but not toward the
// seconds-based percentage.
func buildCourseReport(course *models.Course, records map[int64]*models.LessonProgress) *models.CourseProgressReport {
	report := &models.CourseProgressReport{CourseID: course.ID, Lessons: []models.LessonProgressSummary{}}

	for _, lesson := range course.Lessons() {
		summary := models.LessonProgressSummary{
			LessonID:        lesson.ID,
			Title:           lesson.Title,
			DurationSeconds: lesson.DurationSeconds,
		}

		if rec, ok := records[lesson.ID]; ok {
			summary.Completed = rec.Completed
			if lesson.DurationSeconds > 0 {
				summary.WatchedSeconds = math.Min(math.Max(rec.VideoProgress, 0), float64(lesson.DurationSeconds))
			}
		}

		report.TotalLessons++
		if summary.Completed {
			report.CompletedLessons++
		}
		if lesson.DurationSeconds > 0 {
			report.TotalSeconds += int64(lesson.DurationSeconds)
			report.WatchedSeconds += summary.WatchedSeconds
		}
		report.Lessons = append(report.Lessons, summary)
	}

	if report.TotalSeconds > 0 {
		pct := report.WatchedSeconds / float64(report.TotalSeconds) * 100
		report.CompletionPercentage = math.Round(pct*100) / 100
	}
	return report
}

func (s *ProgressService) authorizeLesson(ctx context.Context, userID, lessonID int64) (*models.Lesson, error) {
	lesson, err := s.content.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson: %w", err)
	}
	if lesson == nil {
		return nil, ErrInvalidLesson
	}

	if err := s.authorizeCourse(ctx, userID, lesson.CourseID); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *ProgressService) authorizeCourse(ctx context.Context, userID, courseID int64) error {
	if userID <= 0 {
		return ErrUnauthenticated
	}

	ok, err := s.access.HasCompletedAccess(ctx, models.UserPrincipal(userID), courseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}
