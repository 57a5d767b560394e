package models

import "time"

// LessonProgress is one learner's state for one lesson. Completed never
// reverts to false once set.
type LessonProgress struct {
	UserID        int64      `json:"user_id"`
	LessonID      int64      `json:"lesson_id"`
	CourseID      int64      `json:"course_id"`
	VideoProgress float64    `json:"video_progress"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastAccessed  time.Time  `json:"last_accessed"`
}

// VideoChange says whether a progress write replaces the stored watched seconds
type VideoChange struct {
	set     bool
	seconds float64
}

// SetVideoProgress replaces the stored watched seconds
func SetVideoProgress(seconds float64) VideoChange {
	return VideoChange{set: true, seconds: seconds}
}

// KeepVideoProgress leaves the stored watched seconds untouched
func KeepVideoProgress() VideoChange {
	return VideoChange{}
}

// Seconds returns the new value and whether it should be written
func (v VideoChange) Seconds() (float64, bool) {
	return v.seconds, v.set
}

// ProgressUpdate is a single merge into a lesson_progress row. MarkCompleted
// can only set completion, never clear it.
type ProgressUpdate struct {
	UserID        int64
	LessonID      int64
	CourseID      int64
	Video         VideoChange
	MarkCompleted bool
	At            time.Time
}

// LessonProgressSummary is one row of a course progress report
type LessonProgressSummary struct {
	LessonID        int64   `json:"lesson_id"`
	Title           string  `json:"title"`
	DurationSeconds int     `json:"duration_seconds"`
	WatchedSeconds  float64 `json:"watched_seconds"`
	Completed       bool    `json:"completed"`
}

// CourseProgressReport aggregates a learner's progress across a course
type CourseProgressReport struct {
	CourseID             int64                   `json:"course_id"`
	TotalLessons         int                     `json:"total_lessons"`
	CompletedLessons     int                     `json:"completed_lessons"`
	TotalSeconds         int64                   `json:"total_seconds"`
	WatchedSeconds       float64                 `json:"watched_seconds"`
	CompletionPercentage float64                 `json:"completion_percentage"`
	Lessons              []LessonProgressSummary `json:"lessons"`
}
