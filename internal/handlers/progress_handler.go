package handlers

import (
	"net/http"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/service"
)

// ProgressHandler handles lesson progress HTTP requests
type ProgressHandler struct {
	progress *service.ProgressService
	log      *logger.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(progress *service.ProgressService, log *logger.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, log: log.With("handler", "progress")}
}

type videoProgressRequest struct {
	WatchedSeconds *float64 `json:"watched_seconds" validate:"required"`
}

type lessonCompleteResponse struct {
	Progress *models.LessonProgress       `json:"progress"`
	Course   *models.CourseProgressReport `json:"course"`
}

// ReportProgress stores the playback position for a lesson
func (h *ProgressHandler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	lessonID, err := pathID(r, "lessonId")
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	var req videoProgressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	rec, err := h.progress.ReportVideoProgress(r.Context(), userID(user), lessonID, *req.WatchedSeconds)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// CompleteLesson marks a lesson complete
func (h *ProgressHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	lessonID, err := pathID(r, "lessonId")
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	done, err := h.progress.MarkLessonComplete(r.Context(), userID(user), lessonID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, lessonCompleteResponse{Progress: done.Progress, Course: done.Course})
}

// GetLessonProgress returns the learner's state for one lesson
func (h *ProgressHandler) GetLessonProgress(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	lessonID, err := pathID(r, "lessonId")
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	rec, err := h.progress.GetLessonProgress(r.Context(), userID(user), lessonID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetCourseProgress returns the learner's progress report for a course
func (h *ProgressHandler) GetCourseProgress(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	courseID, err := pathID(r, "courseId")
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	report, err := h.progress.GetCourseProgress(r.Context(), userID(user), courseID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func userID(u *models.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
