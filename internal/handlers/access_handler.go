package handlers

import (
	"net/http"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/service"
)

// AccessHandler answers access checks and lists a user's purchases
type AccessHandler struct {
	access *service.AccessService
	log    *logger.Logger
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(access *service.AccessService, log *logger.Logger) *AccessHandler {
	return &AccessHandler{access: access, log: log.With("handler", "access")}
}

type accessResponse struct {
	CourseID  int64 `json:"course_id"`
	HasAccess bool  `json:"has_access"`
}

// CheckAccess reports whether the authenticated user may open a course
func (h *AccessHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	courseID, err := pathID(r, "courseId")
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	ok, err := h.access.HasCompletedAccess(r.Context(), models.UserPrincipal(userID(user)), courseID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, accessResponse{CourseID: courseID, HasAccess: ok})
}

// ListPurchases returns the authenticated user's purchases
func (h *AccessHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	purchases, err := h.access.ListPurchases(r.Context(), userID(user))
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	if purchases == nil {
		purchases = []*models.Purchase{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}
