package handlers

import (
	"net/http"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/service"
)

// AdminHandler handles admin-only access management
type AdminHandler struct {
	access *service.AccessService
	log    *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(access *service.AccessService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{access: access, log: log.With("handler", "admin")}
}

// accessGrantRequest names a principal by user id or, for guests, by email
type accessGrantRequest struct {
	UserID   int64  `json:"user_id" validate:"required_without=Email,omitempty,gt=0"`
	Email    string `json:"email" validate:"required_without=UserID,omitempty,email"`
	CourseID int64  `json:"course_id" validate:"required,gt=0"`
}

func (req accessGrantRequest) principal() models.Principal {
	if req.UserID > 0 {
		return models.UserPrincipal(req.UserID)
	}
	return models.GuestPrincipal(req.Email)
}

// GrantAccess records free access to a course
func (h *AdminHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	var req accessGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	p, err := h.access.GrantFreeAccess(r.Context(), req.principal(), req.CourseID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	admin := GetUserFromContext(r.Context())
	h.log.Info("admin granted access", "admin_id", userID(admin), "principal", p.PrincipalKey, "course_id", req.CourseID)
	respondJSON(w, http.StatusOK, p)
}

// RevokeAccess removes completed purchases for a course. Progress is kept.
func (h *AdminHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	var req accessGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	n, err := h.access.RevokeAccess(r.Context(), req.principal(), req.CourseID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	admin := GetUserFromContext(r.Context())
	h.log.Info("admin revoked access", "admin_id", userID(admin), "principal", req.principal().Key(), "course_id", req.CourseID)
	respondJSON(w, http.StatusOK, map[string]int64{"removed": n})
}
