package handlers

import (
	"net/http"
	"time"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/service"
)

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	accounts *service.AccountService
	log      *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *service.AccountService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log.With("handler", "auth")}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login exchanges email and password for a bearer token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User})
}

// Me returns the authenticated user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, h.log, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized, nil)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
