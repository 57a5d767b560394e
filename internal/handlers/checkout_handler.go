package handlers

import (
	"errors"
	"io"
	"net/http"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/payment"
	"coursegate/internal/security"
	"coursegate/internal/service"
)

// CheckoutHandler handles purchase and payment HTTP requests
type CheckoutHandler struct {
	checkout *service.CheckoutService
	verifier *security.WebhookVerifier
	log      *logger.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkout *service.CheckoutService, verifier *security.WebhookVerifier, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, verifier: verifier, log: log.With("handler", "checkout")}
}

type checkoutRequest struct {
	CourseID int64  `json:"course_id" validate:"required,gt=0"`
	Tier     string `json:"tier" validate:"omitempty,oneof=standard premium"`
}

type guestCheckoutRequest struct {
	Email    string `json:"email" validate:"required,email"`
	CourseID int64  `json:"course_id" validate:"required,gt=0"`
	Tier     string `json:"tier" validate:"omitempty,oneof=standard premium"`
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type checkoutResponse struct {
	Purchase         *models.Purchase `json:"purchase,omitempty"`
	PaymentIntentID  string           `json:"payment_intent_id,omitempty"`
	ClientSecret     string           `json:"client_secret,omitempty"`
	AmountCents      int64            `json:"amount_cents,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	AlreadyPurchased bool             `json:"already_purchased"`
	Notice           string           `json:"notice,omitempty"`
}

type confirmResponse struct {
	Status   payment.Status   `json:"status"`
	Purchase *models.Purchase `json:"purchase"`
}

// Checkout starts a purchase for the authenticated user
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, h.log, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized, nil)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	principal := models.Principal{UserID: user.ID, Email: user.Email}
	h.start(w, r, service.CheckoutRequest{Principal: principal, CourseID: req.CourseID, Tier: models.Tier(req.Tier)})
}

// GuestCheckout starts a purchase for a buyer known only by email
func (h *CheckoutHandler) GuestCheckout(w http.ResponseWriter, r *http.Request) {
	var req guestCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	h.start(w, r, service.CheckoutRequest{
		Principal: models.GuestPrincipal(req.Email),
		CourseID:  req.CourseID,
		Tier:      models.Tier(req.Tier),
	})
}

func (h *CheckoutHandler) start(w http.ResponseWriter, r *http.Request, req service.CheckoutRequest) {
	session, err := h.checkout.StartPurchase(r.Context(), req)
	if errors.Is(err, service.ErrAlreadyPurchased) {
		respondJSON(w, http.StatusOK, checkoutResponse{
			AlreadyPurchased: true,
			Notice:           "You already own this course",
		})
		return
	}
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		Purchase:        session.Purchase,
		PaymentIntentID: session.PaymentIntentID,
		ClientSecret:    session.ClientSecret,
		AmountCents:     session.AmountCents,
		Currency:        session.Currency,
	})
}

// Confirm settles a purchase from the processor's view of its payment.
// Unknown payments are accepted with 202.
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	outcome, err := h.checkout.ConfirmPayment(r.Context(), req.PaymentIntentID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	status := http.StatusOK
	if outcome.Purchase == nil {
		status = http.StatusAccepted
	}
	respondJSON(w, status, confirmResponse{Status: outcome.Status, Purchase: outcome.Purchase})
}

// Webhook receives signed processor notifications. A non-2xx response asks
// the processor to redeliver.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, CodeValidation, ErrValidationFailed, err)
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get(SignatureHeader)); err != nil {
		h.log.Warn("rejected webhook", "error", err, "ip", security.GetClientIP(r))
		respondWithError(w, h.log, http.StatusBadRequest, CodeInvalidSignature, ErrInvalidSignature, nil)
		return
	}

	evt, err := payment.ParseEvent(payload)
	if err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, CodeValidation, ErrValidationFailed, err)
		return
	}

	if err := h.checkout.HandleWebhookEvent(r.Context(), evt); err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
