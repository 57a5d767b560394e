package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"coursegate/internal/logger"
	"coursegate/internal/service"
	"coursegate/internal/validation"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondWithError writes the JSON error envelope. err is logged, never sent.
func respondWithError(w http.ResponseWriter, log *logger.Logger, status int, code, userMsg string, err error) {
	if err != nil {
		if status >= http.StatusInternalServerError {
			log.Error(userMsg, "status", status, "error", err)
		} else {
			log.Debug(userMsg, "status", status, "error", err)
		}
	}
	respondJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: userMsg}})
}

// respondServiceError maps a service error to its HTTP status
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: errorDetail{
			Code:    CodeValidation,
			Message: ErrValidationFailed,
			Fields:  verrs,
		}})
		return
	}

	var perr *service.ExternalPaymentError
	if errors.As(err, &perr) {
		if perr.Retryable {
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
			respondWithError(w, log, http.StatusServiceUnavailable, CodePaymentUnavailable, ErrPaymentUnavailable, err)
			return
		}
		respondWithError(w, log, http.StatusBadGateway, CodePaymentFailed, ErrPaymentFailed, err)
		return
	}

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		respondWithError(w, log, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized, err)
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, log, http.StatusUnauthorized, CodeInvalidCredentials, service.ErrInvalidCredentials.Error(), err)
	case errors.Is(err, service.ErrAccessDenied):
		respondWithError(w, log, http.StatusForbidden, CodeAccessDenied, ErrNoAccess, err)
	case errors.Is(err, service.ErrInvalidTier):
		respondWithError(w, log, http.StatusUnprocessableEntity, CodeValidation, service.ErrInvalidTier.Error(), err)
	case errors.Is(err, service.ErrInvalidCourse):
		respondWithError(w, log, http.StatusNotFound, CodeNotFound, service.ErrInvalidCourse.Error(), err)
	case errors.Is(err, service.ErrInvalidLesson):
		respondWithError(w, log, http.StatusNotFound, CodeNotFound, service.ErrInvalidLesson.Error(), err)
	case errors.Is(err, service.ErrUnknownPayment):
		respondWithError(w, log, http.StatusNotFound, CodeNotFound, service.ErrUnknownPayment.Error(), err)
	case errors.Is(err, service.ErrEmailTaken):
		respondWithError(w, log, http.StatusConflict, CodeConflict, service.ErrEmailTaken.Error(), err)
	default:
		respondWithError(w, log, http.StatusInternalServerError, CodeInternal, ErrInternalServerError, err)
	}
}

// decodeJSON reads a request body into dst and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return validation.Errors{"body": "must be a valid JSON object"}
	}
	return validation.Struct(dst)
}

// pathID parses a positive integer path parameter
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, validation.Errors{name: "must be a positive integer"}
	}
	return id, nil
}
