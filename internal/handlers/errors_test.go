package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursegate/internal/logger"
	"coursegate/internal/service"
	"coursegate/internal/validation"
)

func TestRespondWithErrorWritesEnvelope(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondWithError(recorder, logger.NewNop(), http.StatusTeapot, "teapot", "Teapot", errors.New("internal detail"))

	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.NotContains(t, recorder.Body.String(), "internal detail")

	var body errorBody
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "teapot", body.Error.Code)
	assert.Equal(t, "Teapot", body.Error.Message)
}

func TestRespondServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"access denied", fmt.Errorf("wrapped: %w", service.ErrAccessDenied), http.StatusForbidden, CodeAccessDenied},
		{"unknown course", service.ErrInvalidCourse, http.StatusNotFound, CodeNotFound},
		{"unknown lesson", service.ErrInvalidLesson, http.StatusNotFound, CodeNotFound},
		{"bad tier", service.ErrInvalidTier, http.StatusUnprocessableEntity, CodeValidation},
		{"wrapped bad tier", fmt.Errorf("quote: %w", service.ErrInvalidTier), http.StatusUnprocessableEntity, CodeValidation},
		{"validation", validation.Errors{"email": "is required"}, http.StatusUnprocessableEntity, CodeValidation},
		{"email taken", service.ErrEmailTaken, http.StatusConflict, CodeConflict},
		{"processor down", &service.ExternalPaymentError{Op: "create intent", Retryable: true, Err: errors.New("timeout")}, http.StatusServiceUnavailable, CodePaymentUnavailable},
		{"processor rejected", &service.ExternalPaymentError{Op: "create intent", Err: errors.New("declined")}, http.StatusBadGateway, CodePaymentFailed},
		{"anything else", errors.New("disk full"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondServiceError(recorder, logger.NewNop(), tt.err)

			assert.Equal(t, tt.status, recorder.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestRespondServiceErrorRetryAfter(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondServiceError(recorder, logger.NewNop(), &service.ExternalPaymentError{Retryable: true, Err: errors.New("timeout")})
	assert.Equal(t, "5", recorder.Header().Get("Retry-After"))
}

func TestRespondServiceErrorValidationFields(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondServiceError(recorder, logger.NewNop(), validation.Errors{"course_id": "is required"})

	var body errorBody
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "is required", body.Error.Fields["course_id"])
}
