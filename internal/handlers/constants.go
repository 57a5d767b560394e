package handlers

const (
	ErrInternalServerError = "Internal server error"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrNoAccess            = "You do not have access to this course"
	ErrValidationFailed    = "Invalid request"
	ErrPaymentUnavailable  = "Payment processor unavailable, please retry"
	ErrPaymentFailed       = "Payment processor rejected the request"
	ErrTooManyRequests     = "Too many requests"
	ErrInvalidSignature    = "Invalid webhook signature"

	CodeInternal           = "internal_error"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeForbidden          = "forbidden"
	CodeAccessDenied       = "access_denied"
	CodeNotFound           = "not_found"
	CodeValidation         = "validation_failed"
	CodeConflict           = "conflict"
	CodePaymentUnavailable = "payment_unavailable"
	CodePaymentFailed      = "payment_failed"
	CodeRateLimited        = "rate_limited"
	CodeInvalidSignature   = "invalid_signature"

	RequestIDHeader   = "X-Request-ID"
	SignatureHeader   = "Payment-Signature"
	RetryAfterSeconds = 5

	maxBodyBytes    = 1 << 20
	maxWebhookBytes = 64 << 10
)
