package security

import "github.com/google/uuid"

// NewRequestID returns an id used to correlate log lines for one request
func NewRequestID() string {
	return uuid.New().String()
}

// NewIdempotencyKey returns a key that makes a payment create call safe to retry
func NewIdempotencyKey() string {
	return uuid.New().String()
}
